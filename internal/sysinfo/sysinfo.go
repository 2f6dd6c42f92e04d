// Package sysinfo describes the host running the load test.
package sysinfo

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Info is a point-in-time snapshot of the host. Fields that could not be
// read are left zero.
type Info struct {
	Hostname        string  `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	OS              string  `json:"os" yaml:"os"`
	Platform        string  `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string  `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	KernelVersion   string  `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Arch            string  `json:"arch" yaml:"arch"`
	CPUModel        string  `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	CPUCores        int     `json:"cpu_cores" yaml:"cpu_cores"`
	MemTotal        uint64  `json:"mem_total_bytes,omitempty" yaml:"mem_total_bytes,omitempty"`
	MemAvailable    uint64  `json:"mem_available_bytes,omitempty" yaml:"mem_available_bytes,omitempty"`
	Load1           float64 `json:"load1" yaml:"load1"`
	Load5           float64 `json:"load5" yaml:"load5"`
	Load15          float64 `json:"load15" yaml:"load15"`
	GoVersion       string  `json:"go_version" yaml:"go_version"`
}

// Collect gathers host information. Every source is queried even when an
// earlier one fails; the returned error joins all failures.
func Collect(ctx context.Context) (Info, error) {
	info := Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		CPUCores:  runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
	var errs []error

	if h, err := host.InfoWithContext(ctx); err == nil && h != nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		if h.OS != "" {
			info.OS = h.OS
		}
	} else if err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	} else if err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.CPUCores = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.MemTotal = vm.Total
		info.MemAvailable = vm.Available
	} else if err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}

	// Load average is not available everywhere (e.g. Windows).
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		info.Load1 = avg.Load1
		info.Load5 = avg.Load5
		info.Load15 = avg.Load15
	}

	return info, errors.Join(errs...)
}

// Fields renders info as log fields.
func (i Info) Fields() logrus.Fields {
	return logrus.Fields{
		"hostname":      i.Hostname,
		"os":            i.OS,
		"platform":      fmt.Sprintf("%s %s", i.Platform, i.PlatformVersion),
		"kernel":        i.KernelVersion,
		"arch":          i.Arch,
		"cpu":           i.CPUModel,
		"cores":         i.CPUCores,
		"mem_total":     FormatBytes(i.MemTotal),
		"mem_available": FormatBytes(i.MemAvailable),
		"load":          fmt.Sprintf("%.2f %.2f %.2f", i.Load1, i.Load5, i.Load15),
	}
}

// FormatBytes renders n with a binary unit, e.g. "1.5 GiB".
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
