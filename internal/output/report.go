// Package output renders run results as text, JSON, YAML, HTML and
// Prometheus textfiles, and shows live progress while steps run.
package output

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
	"github.com/kuroyamii/playwright-stress-test/internal/step"
	"github.com/kuroyamii/playwright-stress-test/internal/sysinfo"
)

const (
	ModeCapacity = "capacity"
	ModeFixed    = "fixed"
)

// Report is everything known about one run.
type Report struct {
	RunID              string               `json:"run_id" yaml:"run_id"`
	Mode               string               `json:"mode" yaml:"mode"`
	Probe              string               `json:"probe" yaml:"probe"`
	LoadShape          string               `json:"load_shape" yaml:"load_shape"`
	URLs               []string             `json:"urls" yaml:"urls"`
	SuccessThreshold   float64              `json:"success_threshold_pct" yaml:"success_threshold_pct"`
	LatencyThresholdMs int64                `json:"latency_threshold_ms" yaml:"latency_threshold_ms"`
	StartedAt          time.Time            `json:"started_at" yaml:"started_at"`
	FinishedAt         time.Time            `json:"finished_at" yaml:"finished_at"`
	Steps              []metrics.StepResult `json:"steps" yaml:"steps"`
	MaxSupportedUsers  int                  `json:"max_supported_users,omitempty" yaml:"max_supported_users,omitempty"`
	Passed             bool                 `json:"passed" yaml:"passed"`
	Interrupted        bool                 `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	System             *sysinfo.Info        `json:"system,omitempty" yaml:"system,omitempty"`
}

// NewRunID returns a lexically sortable run identifier.
func NewRunID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// WithCapacity fills r from an escalating run. The run passes when at least
// the first step passed.
func (r Report) WithCapacity(res step.CapacityResult) Report {
	r.Mode = ModeCapacity
	r.Steps = res.Steps
	r.MaxSupportedUsers = res.MaxSupportedUsers
	r.Interrupted = res.Interrupted
	r.Passed = res.MaxSupportedUsers > 0
	return r
}

// WithStep fills r from a single fixed step.
func (r Report) WithStep(res metrics.StepResult) Report {
	r.Mode = ModeFixed
	r.Steps = []metrics.StepResult{res}
	r.MaxSupportedUsers = 0
	r.Interrupted = res.Interrupted
	r.Passed = res.Passed
	return r
}

// Duration returns the wall-clock length of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type styles struct {
	title lipgloss.Style
	pass  lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

// newStyles binds styles to w so colour is only emitted on terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true),
		pass:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("214")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

func (s styles) verdict(passed bool) string {
	if passed {
		return s.pass.Render("PASS")
	}
	return s.fail.Render("FAIL")
}

// PrintReport outputs a human-readable summary of the whole run.
func PrintReport(w io.Writer, r Report) {
	st := newStyles(w)

	fmt.Fprintf(w, "\n%s\n", st.title.Render("=== Stress Test Results ==="))
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Mode:              %s (%s probe, %s shape)\n", r.Mode, r.Probe, r.LoadShape)
	fmt.Fprintf(w, "Targets:           %d URL(s)\n", len(r.URLs))
	fmt.Fprintf(w, "Thresholds:        success >= %s%%, avg <= %dms\n", formatFloat(r.SuccessThreshold), r.LatencyThresholdMs)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(w, "Duration:          %s\n", d.Round(time.Millisecond))
	}
	if r.System != nil {
		fmt.Fprintf(w, "Host:              %s/%s, %d cores, %s memory\n",
			r.System.OS, r.System.Arch, r.System.CPUCores, sysinfo.FormatBytes(r.System.MemTotal))
	}

	for _, s := range r.Steps {
		printStep(w, st, s)
	}

	if r.Mode == ModeCapacity {
		printCapacitySummary(w, st, r)
	}

	fmt.Fprintf(w, "\nResult:            %s", st.verdict(r.Passed))
	if r.Interrupted {
		fmt.Fprintf(w, " %s", st.warn.Render("(interrupted)"))
	}
	fmt.Fprintln(w)
}

// PrintStepReport outputs the breakdown of one step.
func PrintStepReport(w io.Writer, s metrics.StepResult) {
	printStep(w, newStyles(w), s)
}

func printStep(w io.Writer, st styles, s metrics.StepResult) {
	header := fmt.Sprintf("--- Step %d: %d users ---", s.Step, s.Users)
	fmt.Fprintf(w, "\n%s %s", st.title.Render(header), st.verdict(s.Passed))
	if s.Interrupted {
		fmt.Fprintf(w, " %s", st.warn.Render("(interrupted)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Requests:    %d\n", s.TotalRequests)
	fmt.Fprintf(w, "Successful:        %d\n", s.SuccessfulRequests)
	fmt.Fprintf(w, "Failed:            %d\n", s.FailedRequests)
	fmt.Fprintf(w, "Success Rate:      %d%%\n", s.SuccessRate)
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration())
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", s.RequestsPerSecond)

	fmt.Fprintln(w, "\nResponse Time:")
	fmt.Fprintf(w, "  Avg:             %dms\n", s.AvgResponseTime)
	fmt.Fprintf(w, "  Min:             %dms\n", s.MinResponseTime)
	fmt.Fprintf(w, "  Max:             %dms\n", s.MaxResponseTime)
	fmt.Fprintf(w, "  P50:             %dms\n", s.P50ResponseTime)
	fmt.Fprintf(w, "  P90:             %dms\n", s.P90ResponseTime)
	fmt.Fprintf(w, "  P99:             %dms\n", s.P99ResponseTime)

	if s.SuccessfulRequests > 0 {
		fmt.Fprintln(w, "\nResponse Time Buckets:")
		for _, label := range metrics.BucketLabels {
			fmt.Fprintf(w, "  %-10s %d\n", label, s.ResponseTimeBuckets[label])
		}
	}

	if len(s.Paths) > 0 {
		fmt.Fprintln(w, "\nPath Breakdown:")
		for _, p := range metrics.SortedPaths(s.Paths) {
			fmt.Fprintf(w, "  - %s%s: requests=%d, success=%d%%, avg=%dms\n",
				p.Domain, p.Path, p.Requests, p.SuccessRate, p.AvgResponseTime)
		}
	}

	if rows := metrics.SortedErrors(s.ErrorTypes); len(rows) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Type, row.Count)
			for _, ex := range row.Examples {
				fmt.Fprintf(w, "    %s %s\n", st.dim.Render(ex.URL), ex.Message)
			}
		}
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, t := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", t.Message)
		}
	}
}

func printCapacitySummary(w io.Writer, st styles, r Report) {
	fmt.Fprintf(w, "\n%s\n", st.title.Render("=== Capacity Summary ==="))
	fmt.Fprintf(w, "%-6s %-7s %-9s %-8s %-9s %-8s %s\n", "Step", "Users", "Requests", "Success", "Avg(ms)", "RPS", "Result")
	for _, s := range r.Steps {
		fmt.Fprintf(w, "%-6d %-7d %-9d %-8s %-9d %-8.2f %s\n",
			s.Step, s.Users, s.TotalRequests, fmt.Sprintf("%d%%", s.SuccessRate),
			s.AvgResponseTime, s.RequestsPerSecond, st.verdict(s.Passed))
	}
	if r.MaxSupportedUsers > 0 {
		fmt.Fprintf(w, "\nMaximum supported users: %s\n", st.pass.Render(fmt.Sprint(r.MaxSupportedUsers)))
	} else {
		fmt.Fprintf(w, "\nMaximum supported users: %s\n", st.fail.Render("0 (first step failed)"))
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func formatFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
