package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stresstest",
		Short:         "Escalating load test driven by simulated browser users",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	defaults := Default()

	// Targets
	flags.StringSlice("url", nil, "Absolute target URL (repeatable)")
	flags.StringArray("domain", nil, "Domain and sub paths in base=/a,/b form (repeatable)")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("user-agent", defaults.UserAgent, "User-Agent sent by synthetic users")

	// Load shape
	flags.String("mode", string(defaults.Mode), "Run mode: 'capacity' (escalating steps) or 'fixed' (single step)")
	flags.String("load-shape", "", "Work item shape: 'sample' (one URL per user) or 'cross' (all URLs per user)")
	flags.String("probe", string(defaults.Probe), "Probe variant: 'http' or 'browser'")
	flags.IntP("users", "u", defaults.Users, "Synthetic users for fixed mode")
	flags.Int("min-users", defaults.MinUsers, "First capacity step user count")
	flags.Int("max-users", defaults.MaxUsers, "Upper bound for capacity steps")
	flags.Int("step-size", defaults.StepSize, "User count increment between capacity steps")
	flags.IntP("concurrency-cap", "c", defaults.ConcurrencyCap, "Maximum probes in flight at once")
	flags.Duration("user-delay-min", defaults.UserDelayMin, "Minimum random delay before each visit")
	flags.Duration("user-delay-max", defaults.UserDelayMax, "Maximum random delay before each visit")
	flags.Duration("step-cooldown", defaults.StepCooldown, "Pause between capacity steps")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used when pacing visits (uniform or poisson)")
	flags.Int("arrival-rate", 0, "Visits admitted per second (0 means unlimited)")

	// Probe behaviour
	flags.Duration("timeout", defaults.Timeout, "Per-visit timeout")
	flags.Int("retries", defaults.Retries, "Retries per visit when no response was obtained")
	flags.Duration("retry-delay", defaults.RetryDelay, "Delay between visit attempts")
	flags.Int("max-assets", defaults.MaxAssets, "Subresources fetched per page by the browser probe")
	flags.Duration("interaction-delay", defaults.InteractionDelay, "Simulated interaction pause for the browser probe")

	// Thresholds
	flags.Float64("success-threshold", defaults.SuccessThreshold, "Minimum success rate percentage for a step to pass")
	flags.Duration("latency-threshold", defaults.LatencyThreshold, "Maximum average response time for a step to pass")
	flags.StringSlice("threshold", nil, "Additional thresholds (repeatable, e.g. 'response_time:p90 < 2000')")

	// Output
	flags.Bool("json-output", false, "Emit the final result as JSON on stdout")
	flags.String("output-dir", defaults.Output.Dir, "Directory for report files")
	flags.StringSlice("report", nil, "Report files to write: text, json, yaml, html, prometheus")
	flags.Bool("system-info", false, "Log host system information before the run")
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	flags.String("log-format", defaults.Log.Format, "Log format: text or json")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; enables tracing")
	flags.String("tracing-protocol", defaults.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
	flags.Float64("tracing-sample-rate", defaults.Tracing.SampleRate, "Trace sample ratio between 0 and 1")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into visits")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies changed command-line flags on top of file settings.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"user-agent":           &cfg.UserAgent,
		"log-level":            &cfg.Log.Level,
		"log-format":           &cfg.Log.Format,
		"output-dir":           &cfg.Output.Dir,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	intFlags := map[string]*int{
		"users":           &cfg.Users,
		"min-users":       &cfg.MinUsers,
		"max-users":       &cfg.MaxUsers,
		"step-size":       &cfg.StepSize,
		"concurrency-cap": &cfg.ConcurrencyCap,
		"arrival-rate":    &cfg.Arrival.Rate,
		"retries":         &cfg.Retries,
		"max-assets":      &cfg.MaxAssets,
	}
	for name, dst := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	durationFlags := map[string]*time.Duration{
		"user-delay-min":    &cfg.UserDelayMin,
		"user-delay-max":    &cfg.UserDelayMax,
		"step-cooldown":     &cfg.StepCooldown,
		"timeout":           &cfg.Timeout,
		"retry-delay":       &cfg.RetryDelay,
		"interaction-delay": &cfg.InteractionDelay,
		"latency-threshold": &cfg.LatencyThreshold,
	}
	for name, dst := range durationFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	boolFlags := map[string]*bool{
		"json-output":       &cfg.JSONOutput,
		"system-info":       &cfg.SystemInfo,
		"tracing-insecure":  &cfg.Tracing.Insecure,
		"tracing-propagate": &cfg.Tracing.Propagate,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("success-threshold") {
		val, err := fs.GetFloat64("success-threshold")
		if err != nil {
			return err
		}
		cfg.SuccessThreshold = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("load-shape") {
		val, err := fs.GetString("load-shape")
		if err != nil {
			return err
		}
		cfg.LoadShape = LoadShape(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("probe") {
		val, err := fs.GetString("probe")
		if err != nil {
			return err
		}
		cfg.Probe = ProbeKind(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("report") {
		val, err := fs.GetStringSlice("report")
		if err != nil {
			return err
		}
		if err := applyReportKinds(&cfg.Output, val); err != nil {
			return err
		}
	}

	headers, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	for _, entry := range headers {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("header must be in key=value format: %s", entry)
		}
		key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		cfg.Headers[key] = strings.TrimSpace(parts[1])
	}

	if fs.Changed("domain") {
		entries, err := fs.GetStringArray("domain")
		if err != nil {
			return err
		}
		for _, entry := range entries {
			base, paths, err := parseDomainFlag(entry)
			if err != nil {
				return err
			}
			cfg.Domains[base] = append(cfg.Domains[base], paths...)
		}
	}
	if fs.Changed("url") {
		urls, err := fs.GetStringSlice("url")
		if err != nil {
			return err
		}
		for _, raw := range urls {
			base, path, err := splitTargetURL(raw)
			if err != nil {
				return fmt.Errorf("url: %w", err)
			}
			cfg.Domains[base] = append(cfg.Domains[base], path)
		}
	}

	return nil
}

// parseDomainFlag parses "https://example.com=/,/about" into base and paths.
func parseDomainFlag(entry string) (string, []string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", nil, fmt.Errorf("domain cannot be empty")
	}
	base, rawPaths, found := strings.Cut(entry, "=")
	base = strings.TrimSpace(base)
	if base == "" {
		return "", nil, fmt.Errorf("domain must be in base=/path,/path form: %s", entry)
	}
	if !found || strings.TrimSpace(rawPaths) == "" {
		return base, []string{"/"}, nil
	}
	var paths []string
	for _, p := range strings.Split(rawPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return base, paths, nil
}

func applyReportKinds(out *OutputConfig, kinds []string) error {
	for _, kind := range kinds {
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case "":
		case "text", "txt":
			out.Text = true
		case "json":
			out.JSON = true
		case "yaml", "yml":
			out.YAML = true
		case "html":
			out.HTML = true
		case "prometheus", "prom":
			out.Prometheus = true
		case "all":
			out.Text, out.JSON, out.YAML, out.HTML, out.Prometheus = true, true, true, true, true
		default:
			return fmt.Errorf("report: unsupported kind %q", kind)
		}
	}
	return nil
}
