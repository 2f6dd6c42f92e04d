package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type Mode string

const (
	ModeCapacity Mode = "capacity"
	ModeFixed    Mode = "fixed"
)

// LoadShape decides how work items are generated for a step.
type LoadShape string

const (
	// LoadShapeSample gives every synthetic user one uniformly sampled URL.
	LoadShapeSample LoadShape = "sample"
	// LoadShapeCross gives every synthetic user every URL.
	LoadShapeCross LoadShape = "cross"
)

type ProbeKind string

const (
	ProbeHTTP    ProbeKind = "http"
	ProbeBrowser ProbeKind = "browser"
)

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type Config struct {
	Domains          map[string][]string `mapstructure:"domains"`
	Mode             Mode                `mapstructure:"mode"`
	LoadShape        LoadShape           `mapstructure:"load_shape"`
	Probe            ProbeKind           `mapstructure:"probe"`
	Users            int                 `mapstructure:"users"`
	MinUsers         int                 `mapstructure:"min_users"`
	MaxUsers         int                 `mapstructure:"max_users"`
	StepSize         int                 `mapstructure:"step_size"`
	ConcurrencyCap   int                 `mapstructure:"concurrency_cap"`
	UserDelayMin     time.Duration       `mapstructure:"user_delay_min"`
	UserDelayMax     time.Duration       `mapstructure:"user_delay_max"`
	SuccessThreshold float64             `mapstructure:"success_threshold"` // percent
	LatencyThreshold time.Duration       `mapstructure:"latency_threshold"`
	Timeout          time.Duration       `mapstructure:"timeout"`
	Retries          int                 `mapstructure:"retries"`
	RetryDelay       time.Duration       `mapstructure:"retry_delay"`
	UserAgent        string              `mapstructure:"user_agent"`
	Headers          map[string]string   `mapstructure:"headers"`
	MaxAssets        int                 `mapstructure:"max_assets"`
	InteractionDelay time.Duration       `mapstructure:"interaction_delay"`
	StepCooldown     time.Duration       `mapstructure:"step_cooldown"`
	Thresholds       []string            `mapstructure:"thresholds"`
	JSONOutput       bool                `mapstructure:"json_output"`
	SystemInfo       bool                `mapstructure:"system_info"`
	Arrival          ArrivalConfig       `mapstructure:"arrival"`
	Output           OutputConfig        `mapstructure:"output"`
	Log              LogConfig           `mapstructure:"log"`
	Tracing          TracingConfig       `mapstructure:"tracing"`
	ConfigFile       string              `mapstructure:"-"`
}

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
	Rate  int          `mapstructure:"rate"` // visits per second, 0 means unlimited
}

type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	JSON       bool   `mapstructure:"json"`
	YAML       bool   `mapstructure:"yaml"`
	HTML       bool   `mapstructure:"html"`
	Text       bool   `mapstructure:"text"`
	Prometheus bool   `mapstructure:"prometheus"`
}

// Enabled reports whether any report file should be written.
func (o OutputConfig) Enabled() bool {
	return o.JSON || o.YAML || o.HTML || o.Text || o.Prometheus
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be produced at all.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// Default returns the configuration used before files and flags are applied.
func Default() Config {
	return Config{
		Domains:          map[string][]string{},
		Mode:             ModeCapacity,
		Probe:            ProbeHTTP,
		Users:            10,
		MinUsers:         20,
		MaxUsers:         200,
		StepSize:         20,
		ConcurrencyCap:   15,
		UserDelayMin:     100 * time.Millisecond,
		UserDelayMax:     time.Second,
		SuccessThreshold: 95,
		LatencyThreshold: 3 * time.Second,
		Timeout:          30 * time.Second,
		Retries:          2,
		RetryDelay:       time.Second,
		UserAgent:        DefaultUserAgent,
		Headers:          map[string]string{},
		MaxAssets:        10,
		InteractionDelay: 500 * time.Millisecond,
		StepCooldown:     2 * time.Second,
		Arrival:          ArrivalConfig{Model: ArrivalModelUniform},
		Output:           OutputConfig{Dir: "reports"},
		Log:              LogConfig{Level: "info", Format: "text"},
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 stresstest"

// EffectiveShape resolves the load shape, defaulting by mode.
func (c Config) EffectiveShape() LoadShape {
	if c.LoadShape != "" {
		return c.LoadShape
	}
	if c.Mode == ModeFixed {
		return LoadShapeCross
	}
	return LoadShapeSample
}

// URLs flattens Domains into absolute target URLs in a stable order.
func (c Config) URLs() []string {
	bases := make([]string, 0, len(c.Domains))
	for base := range c.Domains {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	var urls []string
	seen := map[string]bool{}
	for _, base := range bases {
		paths := c.Domains[base]
		if len(paths) == 0 {
			paths = []string{"/"}
		}
		for _, p := range paths {
			u := JoinURL(base, p)
			if seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// JoinURL joins a base URL and a sub path with exactly one slash.
func JoinURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return base + "/"
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.Domains) == 0 {
		issues = append(issues, "at least one domain is required (use --url, --domain or a config file)")
	}
	issues = append(issues, validateDomains(c.Domains)...)

	switch c.Mode {
	case ModeCapacity:
		if c.MinUsers < 1 {
			issues = append(issues, "min_users must be >= 1")
		}
		if c.MaxUsers < c.MinUsers {
			issues = append(issues, "max_users must be >= min_users")
		}
		if c.StepSize < 1 {
			issues = append(issues, "step_size must be >= 1")
		}
	case ModeFixed:
		if c.Users < 1 {
			issues = append(issues, "users must be >= 1")
		}
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not supported (use capacity or fixed)", c.Mode))
	}

	switch c.LoadShape {
	case "", LoadShapeSample, LoadShapeCross:
	default:
		issues = append(issues, fmt.Sprintf("load_shape %q is not supported (use sample or cross)", c.LoadShape))
	}

	switch c.Probe {
	case ProbeHTTP, ProbeBrowser:
	default:
		issues = append(issues, fmt.Sprintf("probe %q is not supported (use http or browser)", c.Probe))
	}

	if c.ConcurrencyCap < 1 {
		issues = append(issues, "concurrency_cap must be >= 1")
	}
	if c.UserDelayMin < 0 {
		issues = append(issues, "user_delay_min must be >= 0")
	}
	if c.UserDelayMax < c.UserDelayMin {
		issues = append(issues, "user_delay_max must be >= user_delay_min")
	}
	if c.SuccessThreshold < 0 || c.SuccessThreshold > 100 {
		issues = append(issues, "success_threshold must be between 0 and 100")
	}
	if c.LatencyThreshold <= 0 {
		issues = append(issues, "latency_threshold must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		issues = append(issues, "retry_delay must be >= 0")
	}
	if c.MaxAssets < 0 {
		issues = append(issues, "max_assets must be >= 0")
	}
	if c.InteractionDelay < 0 {
		issues = append(issues, "interaction_delay must be >= 0")
	}
	if c.StepCooldown < 0 {
		issues = append(issues, "step_cooldown must be >= 0")
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if c.Output.Enabled() && strings.TrimSpace(c.Output.Dir) == "" {
		issues = append(issues, "output: dir is required when report files are enabled")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings lists non-fatal concerns about the configuration.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Mode == ModeCapacity && c.MaxUsers > 1000 {
		warnings = append(warnings, fmt.Sprintf("High max_users configured (%d). Ensure you have authorization to test the target system.", c.MaxUsers))
	}
	if c.Mode == ModeFixed && c.Users > 1000 {
		warnings = append(warnings, fmt.Sprintf("High user count configured (%d). Ensure you have authorization to test the target system.", c.Users))
	}
	if c.ConcurrencyCap > 50 {
		warnings = append(warnings, fmt.Sprintf("concurrency_cap %d is high; browser-style probes may exhaust local resources", c.ConcurrencyCap))
	}
	if c.Tracing.Insecure && c.Tracing.Endpoint != "" {
		warnings = append(warnings, "Tracing exporter TLS is disabled (insecure: true).")
	}
	return warnings
}

func validateDomains(domains map[string][]string) []string {
	var issues []string
	bases := make([]string, 0, len(domains))
	for base := range domains {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	for _, base := range bases {
		u, err := url.Parse(strings.TrimSpace(base))
		if err != nil {
			issues = append(issues, fmt.Sprintf("domains[%s]: %v", base, err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			issues = append(issues, fmt.Sprintf("domains[%s]: scheme must be http or https", base))
		}
		if u.Host == "" {
			issues = append(issues, fmt.Sprintf("domains[%s]: host is required", base))
		}
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	var issues []string
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", model))
	}
	if arr.Rate < 0 {
		issues = append(issues, "arrival rate must be >= 0")
	}
	return issues
}

func validateLogConfig(lc LogConfig) []string {
	var issues []string
	switch strings.ToLower(lc.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("log: level %q is not supported", lc.Level))
	}
	switch strings.ToLower(lc.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format %q is not supported (use text or json)", lc.Format))
	}
	return issues
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tc.SampleRate))
	}
	switch strings.ToLower(tc.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol %q is not supported (use grpc or http)", tc.Protocol))
	}
	return issues
}
