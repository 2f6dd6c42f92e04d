package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g. STRESSTEST_MAX_USERS.
const EnvPrefix = "STRESSTEST"

// keyDelimiter replaces viper's default "." so URL keys under domains stay flat.
const keyDelimiter = "::"

// Loader handles loading configuration from files, environment and command-line arguments.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// envKeys are the top-level settings that may be supplied through the environment.
var envKeys = []string{
	"mode", "load_shape", "probe", "users", "min_users", "max_users", "step_size",
	"concurrency_cap", "user_delay_min", "user_delay_max", "success_threshold",
	"latency_threshold", "timeout", "retries", "retry_delay", "user_agent",
	"max_assets", "interaction_delay", "step_cooldown", "json_output", "system_info",
}

// Load parses command-line arguments, the environment and an optional
// configuration file to produce a Config. Precedence: flags > env > file > defaults.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range envKeys {
		if l.lookupEnv != nil {
			if val, ok := l.lookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); ok {
				v.Set(key, val)
			}
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.UserAgent = strings.TrimSpace(cfg.UserAgent)
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "domains"); ok {
		domains, err := asDomains(raw)
		if err != nil {
			return fmt.Errorf("domains: %w", err)
		}
		for base, paths := range domains {
			cfg.Domains[base] = append(cfg.Domains[base], paths...)
		}
	}
	if raw, ok := lookupSetting(settings, "urls"); ok {
		urls, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("urls: %w", err)
		}
		for _, u := range urls {
			base, path, err := splitTargetURL(u)
			if err != nil {
				return fmt.Errorf("urls: %w", err)
			}
			cfg.Domains[base] = append(cfg.Domains[base], path)
		}
	}

	if raw, ok := lookupSetting(settings, "user_agent", "useragent", "user-agent"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("user_agent: %w", err)
		}
		cfg.UserAgent = val
	}

	if raw, ok := lookupSetting(settings, "mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "load_shape", "loadshape", "load-shape"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("load_shape: %w", err)
		}
		cfg.LoadShape = LoadShape(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "probe"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		cfg.Probe = ProbeKind(strings.ToLower(strings.TrimSpace(val)))
	}

	intFields := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Users, []string{"users"}},
		{&cfg.MinUsers, []string{"min_users", "minusers", "min-users"}},
		{&cfg.MaxUsers, []string{"max_users", "maxusers", "max-users"}},
		{&cfg.StepSize, []string{"step_size", "stepsize", "step-size"}},
		{&cfg.ConcurrencyCap, []string{"concurrency_cap", "concurrencycap", "concurrency-cap", "concurrency"}},
		{&cfg.Retries, []string{"retries"}},
		{&cfg.MaxAssets, []string{"max_assets", "maxassets", "max-assets"}},
	}
	for _, f := range intFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if err := applyDurations(cfg, settings); err != nil {
		return err
	}

	if raw, ok := lookupSetting(settings, "success_threshold", "successthreshold", "success-threshold", "success_threshold_pct"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("success_threshold: %w", err)
		}
		cfg.SuccessThreshold = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	boolFields := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.JSONOutput, []string{"json_output", "jsonoutput", "json-output"}},
		{&cfg.SystemInfo, []string{"system_info", "systeminfo", "system-info"}},
	}
	for _, f := range boolFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arr, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		cfg.Arrival = arr
	}
	if raw, ok := lookupSetting(settings, "output"); ok {
		if err := parseOutput(&cfg.Output, raw); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "log"); ok {
		if err := parseLog(&cfg.Log, raw); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// applyDurations reads every duration setting. Keys ending in _ms take
// bare numbers as milliseconds, the rest as seconds.
func applyDurations(cfg *Config, settings map[string]interface{}) error {
	fields := []struct {
		dst      *time.Duration
		seconds  []string
		millisec []string
	}{
		{&cfg.UserDelayMin, []string{"user_delay_min", "userdelaymin"}, []string{"user_delay_min_ms", "userdelayminms"}},
		{&cfg.UserDelayMax, []string{"user_delay_max", "userdelaymax"}, []string{"user_delay_max_ms", "userdelaymaxms"}},
		{&cfg.LatencyThreshold, []string{"latency_threshold", "latencythreshold"}, []string{"latency_threshold_ms", "latencythresholdms"}},
		{&cfg.Timeout, []string{"timeout"}, []string{"timeout_ms", "timeoutms"}},
		{&cfg.RetryDelay, []string{"retry_delay", "retrydelay"}, []string{"retry_delay_ms", "retrydelayms"}},
		{&cfg.InteractionDelay, []string{"interaction_delay", "interactiondelay"}, []string{"interaction_delay_ms", "interactiondelayms"}},
		{&cfg.StepCooldown, []string{"step_cooldown", "stepcooldown"}, []string{"step_cooldown_ms", "stepcooldownms"}},
	}
	for _, f := range fields {
		if raw, ok := lookupSetting(settings, f.seconds...); ok {
			d, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.seconds[0], err)
			}
			*f.dst = d
		}
		if raw, ok := lookupSetting(settings, f.millisec...); ok {
			d, err := asMillis(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.millisec[0], err)
			}
			*f.dst = d
		}
	}
	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	arr := ArrivalConfig{Model: ArrivalModelUniform}
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return arr, err
	}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return arr, fmt.Errorf("model: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			arr.Model = ArrivalModel(val)
		}
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return arr, fmt.Errorf("rate: %w", err)
		}
		arr.Rate = val
	}
	return arr, nil
}

func parseOutput(out *OutputConfig, value interface{}) error {
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("dir: %w", err)
		}
		out.Dir = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "reports", "formats"); ok {
		kinds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("reports: %w", err)
		}
		if err := applyReportKinds(out, kinds); err != nil {
			return err
		}
	}
	flags := map[string]*bool{
		"json":       &out.JSON,
		"yaml":       &out.YAML,
		"html":       &out.HTML,
		"text":       &out.Text,
		"prometheus": &out.Prometheus,
	}
	for key, dst := range flags {
		if raw, ok := lookupSetting(settings, key); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
	}
	return nil
}

func parseLog(lc *LogConfig, value interface{}) error {
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		lc.Level = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		lc.Format = strings.ToLower(strings.TrimSpace(val))
	}
	return nil
}

func parseTracing(tc *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return err
	}
	strs := map[string]*string{
		"endpoint":     &tc.Endpoint,
		"protocol":     &tc.Protocol,
		"service_name": &tc.ServiceName,
	}
	for key, dst := range strs {
		if raw, ok := lookupSetting(settings, key, strings.ReplaceAll(key, "_", "")); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	bools := map[string]*bool{
		"insecure":  &tc.Insecure,
		"propagate": &tc.Propagate,
	}
	for key, dst := range bools {
		if raw, ok := lookupSetting(settings, key); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
	}
	return nil
}
