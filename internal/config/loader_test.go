package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithoutArgumentsRequestsHelp(t *testing.T) {
	_, err := NewLoader().Load(nil)
	require.ErrorIs(t, err, ErrHelpRequested)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfigFile(t, "stress.yaml", `
domains:
  https://example.com:
    - /
    - /pricing
  https://docs.example.com:
    - /getting-started
mode: capacity
min_users: 10
max_users: 50
step_size: 10
concurrency_cap: 8
user_delay_min_ms: 200
user_delay_max_ms: 1500
success_threshold: 90
latency_threshold_ms: 2500
timeout: 45
retries: 1
headers:
  x-test-run: nightly
thresholds:
  - "response_time:p90 < 4000"
arrival:
  model: poisson
  rate: 25
output:
  dir: out
  reports: [json, html]
log:
  level: debug
  format: json
tracing:
  endpoint: localhost:4317
  sample_rate: 0.5
  insecure: true
`)

	cfg, err := NewLoader().Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, []string{"/", "/pricing"}, cfg.Domains["https://example.com"])
	assert.Equal(t, []string{"/getting-started"}, cfg.Domains["https://docs.example.com"])
	assert.Equal(t, 10, cfg.MinUsers)
	assert.Equal(t, 50, cfg.MaxUsers)
	assert.Equal(t, 10, cfg.StepSize)
	assert.Equal(t, 8, cfg.ConcurrencyCap)
	assert.Equal(t, 200*time.Millisecond, cfg.UserDelayMin)
	assert.Equal(t, 1500*time.Millisecond, cfg.UserDelayMax)
	assert.Equal(t, 90.0, cfg.SuccessThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.LatencyThreshold)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, "nightly", cfg.Headers["X-Test-Run"])
	assert.Equal(t, []string{"response_time:p90 < 4000"}, cfg.Thresholds)
	assert.Equal(t, ArrivalModelPoisson, cfg.Arrival.Model)
	assert.Equal(t, 25, cfg.Arrival.Rate)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.JSON)
	assert.True(t, cfg.Output.HTML)
	assert.False(t, cfg.Output.YAML)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
	assert.True(t, cfg.Tracing.Insecure)
	require.NoError(t, cfg.Validate())
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, "stress.json", `{"domains": {"https://example.com": ["/"]}, "max_users": 40, "mode": "capacity"}`)

	cfg, err := NewLoader().Load([]string{
		"--config", path,
		"--max-users", "80",
		"--mode", "FIXED",
		"--users", "12",
		"--url", "https://example.com/contact",
		"--domain", "https://blog.example.com=/,/posts",
		"--header", "authorization=Bearer abc",
		"--report", "yaml,prometheus",
		"--latency-threshold", "1500ms",
	})
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.MaxUsers)
	assert.Equal(t, ModeFixed, cfg.Mode)
	assert.Equal(t, 12, cfg.Users)
	assert.Equal(t, []string{"/", "/contact"}, cfg.Domains["https://example.com"])
	assert.Equal(t, []string{"/", "/posts"}, cfg.Domains["https://blog.example.com"])
	assert.Equal(t, "Bearer abc", cfg.Headers["Authorization"])
	assert.True(t, cfg.Output.YAML)
	assert.True(t, cfg.Output.Prometheus)
	assert.Equal(t, 1500*time.Millisecond, cfg.LatencyThreshold)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "stress.yaml", "domains:\n  https://example.com: ['/']\nmin_users: 5\n")
	env := map[string]string{"STRESSTEST_MIN_USERS": "15", "STRESSTEST_PROBE": "browser"}
	loader := Loader{lookupEnv: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}

	cfg, err := loader.Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.MinUsers)
	assert.Equal(t, ProbeBrowser, cfg.Probe)
}

func TestLoadRejectsMalformedHeader(t *testing.T) {
	_, err := NewLoader().Load([]string{"--url", "https://example.com", "--header", "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestLoadRejectsUnknownReportKind(t *testing.T) {
	_, err := NewLoader().Load([]string{"--url", "https://example.com", "--report", "pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported kind "pdf"`)
}

func TestParseDomainFlag(t *testing.T) {
	base, paths, err := parseDomainFlag("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", base)
	assert.Equal(t, []string{"/"}, paths)

	_, _, err = parseDomainFlag("=/x")
	require.Error(t, err)
}
