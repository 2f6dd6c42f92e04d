package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
	"github.com/kuroyamii/playwright-stress-test/internal/step"
	"github.com/kuroyamii/playwright-stress-test/internal/sysinfo"
)

func sampleStep(n, users int, passed bool) metrics.StepResult {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return metrics.StepResult{
		Step:               n,
		Users:              users,
		TotalRequests:      users,
		SuccessfulRequests: users - 1,
		FailedRequests:     1,
		SuccessRate:        95,
		AvgResponseTime:    420,
		MinResponseTime:    120,
		MaxResponseTime:    2100,
		P50ResponseTime:    380,
		P90ResponseTime:    900,
		P99ResponseTime:    2000,
		RequestsPerSecond:  6.67,
		ResponseTimeBuckets: map[string]int{
			metrics.BucketUnder500ms: users - 2,
			metrics.Bucket1sTo3s:     1,
		},
		Paths: map[string]metrics.PathMetric{
			"https://shop.test/": {Domain: "https://shop.test", Path: "/", Requests: users, Successes: users - 1, SuccessRate: 95, AvgResponseTime: 420},
		},
		ErrorTypes: map[string]metrics.ErrorBucket{
			"Timeout": {Type: "Timeout", Count: 1, Examples: []metrics.ErrorExample{{URL: "https://shop.test/", Message: "timeout of 30000ms exceeded"}}},
		},
		ErrorsByPath: map[string][]metrics.PathError{
			"https://shop.test/": {{Type: "Timeout", Message: "timeout of 30000ms exceeded"}},
		},
		StartTime:  start,
		EndTime:    start.Add(3 * time.Second),
		DurationMs: 3000,
		Passed:     passed,
		Thresholds: []metrics.ThresholdOutcome{
			{Expression: "success_rate:pct >= 95", Actual: 95, Pass: true, Message: "✓ success_rate:pct >= 95: 95.00 >= 95.00"},
		},
	}
}

func sampleCapacityReport() Report {
	base := Report{
		RunID:              "01HZX3M8Q7W6K5D2V9T4B1N0CE",
		Probe:              "browser",
		LoadShape:          "sample",
		URLs:               []string{"https://shop.test/"},
		SuccessThreshold:   95,
		LatencyThresholdMs: 3000,
		StartedAt:          time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		FinishedAt:         time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
	}
	return base.WithCapacity(step.CapacityResult{
		Steps:             []metrics.StepResult{sampleStep(1, 20, true), sampleStep(2, 40, true), sampleStep(3, 60, false)},
		MaxSupportedUsers: 40,
	})
}

func TestNewRunID(t *testing.T) {
	now := time.Now()
	id := NewRunID(now)
	parsed, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), parsed.Time())
	assert.NotEqual(t, id, NewRunID(now))
}

func TestWithCapacity(t *testing.T) {
	r := sampleCapacityReport()
	assert.Equal(t, ModeCapacity, r.Mode)
	assert.Len(t, r.Steps, 3)
	assert.Equal(t, 40, r.MaxSupportedUsers)
	assert.True(t, r.Passed)

	floor := Report{}.WithCapacity(step.CapacityResult{Steps: []metrics.StepResult{sampleStep(1, 20, false)}})
	assert.False(t, floor.Passed)
}

func TestWithStep(t *testing.T) {
	s := sampleStep(1, 10, false)
	s.Interrupted = true
	r := Report{MaxSupportedUsers: 9}.WithStep(s)
	assert.Equal(t, ModeFixed, r.Mode)
	assert.False(t, r.Passed)
	assert.True(t, r.Interrupted)
	assert.Zero(t, r.MaxSupportedUsers)
}

func TestPrintReportCapacity(t *testing.T) {
	r := sampleCapacityReport()
	r.System = &sysinfo.Info{OS: "linux", Arch: "amd64", CPUCores: 8, MemTotal: 8 << 30}

	var buf bytes.Buffer
	PrintReport(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"Stress Test Results",
		"Run ID:            01HZX3M8Q7W6K5D2V9T4B1N0CE",
		"--- Step 3: 60 users --- FAIL",
		"Success Rate:      95%",
		"https://shop.test/: requests=60",
		"Timeout: 1",
		"timeout of 30000ms exceeded",
		"Capacity Summary",
		"Maximum supported users: 40",
		"linux/amd64, 8 cores, 8.0 GiB memory",
		"Result:            PASS",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "plain writers get no ANSI escapes")
}

func TestPrintReportFixedInterrupted(t *testing.T) {
	s := sampleStep(1, 10, false)
	s.Interrupted = true
	var buf bytes.Buffer
	PrintReport(&buf, Report{Probe: "http", LoadShape: "cross"}.WithStep(s))
	out := buf.String()

	assert.Contains(t, out, "(interrupted)")
	assert.Contains(t, out, "Result:            FAIL")
	assert.NotContains(t, out, "Capacity Summary")
}

func TestPrintReportCapacityFloorFailure(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, Report{}.WithCapacity(step.CapacityResult{Steps: []metrics.StepResult{sampleStep(1, 20, false)}}))
	assert.Contains(t, buf.String(), "Maximum supported users: 0 (first step failed)")
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSONReport(&buf, sampleCapacityReport()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "capacity", decoded["mode"])
	assert.EqualValues(t, 40, decoded["max_supported_users"])
	steps := decoded["steps"].([]interface{})
	require.Len(t, steps, 3)
	first := steps[0].(map[string]interface{})
	assert.EqualValues(t, 420, first["avg_response_time_ms"])
	assert.Contains(t, first["response_time_buckets"], "< 500ms")
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAMLReport(&buf, sampleCapacityReport()))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "run_id: 01HZX3M8Q7W6K5D2V9T4B1N0CE"))

	var decoded struct {
		Mode  string `yaml:"mode"`
		Steps []struct {
			Users  int  `yaml:"users"`
			Passed bool `yaml:"passed"`
		} `yaml:"steps"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "capacity", decoded.Mode)
	require.Len(t, decoded.Steps, 3)
	assert.Equal(t, 60, decoded.Steps[2].Users)
	assert.False(t, decoded.Steps[2].Passed)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "95", formatFloat(95))
	assert.Equal(t, "99.5", formatFloat(99.5))
	assert.Equal(t, "0.25", formatFloat(0.25))
}
