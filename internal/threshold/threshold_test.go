package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
)

func sampleStep() metrics.StepResult {
	return metrics.StepResult{
		Step:               2,
		Users:              40,
		TotalRequests:      1000,
		SuccessfulRequests: 980,
		FailedRequests:     20,
		SuccessRate:        98,
		AvgResponseTime:    100,
		MinResponseTime:    10,
		MaxResponseTime:    500,
		P50ResponseTime:    80,
		P90ResponseTime:    200,
		P99ResponseTime:    400,
		RequestsPerSecond:  12.5,
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "p90 latency threshold",
			input: "response_time:p90 < 2000",
			want:  Threshold{Metric: "response_time", Aggregate: "p90", Operator: "<", Value: 2000, Raw: "response_time:p90 < 2000"},
		},
		{
			name:  "success rate percentage",
			input: "success_rate:pct >= 99",
			want:  Threshold{Metric: "success_rate", Aggregate: "pct", Operator: ">=", Value: 99, Raw: "success_rate:pct >= 99"},
		},
		{
			name:  "failure rate without spaces",
			input: "failures:rate<0.01",
			want:  Threshold{Metric: "failures", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "failures:rate<0.01"},
		},
		{
			name:  "requests rate",
			input: "  requests:rate > 5 ",
			want:  Threshold{Metric: "requests", Aggregate: "rate", Operator: ">", Value: 5, Raw: "requests:rate > 5"},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing operator", input: "response_time:p90 500", wantError: true},
		{name: "unknown metric", input: "latency:p90 < 500", wantError: true},
		{name: "aggregate of another metric", input: "success_rate:p90 < 500", wantError: true},
		{name: "p95 not tracked", input: "response_time:p95 < 500", wantError: true},
		{name: "invalid operator", input: "response_time:p90 << 500", wantError: true},
		{name: "not a number", input: "response_time:p90 < abc", wantError: true},
		{name: "bad decimal", input: "failures:rate < 0.1.2", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple([]string{"success_rate:pct >= 99", "failures:count < 3"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 thresholds, got %d", len(got))
	}

	got, err = ParseMultiple(nil)
	if err != nil || got != nil {
		t.Fatalf("expected nil result for empty input, got %v, %v", got, err)
	}

	_, err = ParseMultiple([]string{"failures:count < 3", "bogus", "requests:p90 < 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("expected every bad entry reported, got %v", err)
	}
}

func TestCore(t *testing.T) {
	core := Core(95, 3*time.Second)
	if len(core) != 2 {
		t.Fatalf("expected 2 core thresholds, got %d", len(core))
	}
	if core[0].Raw != "success_rate:pct >= 95" {
		t.Errorf("unexpected success threshold %q", core[0].Raw)
	}
	if core[1].Raw != "response_time:avg <= 3000" {
		t.Errorf("unexpected latency threshold %q", core[1].Raw)
	}
	for _, c := range core {
		parsed, err := Parse(c.Raw)
		if err != nil {
			t.Fatalf("core threshold %q does not round trip: %v", c.Raw, err)
		}
		if parsed != c {
			t.Errorf("parsed %+v, want %+v", parsed, c)
		}
	}
}

func TestCoreBoundariesAreInclusive(t *testing.T) {
	step := sampleStep()
	step.SuccessRate = 95
	step.AvgResponseTime = 3000

	results := NewEvaluator(Core(95, 3*time.Second)).Evaluate(step)
	if !AllPass(results) {
		t.Fatalf("expected boundary values to pass: %+v", results)
	}

	step.AvgResponseTime = 3001
	results = NewEvaluator(Core(95, 3*time.Second)).Evaluate(step)
	if AllPass(results) {
		t.Fatal("expected latency above the limit to fail")
	}
	if results[0].Pass != true || results[1].Pass != false {
		t.Errorf("unexpected pass flags: %+v", results)
	}
}

func TestEvaluator(t *testing.T) {
	step := sampleStep()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "all thresholds pass",
			thresholds: []string{"response_time:p99 < 500", "failures:rate < 0.05", "requests:rate > 5"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "some thresholds fail",
			thresholds: []string{"response_time:p99 < 300", "failures:rate < 0.01", "requests:rate > 5"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "latency percentiles",
			thresholds: []string{"response_time:p50 < 100", "response_time:p90 < 250", "response_time:p99 <= 400"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "avg min and max latency",
			thresholds: []string{"response_time:avg < 150", "response_time:max < 600", "response_time:min > 5"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "success rate",
			thresholds: []string{"success_rate:pct >= 98", "success_rate:pct >= 99"},
			wantPass:   []bool{true, false},
		},
		{
			name:       "counts",
			thresholds: []string{"failures:count < 3", "requests:count == 1000"},
			wantPass:   []bool{false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			results := NewEvaluator(thresholds).Evaluate(step)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
		})
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(sampleStep()); got != nil {
		t.Fatalf("expected nil results, got %v", got)
	}
	if !AllPass(nil) {
		t.Fatal("expected empty result set to pass")
	}
}

func TestEvaluatorReportsExtractionErrors(t *testing.T) {
	results := NewEvaluator([]Threshold{{Metric: "bogus", Aggregate: "avg", Operator: "<", Raw: "bogus:avg < 1"}}).Evaluate(sampleStep())
	if len(results) != 1 || results[0].Pass {
		t.Fatalf("expected a failing result, got %+v", results)
	}
	if !strings.HasPrefix(results[0].Message, "error:") {
		t.Errorf("unexpected message %q", results[0].Message)
	}
}

func TestFailureRateOnEmptyStep(t *testing.T) {
	got, err := extractMetricValue(Threshold{Metric: MetricFailures, Aggregate: "rate"}, metrics.StepResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestOutcomes(t *testing.T) {
	results := NewEvaluator(Core(99, time.Second)).Evaluate(sampleStep())
	outcomes := Outcomes(results)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Expression != "success_rate:pct >= 99" || outcomes[0].Pass || outcomes[0].Actual != 98 {
		t.Errorf("unexpected success outcome %+v", outcomes[0])
	}
	if !outcomes[1].Pass || !strings.HasPrefix(outcomes[1].Message, "✓") {
		t.Errorf("unexpected latency outcome %+v", outcomes[1])
	}
	if Outcomes(nil) != nil {
		t.Error("expected nil outcomes for nil results")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
		{"unknown operator", 1, "!=", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareValues(tt.actual, tt.operator, tt.expected); got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
