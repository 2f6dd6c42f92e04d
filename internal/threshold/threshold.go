// Package threshold parses pass/fail assertions and evaluates them against a
// finalized step.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
)

const (
	MetricSuccessRate  = "success_rate"
	MetricResponseTime = "response_time"
	MetricRequests     = "requests"
	MetricFailures     = "failures"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "response_time", "success_rate"
	Aggregate string  // e.g., "p90", "avg", "pct", "rate"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a finalized step.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Core returns the two thresholds every step is judged by: a minimum success
// rate percentage and a maximum average response time.
func Core(successPct float64, latency time.Duration) []Threshold {
	success := Threshold{Metric: MetricSuccessRate, Aggregate: "pct", Operator: ">=", Value: successPct}
	success.Raw = fmt.Sprintf("%s:%s %s %s", success.Metric, success.Aggregate, success.Operator, formatValue(successPct))

	ms := float64(latency.Milliseconds())
	avg := Threshold{Metric: MetricResponseTime, Aggregate: "avg", Operator: "<=", Value: ms}
	avg.Raw = fmt.Sprintf("%s:%s %s %s", avg.Metric, avg.Aggregate, avg.Operator, formatValue(ms))

	return []Threshold{success, avg}
}

// Evaluate checks all thresholds against the provided step.
func (e *Evaluator) Evaluate(step metrics.StepResult) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, step))
	}
	return results
}

func (e *Evaluator) evaluateOne(t Threshold, step metrics.StepResult) Result {
	actual, err := extractMetricValue(t, step)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// AllPass reports whether every result passed. An empty set passes.
func AllPass(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Outcomes converts results into the form stored on a step result.
func Outcomes(results []Result) []metrics.ThresholdOutcome {
	if len(results) == 0 {
		return nil
	}
	out := make([]metrics.ThresholdOutcome, len(results))
	for i, r := range results {
		out[i] = metrics.ThresholdOutcome{
			Expression: r.Threshold.Raw,
			Actual:     r.Actual,
			Pass:       r.Pass,
			Message:    r.Message,
		}
	}
	return out
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "success_rate:pct >= 99"       (success rate percentage)
// - "response_time:p90 < 2000"     (latency percentile in ms)
// - "response_time:avg < 500"      (average latency in ms)
// - "response_time:max < 10000"    (max latency in ms)
// - "requests:rate > 5"            (requests per second)
// - "requests:count >= 100"        (total requests)
// - "failures:count < 3"           (failed requests)
// - "failures:rate < 0.01"         (failure ratio as decimal)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'response_time:p90 < 2000')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := supportedAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: success_rate, response_time, requests, failures)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var supportedAggregates = map[string][]string{
	MetricSuccessRate:  {"pct"},
	MetricResponseTime: {"avg", "min", "max", "p50", "p90", "p99"},
	MetricRequests:     {"rate", "count"},
	MetricFailures:     {"rate", "count"},
}

var validOperators = []string{"<", "<=", ">", ">=", "=="}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, step metrics.StepResult) (float64, error) {
	switch t.Metric {
	case MetricSuccessRate:
		return float64(step.SuccessRate), nil
	case MetricResponseTime:
		return extractLatencyMetric(t.Aggregate, step)
	case MetricRequests:
		return extractRequestMetric(t.Aggregate, step)
	case MetricFailures:
		return extractFailureMetric(t.Aggregate, step)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, step metrics.StepResult) (float64, error) {
	switch aggregate {
	case "avg":
		return float64(step.AvgResponseTime), nil
	case "min":
		return float64(step.MinResponseTime), nil
	case "max":
		return float64(step.MaxResponseTime), nil
	case "p50":
		return float64(step.P50ResponseTime), nil
	case "p90":
		return float64(step.P90ResponseTime), nil
	case "p99":
		return float64(step.P99ResponseTime), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for response_time", aggregate)
	}
}

func extractFailureMetric(aggregate string, step metrics.StepResult) (float64, error) {
	switch aggregate {
	case "count":
		return float64(step.FailedRequests), nil
	case "rate":
		if step.TotalRequests == 0 {
			return 0, nil
		}
		return float64(step.FailedRequests) / float64(step.TotalRequests), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for failures (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, step metrics.StepResult) (float64, error) {
	switch aggregate {
	case "count":
		return float64(step.TotalRequests), nil
	case "rate":
		return step.RequestsPerSecond, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
