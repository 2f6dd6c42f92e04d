package metrics

import "time"

// Latency bucket labels, fastest first.
const (
	BucketUnder500ms = "< 500ms"
	Bucket500msTo1s  = "500ms-1s"
	Bucket1sTo3s     = "1s-3s"
	Bucket3sTo5s     = "3s-5s"
	Bucket5sTo10s    = "5s-10s"
	BucketOver10s    = "> 10s"
)

// BucketLabels lists the latency buckets in report order.
var BucketLabels = []string{
	BucketUnder500ms,
	Bucket500msTo1s,
	Bucket1sTo3s,
	Bucket3sTo5s,
	Bucket5sTo10s,
	BucketOver10s,
}

// bucketIndex maps a successful visit's latency to its bucket.
func bucketIndex(latencyMs int64) int {
	switch {
	case latencyMs < 500:
		return 0
	case latencyMs < 1000:
		return 1
	case latencyMs < 3000:
		return 2
	case latencyMs < 5000:
		return 3
	case latencyMs < 10000:
		return 4
	default:
		return 5
	}
}

// PathMetric summarises visits to one path of one domain.
type PathMetric struct {
	Domain          string `json:"domain" yaml:"domain"`
	Path            string `json:"path" yaml:"path"`
	Requests        int    `json:"requests" yaml:"requests"`
	Successes       int    `json:"successes" yaml:"successes"`
	TotalLatencyMs  int64  `json:"total_latency_ms" yaml:"total_latency_ms"`
	SuccessRate     int    `json:"success_rate" yaml:"success_rate"`
	AvgResponseTime int64  `json:"avg_response_time_ms" yaml:"avg_response_time_ms"`
}

// ErrorExample is one recorded failure for an error type.
type ErrorExample struct {
	URL     string `json:"url" yaml:"url"`
	Message string `json:"message" yaml:"message"`
}

// ErrorBucket counts failures of one classified type.
type ErrorBucket struct {
	Type     string         `json:"type" yaml:"type"`
	Count    int            `json:"count" yaml:"count"`
	Examples []ErrorExample `json:"examples" yaml:"examples"`
}

// PathError is one recorded failure on a path.
type PathError struct {
	Type       string `json:"type" yaml:"type"`
	Message    string `json:"message" yaml:"message"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
}

// ThresholdOutcome records one pass/fail check applied to a step.
type ThresholdOutcome struct {
	Expression string  `json:"expression" yaml:"expression"`
	Actual     float64 `json:"actual" yaml:"actual"`
	Pass       bool    `json:"pass" yaml:"pass"`
	Message    string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// StepResult is the finalized aggregate of one load step.
type StepResult struct {
	Step               int     `json:"step" yaml:"step"`
	Users              int     `json:"users" yaml:"users"`
	TotalRequests      int     `json:"total_requests" yaml:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests" yaml:"successful_requests"`
	FailedRequests     int     `json:"failed_requests" yaml:"failed_requests"`
	SuccessRate        int     `json:"success_rate" yaml:"success_rate"`
	AvgResponseTime    int64   `json:"avg_response_time_ms" yaml:"avg_response_time_ms"`
	MinResponseTime    int64   `json:"min_response_time_ms" yaml:"min_response_time_ms"`
	MaxResponseTime    int64   `json:"max_response_time_ms" yaml:"max_response_time_ms"`
	P50ResponseTime    int64   `json:"p50_response_time_ms" yaml:"p50_response_time_ms"`
	P90ResponseTime    int64   `json:"p90_response_time_ms" yaml:"p90_response_time_ms"`
	P99ResponseTime    int64   `json:"p99_response_time_ms" yaml:"p99_response_time_ms"`
	RequestsPerSecond  float64 `json:"requests_per_second" yaml:"requests_per_second"`

	ResponseTimeBuckets map[string]int         `json:"response_time_buckets" yaml:"response_time_buckets"`
	Paths               map[string]PathMetric  `json:"paths" yaml:"paths"`
	ErrorTypes          map[string]ErrorBucket `json:"error_types" yaml:"error_types"`
	ErrorsByPath        map[string][]PathError `json:"errors_by_path" yaml:"errors_by_path"`

	StartTime  time.Time `json:"start_time" yaml:"start_time"`
	EndTime    time.Time `json:"end_time" yaml:"end_time"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`

	Passed      bool               `json:"passed" yaml:"passed"`
	Interrupted bool               `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Thresholds  []ThresholdOutcome `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Duration returns the wall-clock length of the step.
func (r StepResult) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Progress is a live view of a running step.
type Progress struct {
	Step      int
	Users     int
	Done      int
	Successes int
	Failures  int
	Elapsed   time.Duration
}

// RequestsPerSecond returns the completion rate so far.
func (p Progress) RequestsPerSecond() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Done) / p.Elapsed.Seconds()
}
