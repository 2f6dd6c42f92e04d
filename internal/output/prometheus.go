package output

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "stresstest"

// NewRegistry exposes r as Prometheus gauges labelled by step and users.
func NewRegistry(r Report) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	stepLabels := []string{"run_id", "step", "users"}

	requests := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_requests",
		Help:      "Visits completed in the step by outcome.",
	}, append(stepLabels, "outcome"))
	successRate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_success_rate_percent",
		Help:      "Rounded success rate of the step.",
	}, stepLabels)
	responseTime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_response_time_ms",
		Help:      "Response time of successful visits by statistic.",
	}, append(stepLabels, "stat"))
	rps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_requests_per_second",
		Help:      "Completed visits per second over the step.",
	}, stepLabels)
	buckets := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_response_time_bucket",
		Help:      "Successful visits per response time bucket.",
	}, append(stepLabels, "bucket"))
	errorsByType := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_errors",
		Help:      "Failed visits by classified error type.",
	}, append(stepLabels, "type"))
	passed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "step_passed",
		Help:      "1 when the step met every threshold.",
	}, stepLabels)
	maxUsers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "max_supported_users",
		Help:      "Highest passing user count of a capacity run.",
	}, []string{"run_id"})
	runPassed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "run_passed",
		Help:      "1 when the run passed.",
	}, []string{"run_id", "mode"})

	for _, c := range []prometheus.Collector{requests, successRate, responseTime, rps, buckets, errorsByType, passed, maxUsers, runPassed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	for _, s := range r.Steps {
		step, users := strconv.Itoa(s.Step), strconv.Itoa(s.Users)
		requests.WithLabelValues(r.RunID, step, users, "success").Set(float64(s.SuccessfulRequests))
		requests.WithLabelValues(r.RunID, step, users, "failure").Set(float64(s.FailedRequests))
		successRate.WithLabelValues(r.RunID, step, users).Set(float64(s.SuccessRate))
		rps.WithLabelValues(r.RunID, step, users).Set(s.RequestsPerSecond)
		passed.WithLabelValues(r.RunID, step, users).Set(boolGauge(s.Passed))

		for stat, v := range map[string]int64{
			"avg": s.AvgResponseTime,
			"min": s.MinResponseTime,
			"max": s.MaxResponseTime,
			"p50": s.P50ResponseTime,
			"p90": s.P90ResponseTime,
			"p99": s.P99ResponseTime,
		} {
			responseTime.WithLabelValues(r.RunID, step, users, stat).Set(float64(v))
		}
		for label, n := range s.ResponseTimeBuckets {
			buckets.WithLabelValues(r.RunID, step, users, label).Set(float64(n))
		}
		for typ, b := range s.ErrorTypes {
			errorsByType.WithLabelValues(r.RunID, step, users, typ).Set(float64(b.Count))
		}
	}

	if r.Mode == ModeCapacity {
		maxUsers.WithLabelValues(r.RunID).Set(float64(r.MaxSupportedUsers))
	}
	runPassed.WithLabelValues(r.RunID, r.Mode).Set(boolGauge(r.Passed))
	return reg, nil
}

// WritePrometheus writes r to path in the node_exporter textfile format.
func WritePrometheus(path string, r Report) error {
	reg, err := NewRegistry(r)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
