package metrics

import (
	"math"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/kuroyamii/playwright-stress-test/internal/probe"
)

const (
	// MaxErrorExamples caps the examples kept per error type.
	MaxErrorExamples = 3
	// MaxErrorsPerPath caps the failures kept per path.
	MaxErrorsPerPath = 5
)

// Aggregator accumulates visit outcomes for one step. Ingest is safe for
// concurrent use; Finalize must only be called after every Ingest returned.
type Aggregator struct {
	mu sync.Mutex

	step  int
	users int
	rules []Rule
	now   func() time.Time

	total        int
	successes    int
	totalLatency int64
	minLatency   int64
	maxLatency   int64
	hist         *hdrhistogram.Histogram
	buckets      [6]int
	paths        map[string]*PathMetric
	errorTypes   map[string]*ErrorBucket
	errorsByPath map[string][]PathError
	start, end   time.Time
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithRules replaces the failure classification rules.
func WithRules(rules []Rule) Option {
	return func(a *Aggregator) { a.rules = rules }
}

// WithClock replaces time.Now for Begin, End and Snapshot.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator returns an empty accumulator for a step running users
// synthetic users.
func NewAggregator(step, users int, opts ...Option) *Aggregator {
	a := &Aggregator{
		step:  step,
		users: users,
		rules: DefaultRules,
		now:   time.Now,
		// Track latencies from 1ms up to one hour with 3 significant figures.
		hist:         hdrhistogram.New(1, 3_600_000, 3),
		paths:        make(map[string]*PathMetric),
		errorTypes:   make(map[string]*ErrorBucket),
		errorsByPath: make(map[string][]PathError),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Begin marks the start of the step.
func (a *Aggregator) Begin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.start = a.now()
}

// End marks the end of the step.
func (a *Aggregator) End() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.end = a.now()
	if a.start.IsZero() {
		a.start = a.end
	}
}

// Ingest records one outcome.
func (a *Aggregator) Ingest(o probe.Outcome) {
	domain, path := splitURL(o.URL)
	key := domain + path

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	pm, ok := a.paths[key]
	if !ok {
		pm = &PathMetric{Domain: domain, Path: path}
		a.paths[key] = pm
	}
	pm.Requests++

	if IsSuccess(o) {
		latency := o.LatencyMs
		if latency < 0 {
			latency = 0
		}
		a.successes++
		a.totalLatency += latency
		if a.successes == 1 || latency < a.minLatency {
			a.minLatency = latency
		}
		if latency > a.maxLatency {
			a.maxLatency = latency
		}
		a.buckets[bucketIndex(latency)]++
		_ = a.hist.RecordValue(clamp(latency, a.hist.LowestTrackableValue(), a.hist.HighestTrackableValue()))

		pm.Successes++
		pm.TotalLatencyMs += latency
		return
	}

	typ := Classify(o, a.rules)
	msg := failureMessage(o)

	eb, ok := a.errorTypes[typ]
	if !ok {
		eb = &ErrorBucket{Type: typ}
		a.errorTypes[typ] = eb
	}
	eb.Count++
	eb.Examples = insertBounded(eb.Examples, ErrorExample{URL: o.URL, Message: msg}, MaxErrorExamples, func(x, y ErrorExample) bool {
		if x.URL == y.URL {
			return x.Message < y.Message
		}
		return x.URL < y.URL
	})

	a.errorsByPath[key] = insertBounded(a.errorsByPath[key], PathError{Type: typ, Message: msg, StatusCode: o.StatusCode}, MaxErrorsPerPath, func(x, y PathError) bool {
		if x.Type != y.Type {
			return x.Type < y.Type
		}
		if x.Message != y.Message {
			return x.Message < y.Message
		}
		return x.StatusCode < y.StatusCode
	})
}

// Snapshot returns live progress counters.
func (a *Aggregator) Snapshot() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := Progress{
		Step:      a.step,
		Users:     a.users,
		Done:      a.total,
		Successes: a.successes,
		Failures:  a.total - a.successes,
	}
	if !a.start.IsZero() {
		end := a.end
		if end.IsZero() {
			end = a.now()
		}
		p.Elapsed = end.Sub(a.start)
	}
	return p
}

// Finalize derives the step result from the accumulated counters. It does
// not modify the aggregator, so repeated calls yield identical results.
func (a *Aggregator) Finalize() StepResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	res := StepResult{
		Step:                a.step,
		Users:               a.users,
		TotalRequests:       a.total,
		SuccessfulRequests:  a.successes,
		FailedRequests:      a.total - a.successes,
		SuccessRate:         percent(a.successes, a.total),
		AvgResponseTime:     average(a.totalLatency, a.successes),
		MinResponseTime:     a.minLatency,
		MaxResponseTime:     a.maxLatency,
		StartTime:           a.start,
		EndTime:             a.end,
		ResponseTimeBuckets: make(map[string]int, len(BucketLabels)),
		Paths:               make(map[string]PathMetric, len(a.paths)),
		ErrorTypes:          make(map[string]ErrorBucket, len(a.errorTypes)),
		ErrorsByPath:        make(map[string][]PathError, len(a.errorsByPath)),
	}

	if a.hist.TotalCount() > 0 {
		res.P50ResponseTime = a.hist.ValueAtQuantile(50)
		res.P90ResponseTime = a.hist.ValueAtQuantile(90)
		res.P99ResponseTime = a.hist.ValueAtQuantile(99)
	}

	duration := a.end.Sub(a.start)
	if duration < 0 {
		duration = 0
	}
	res.DurationMs = duration.Milliseconds()
	if secs := duration.Seconds(); secs > 0 {
		res.RequestsPerSecond = math.Round(float64(a.total)/secs*100) / 100
	}

	for i, label := range BucketLabels {
		res.ResponseTimeBuckets[label] = a.buckets[i]
	}
	for key, pm := range a.paths {
		derived := *pm
		derived.SuccessRate = percent(pm.Successes, pm.Requests)
		derived.AvgResponseTime = average(pm.TotalLatencyMs, pm.Successes)
		res.Paths[key] = derived
	}
	for typ, eb := range a.errorTypes {
		res.ErrorTypes[typ] = ErrorBucket{
			Type:     eb.Type,
			Count:    eb.Count,
			Examples: append([]ErrorExample(nil), eb.Examples...),
		}
	}
	for key, errs := range a.errorsByPath {
		res.ErrorsByPath[key] = append([]PathError(nil), errs...)
	}
	return res
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func average(sum int64, n int) int64 {
	if n == 0 {
		return 0
	}
	return int64(math.Round(float64(sum) / float64(n)))
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// insertBounded inserts v into the sorted slice s and keeps at most limit
// of the smallest entries. Keeping the smallest rather than the earliest
// makes the result independent of completion order.
func insertBounded[T any](s []T, v T, limit int, less func(a, b T) bool) []T {
	i := sort.Search(len(s), func(i int) bool { return less(v, s[i]) })
	if i >= limit {
		return s
	}
	s = append(s, v)
	copy(s[i+1:], s[i:])
	s[i] = v
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

// splitURL splits a visited URL into its domain and path (query included).
func splitURL(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host, path
}
