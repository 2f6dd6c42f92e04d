package probe

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuroyamii/playwright-stress-test/internal/tracing"
)

// RetryPolicy configures retry behavior. The number of attempts comes from
// Options.Retries on each visit.
type RetryPolicy struct {
	Delay       time.Duration                                // fixed delay between attempts (used if DelayFunc nil)
	ShouldRetry func(Result) bool                            // predicate; if nil, DefaultShouldRetry
	DelayFunc   func(attempt int, last Result) time.Duration // dynamic backoff; attempt is 1-based
}

// DefaultShouldRetry retries visits that produced no response at all. An
// HTTP error status is a valid answer and is not retried.
func DefaultShouldRetry(res Result) bool {
	return !res.Outcome.Success && !res.Outcome.HasStatus()
}

type retryProbe struct {
	inner  Probe
	policy RetryPolicy
}

// WithRetry wraps a Probe with retry capability. Only the final attempt's
// outcome is reported; earlier failures are kept in Diagnostics.
func WithRetry(p Probe, policy RetryPolicy) Probe {
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = DefaultShouldRetry
	}
	return &retryProbe{inner: p, policy: policy}
}

func (r *retryProbe) Visit(ctx context.Context, userID int, url string, opts Options) Result {
	attempts := opts.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var (
		res     Result
		history []string
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res = r.inner.Visit(ctx, userID, url, opts)
		res.Diagnostics.Attempts = attempt
		if attempt == attempts || !r.policy.ShouldRetry(res) || ctx.Err() != nil {
			break
		}
		history = append(history, res.Outcome.ErrorMessage)

		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, res)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				res.Diagnostics.AttemptErrors = history[:len(history)-1]
				return res
			}
		}
	}
	res.Diagnostics.AttemptErrors = history
	return res
}

type userDelayProbe struct {
	inner  Probe
	lo, hi time.Duration
	rand   func(n int64) int64
}

// WithUserDelay waits a random think time in [min, max] before each visit.
// The delay is not part of the reported latency.
func WithUserDelay(p Probe, minDelay, maxDelay time.Duration) Probe {
	if maxDelay <= 0 || maxDelay < minDelay {
		return p
	}
	return &userDelayProbe{inner: p, lo: minDelay, hi: maxDelay, rand: rand.Int63n}
}

func (d *userDelayProbe) Visit(ctx context.Context, userID int, url string, opts Options) Result {
	delay := d.lo
	if span := int64(d.hi - d.lo); span > 0 {
		delay += time.Duration(d.rand(span + 1))
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	return d.inner.Visit(ctx, userID, url, opts)
}

type tracingProbe struct {
	inner  Probe
	tracer trace.Tracer
}

// WithTracing records one client span per visit.
func WithTracing(p Probe, tracer trace.Tracer) Probe {
	if tracer == nil {
		return p
	}
	return &tracingProbe{inner: p, tracer: tracer}
}

func (t *tracingProbe) Visit(ctx context.Context, userID int, url string, opts Options) Result {
	ctx, span := tracing.StartVisitSpan(ctx, t.tracer, userID, url)
	res := t.inner.Visit(ctx, userID, url, opts)
	attrs := []attribute.KeyValue{
		attribute.Int64("stresstest.latency_ms", res.Outcome.LatencyMs),
		attribute.Int("stresstest.attempts", res.Diagnostics.Attempts),
	}
	if res.Outcome.HasStatus() {
		attrs = append(attrs, attribute.Int("http.response.status_code", res.Outcome.StatusCode))
	}
	if len(res.Diagnostics.Assets) > 0 {
		attrs = append(attrs, attribute.Int("stresstest.assets", len(res.Diagnostics.Assets)))
	}
	failure := ""
	if !res.Outcome.Success {
		failure = res.Outcome.ErrorMessage
		if failure == "" {
			failure = "visit failed"
		}
	}
	tracing.EndSpan(span, failure, attrs...)
	return res
}

type loggingProbe struct {
	inner  Probe
	logger logrus.FieldLogger
}

// WithLogging logs every visit with its diagnostics at debug level.
func WithLogging(p Probe, logger logrus.FieldLogger) Probe {
	if logger == nil {
		return p
	}
	return &loggingProbe{inner: p, logger: logger}
}

func (l *loggingProbe) Visit(ctx context.Context, userID int, url string, opts Options) Result {
	res := l.inner.Visit(ctx, userID, url, opts)
	entry := l.logger.WithFields(logrus.Fields{
		"user":       userID,
		"url":        url,
		"latency_ms": res.Outcome.LatencyMs,
	})
	if res.Outcome.HasStatus() {
		entry = entry.WithField("status", res.Outcome.StatusCode)
	}
	if res.Diagnostics.Attempts > 1 {
		entry = entry.WithField("attempts", res.Diagnostics.Attempts)
	}
	if res.Diagnostics.FailedAssets > 0 {
		entry = entry.WithField("failed_assets", res.Diagnostics.FailedAssets)
	}
	if res.Outcome.Success {
		entry.Debug("visit ok")
	} else {
		entry.WithField("error", res.Outcome.ErrorMessage).Debug("visit failed")
	}
	return res
}
