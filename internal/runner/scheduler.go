package runner

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kuroyamii/playwright-stress-test/internal/logging"
	"github.com/kuroyamii/playwright-stress-test/internal/probe"
)

// concurrencyPerCPU scales available parallelism into in-flight visits.
const concurrencyPerCPU = 2

// WorkItem pairs a synthetic user with the URL it visits. Variant selects
// the probe from Options.Probes; items whose variant has no entry use
// Options.Probe.
type WorkItem struct {
	UserID  int
	URL     string
	Variant probe.Variant
}

// Sink receives every finished visit. Implementations must be safe for
// concurrent use.
type Sink interface {
	Ingest(probe.Outcome)
}

// Result summarises one Run.
type Result struct {
	Admitted    int
	Completed   int
	Skipped     int // items never admitted because the run was interrupted
	Panics      int
	Limit       int
	Interrupted bool
	Duration    time.Duration
}

// Scheduler runs work items with bounded concurrency.
type Scheduler struct {
	opt     Options
	pacer   pacer
	rng     *rand.Rand
	logger  logrus.FieldLogger
}

func NewScheduler(opt Options) *Scheduler {
	opt.normalize()
	return &Scheduler{
		opt:     opt,
		pacer:   newPacer(opt),
		rng:     rand.New(rand.NewSource(opt.RandomSeed)),
		logger:  logging.OrDiscard(opt.Logger),
	}
}

// ClampConcurrency returns the in-flight limit for a step that asks for
// requested concurrent users: at least 2, at most cpus*2 and upper, and
// never more than requested.
func ClampConcurrency(requested, upper, cpus int) int {
	limit := cpus * concurrencyPerCPU
	if upper > 0 && upper < limit {
		limit = upper
	}
	if limit < 2 {
		limit = 2
	}
	if upper > 0 && limit > upper {
		limit = upper
	}
	if requested > 0 && requested < limit {
		limit = requested
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Shuffle permutes items in place with a Fisher-Yates shuffle.
func Shuffle(items []WorkItem, rng *rand.Rand) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Run visits every item, feeding each outcome to sink, and returns once no
// item is queued or in flight. requested is the desired concurrency, usually
// the step's user count.
func (s *Scheduler) Run(ctx context.Context, items []WorkItem, requested int, sink Sink) Result {
	start := time.Now()
	limit := ClampConcurrency(requested, s.opt.MaxConcurrency, runtime.NumCPU())
	res := Result{Limit: limit}
	if len(items) == 0 {
		return res
	}

	queue := append([]WorkItem(nil), items...)
	Shuffle(queue, s.rng)

	// In-flight visits outlive cancellation so the step can drain cleanly.
	visitCtx := context.WithoutCancel(ctx)
	done := make(chan struct{}, limit)
	var panics int64

	cancelled := ctx.Done()
	stopping := false
	next, inFlight := 0, 0

	for next < len(queue) || inFlight > 0 {
		for !stopping && inFlight < limit && next < len(queue) {
			if ctx.Err() != nil {
				stopping = true
				break
			}
			if s.pacer != nil {
				if err := s.pacer.Wait(ctx); err != nil {
					stopping = true
					break
				}
			}
			item := queue[next]
			next++
			inFlight++
			res.Admitted++
			go func() {
				defer func() { done <- struct{}{} }()
				out := s.visit(visitCtx, item, &panics)
				s.deliver(item, out, sink, &panics)
			}()
		}

		if inFlight == 0 {
			break
		}
		select {
		case <-done:
			inFlight--
			res.Completed++
		case <-cancelled:
			stopping = true
			cancelled = nil
		}
	}

	res.Skipped = len(queue) - next
	res.Interrupted = res.Skipped > 0
	res.Panics = int(atomic.LoadInt64(&panics))
	res.Duration = time.Since(start)
	if res.Interrupted {
		s.logger.WithFields(logrus.Fields{
			"completed": res.Completed,
			"skipped":   res.Skipped,
		}).Warn("admission stopped before the queue drained")
	}
	return res
}

// visit runs the probe and converts a panic into a failed outcome.
func (s *Scheduler) visit(ctx context.Context, item WorkItem, panics *int64) (res probe.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(panics, 1)
			s.logger.WithFields(logrus.Fields{
				"user": item.UserID,
				"url":  item.URL,
			}).Errorf("probe panic: %v", r)
			res = probe.Failure(item.URL, fmt.Sprintf("probe panic: %v", r), time.Since(start))
		}
	}()

	res = s.probeFor(item.Variant).Visit(ctx, item.UserID, item.URL, s.opt.ProbeOptions)
	if res.Outcome.URL == "" {
		res.Outcome.URL = item.URL
	}
	return res
}

func (s *Scheduler) probeFor(v probe.Variant) probe.Probe {
	if p, ok := s.opt.Probes[v]; ok && p != nil {
		return p
	}
	return s.opt.Probe
}

// deliver hands a finished visit to sink and OnComplete. A panic in either
// is logged and counted; it never takes down the run.
func (s *Scheduler) deliver(item WorkItem, res probe.Result, sink Sink, panics *int64) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(panics, 1)
			s.logger.WithFields(logrus.Fields{
				"user": item.UserID,
				"url":  item.URL,
			}).Errorf("completion panic: %v", r)
		}
	}()
	sink.Ingest(res.Outcome)
	if s.opt.OnComplete != nil {
		s.opt.OnComplete(item, res)
	}
}
