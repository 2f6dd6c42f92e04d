package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces out admissions of new visits. Wait blocks until the next
// visit may start or ctx is done.
type pacer interface {
	Wait(ctx context.Context) error
}

// newPacer returns nil when visits are admitted as fast as slots free up.
func newPacer(opt Options) pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}
	if opt.ArrivalModel == ArrivalModelPoisson {
		sample := opt.PoissonSampler
		if sample == nil {
			sample = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
		}
		return newPoissonPacer(opt.RatePerSecond, sample)
	}
	return limiterPacer{limiter: opt.LimiterFactory(opt.RatePerSecond)}
}

// limiterPacer admits visits at evenly spaced instants.
type limiterPacer struct {
	limiter *rate.Limiter
}

func (p limiterPacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// poissonPacer draws exponential gaps between admissions so visits arrive
// as a Poisson process with the configured mean rate.
type poissonPacer struct {
	mu     sync.Mutex // sample is not safe for concurrent use
	mean   time.Duration
	sample func() float64
}

func newPoissonPacer(perSecond int, sample func() float64) *poissonPacer {
	return &poissonPacer{mean: time.Second / time.Duration(perSecond), sample: sample}
}

func (p *poissonPacer) Wait(ctx context.Context) error {
	gap := p.gap()
	if gap <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(gap)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gap returns the pause before the next admission.
func (p *poissonPacer) gap() time.Duration {
	p.mu.Lock()
	factor := p.sample()
	p.mu.Unlock()

	d := float64(p.mean) * factor
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
