package runner

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kuroyamii/playwright-stress-test/internal/probe"
)

// ArrivalModel controls how admissions are spaced when a rate is set.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// DefaultMaxConcurrency bounds in-flight visits when no cap is configured.
const DefaultMaxConcurrency = 15

// Options configure a Scheduler.
type Options struct {
	Probe          probe.Probe   // visit executor (required)
	Probes         map[probe.Variant]probe.Probe
	ProbeOptions   probe.Options // passed to every visit
	MaxConcurrency int           // upper bound on in-flight visits
	RatePerSecond  int           // admissions per second (0 means unlimited)
	ArrivalModel   ArrivalModel
	RandomSeed     int64 // shuffle and poisson seed; 0 picks one from the clock
	Logger         logrus.FieldLogger

	// OnComplete observes every finished visit after it was ingested.
	OnComplete func(item WorkItem, res probe.Result)

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64              // optional injection for tests
}

func (o *Options) normalize() {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
