package step

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kuroyamii/playwright-stress-test/internal/config"
	"github.com/kuroyamii/playwright-stress-test/internal/logging"
	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
	"github.com/kuroyamii/playwright-stress-test/internal/probe"
	"github.com/kuroyamii/playwright-stress-test/internal/runner"
	"github.com/kuroyamii/playwright-stress-test/internal/threshold"
)

// Config describes one load level.
type Config struct {
	Step      int // 1-based position in the run
	UserCount int
	URLs      []string
}

// Runner drains work items into a sink. *runner.Scheduler implements it.
type Runner interface {
	Run(ctx context.Context, items []runner.WorkItem, requested int, sink runner.Sink) runner.Result
}

// Observer is told when a step starts and finishes. snapshot may be polled
// from another goroutine until StepFinished is called.
type Observer interface {
	StepStarted(cfg Config, totalItems int, snapshot func() metrics.Progress)
	StepFinished(result metrics.StepResult)
}

// Options configure a Controller.
type Options struct {
	Runner           Runner
	Variant          probe.Variant
	Shape            config.LoadShape
	SuccessThreshold float64       // minimum success rate in percent
	LatencyThreshold time.Duration // maximum average response time
	Extra            []threshold.Threshold
	Rules            []metrics.Rule // nil uses metrics.DefaultRules
	Intn             func(n int) int
	Observer         Observer
	Logger           logrus.FieldLogger
}

// Controller executes single steps.
type Controller struct {
	opt       Options
	evaluator *threshold.Evaluator
	logger    logrus.FieldLogger
}

func NewController(opt Options) *Controller {
	if opt.Shape == "" {
		opt.Shape = config.LoadShapeSample
	}
	if opt.Variant == "" {
		opt.Variant = probe.VariantHTTP
	}
	if opt.Intn == nil {
		opt.Intn = rand.New(rand.NewSource(time.Now().UnixNano())).Intn
	}
	if opt.Rules == nil {
		opt.Rules = metrics.DefaultRules
	}

	thresholds := append(threshold.Core(opt.SuccessThreshold, opt.LatencyThreshold), opt.Extra...)
	return &Controller{
		opt:       opt,
		evaluator: threshold.NewEvaluator(thresholds),
		logger:    logging.OrDiscard(opt.Logger),
	}
}

// Execute runs one step to completion and returns its finalized result.
// Cancelling ctx stops admission early; the partial step is still finalized
// and marked interrupted.
func (c *Controller) Execute(ctx context.Context, cfg Config) metrics.StepResult {
	items := BuildWorkItems(cfg.UserCount, cfg.URLs, c.opt.Shape, c.opt.Variant, c.opt.Intn)
	agg := metrics.NewAggregator(cfg.Step, cfg.UserCount, metrics.WithRules(c.opt.Rules))

	log := c.logger.WithFields(logrus.Fields{
		"step":  cfg.Step,
		"users": cfg.UserCount,
	})
	log.WithField("items", len(items)).Info("step started")

	if c.opt.Observer != nil {
		c.opt.Observer.StepStarted(cfg, len(items), agg.Snapshot)
	}

	agg.Begin()
	run := c.opt.Runner.Run(ctx, items, cfg.UserCount, agg)
	agg.End()

	result := agg.Finalize()
	result.Interrupted = run.Interrupted

	evaluated := c.evaluator.Evaluate(result)
	result.Thresholds = threshold.Outcomes(evaluated)
	result.Passed = threshold.AllPass(evaluated) && !result.Interrupted

	if c.opt.Observer != nil {
		c.opt.Observer.StepFinished(result)
	}

	fields := logrus.Fields{
		"requests":     result.TotalRequests,
		"success_rate": result.SuccessRate,
		"avg_ms":       result.AvgResponseTime,
		"rps":          result.RequestsPerSecond,
		"passed":       result.Passed,
	}
	if run.Panics > 0 {
		fields["panics"] = run.Panics
	}
	if result.Interrupted {
		log.WithFields(fields).WithField("skipped", run.Skipped).Warn("step interrupted")
	} else {
		log.WithFields(fields).Info("step finished")
	}
	for _, t := range result.Thresholds {
		if !t.Pass {
			log.Debug(t.Message)
		}
	}
	return result
}
