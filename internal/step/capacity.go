package step

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kuroyamii/playwright-stress-test/internal/logging"
	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
)

// Executor runs one step. *Controller implements it.
type Executor interface {
	Execute(ctx context.Context, cfg Config) metrics.StepResult
}

// CapacityResult is the outcome of an escalating run.
type CapacityResult struct {
	Steps             []metrics.StepResult `json:"steps" yaml:"steps"`
	MaxSupportedUsers int                  `json:"max_supported_users" yaml:"max_supported_users"`
	Interrupted       bool                 `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// CapacityOptions configure a CapacityDriver.
type CapacityOptions struct {
	MinUsers int
	MaxUsers int
	StepSize int
	Cooldown time.Duration // pause between steps
	URLs     []string
	Logger   logrus.FieldLogger
}

// CapacityDriver escalates the user count until a step fails or MaxUsers is
// reached.
type CapacityDriver struct {
	exec   Executor
	opt    CapacityOptions
	logger logrus.FieldLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewCapacityDriver(exec Executor, opt CapacityOptions) *CapacityDriver {
	return &CapacityDriver{
		exec:   exec,
		opt:    opt,
		logger: logging.OrDiscard(opt.Logger),
		sleep:  sleepContext,
	}
}

// Levels returns the user counts the driver probes when every step passes.
func Levels(minUsers, maxUsers, stepSize int) []int {
	if minUsers <= 0 || maxUsers < minUsers {
		return nil
	}
	if stepSize <= 0 {
		return []int{minUsers}
	}
	var levels []int
	for users := minUsers; users <= maxUsers; users += stepSize {
		levels = append(levels, users)
	}
	return levels
}

// Run probes min, min+step, ... up to max. Every attempted step is recorded.
// The first failing step ends the run; MaxSupportedUsers is the user count of
// the last passing step, or 0 when the first step failed.
func (d *CapacityDriver) Run(ctx context.Context) CapacityResult {
	var res CapacityResult
	levels := Levels(d.opt.MinUsers, d.opt.MaxUsers, d.opt.StepSize)

	for i, users := range levels {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		result := d.exec.Execute(ctx, Config{Step: i + 1, UserCount: users, URLs: d.opt.URLs})
		res.Steps = append(res.Steps, result)

		if result.Interrupted {
			res.Interrupted = true
			break
		}
		if !result.Passed {
			d.logger.WithFields(logrus.Fields{
				"step":  i + 1,
				"users": users,
			}).Info("step failed, capacity search finished")
			break
		}
		res.MaxSupportedUsers = users

		if i == len(levels)-1 {
			d.logger.WithField("users", users).Info("maximum user count reached")
			break
		}
		if d.opt.Cooldown > 0 {
			if err := d.sleep(ctx, d.opt.Cooldown); err != nil {
				res.Interrupted = true
				break
			}
		}
	}

	if res.Interrupted {
		d.logger.WithField("steps", len(res.Steps)).Warn("capacity run interrupted")
	}
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
