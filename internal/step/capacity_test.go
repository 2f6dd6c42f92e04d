package step

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
)

// fakeExecutor passes every step at or below passUpTo users.
type fakeExecutor struct {
	passUpTo    int
	interruptAt int
	calls       []Config
	onExecute   func(cfg Config)
}

func (f *fakeExecutor) Execute(ctx context.Context, cfg Config) metrics.StepResult {
	f.calls = append(f.calls, cfg)
	if f.onExecute != nil {
		f.onExecute(cfg)
	}
	interrupted := f.interruptAt > 0 && cfg.UserCount == f.interruptAt
	return metrics.StepResult{
		Step:        cfg.Step,
		Users:       cfg.UserCount,
		Passed:      cfg.UserCount <= f.passUpTo && !interrupted,
		Interrupted: interrupted,
	}
}

func userCounts(steps []metrics.StepResult) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Users
	}
	return out
}

func TestLevels(t *testing.T) {
	assert.Equal(t, []int{20, 40, 60, 80, 100}, Levels(20, 100, 20))
	assert.Equal(t, []int{20, 40, 60, 80}, Levels(20, 90, 20))
	assert.Equal(t, []int{5}, Levels(5, 5, 10))
	assert.Equal(t, []int{5}, Levels(5, 50, 0))
	assert.Nil(t, Levels(50, 10, 10))
	assert.Nil(t, Levels(0, 10, 10))
}

func TestCapacityStopsAtFirstFailure(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 60}
	d := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 100, StepSize: 20})

	res := d.Run(context.Background())

	assert.Equal(t, 60, res.MaxSupportedUsers)
	assert.Equal(t, []int{20, 40, 60, 80}, userCounts(res.Steps))
	assert.False(t, res.Interrupted)
	require.Len(t, exec.calls, 4)
	for i, c := range exec.calls {
		assert.Equal(t, i+1, c.Step)
	}
	assert.False(t, res.Steps[3].Passed)
}

func TestCapacityFloorFailure(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 10}
	res := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 100, StepSize: 20}).Run(context.Background())

	assert.Zero(t, res.MaxSupportedUsers)
	assert.Equal(t, []int{20}, userCounts(res.Steps))
}

func TestCapacityAllPass(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 1000}
	res := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 90, StepSize: 20}).Run(context.Background())

	assert.Equal(t, 80, res.MaxSupportedUsers)
	assert.Equal(t, []int{20, 40, 60, 80}, userCounts(res.Steps))
}

func TestCapacityPassesURLs(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 1000}
	urls := []string{"https://a.test/", "https://b.test/"}
	NewCapacityDriver(exec, CapacityOptions{MinUsers: 1, MaxUsers: 2, StepSize: 1, URLs: urls}).Run(context.Background())
	for _, c := range exec.calls {
		assert.Equal(t, urls, c.URLs)
	}
}

func TestCapacityCooldownBetweenSteps(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 1000}
	d := NewCapacityDriver(exec, CapacityOptions{MinUsers: 10, MaxUsers: 30, StepSize: 10, Cooldown: time.Minute})
	var slept []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	res := d.Run(context.Background())

	assert.Equal(t, 30, res.MaxSupportedUsers)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, slept)
}

func TestCapacityInterruptedStepStops(t *testing.T) {
	exec := &fakeExecutor{passUpTo: 1000, interruptAt: 40}
	res := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 100, StepSize: 20}).Run(context.Background())

	assert.True(t, res.Interrupted)
	assert.Equal(t, 20, res.MaxSupportedUsers)
	assert.Equal(t, []int{20, 40}, userCounts(res.Steps))
}

func TestCapacityCancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &fakeExecutor{passUpTo: 1000}
	d := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 100, StepSize: 20, Cooldown: time.Hour})
	exec.onExecute = func(Config) { cancel() }

	res := d.Run(ctx)

	assert.True(t, res.Interrupted)
	assert.Equal(t, []int{20}, userCounts(res.Steps))
	assert.Equal(t, 20, res.MaxSupportedUsers)
}

func TestCapacityCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExecutor{passUpTo: 1000}
	res := NewCapacityDriver(exec, CapacityOptions{MinUsers: 20, MaxUsers: 100, StepSize: 20}).Run(ctx)

	assert.True(t, res.Interrupted)
	assert.Empty(t, res.Steps)
	assert.Empty(t, exec.calls)
}
