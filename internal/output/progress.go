package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
	"github.com/kuroyamii/playwright-stress-test/internal/step"
)

// ProgressReporter displays real-time progress updates for the running step.
// It implements step.Observer.
type ProgressReporter struct {
	interval time.Duration
	writer   io.Writer

	mu       sync.Mutex
	done     chan struct{}
	finished chan struct{}
}

var _ step.Observer = (*ProgressReporter)(nil)

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		interval: interval,
		writer:   writer,
	}
}

// StepStarted begins polling snapshot in a background goroutine.
func (p *ProgressReporter) StepStarted(cfg step.Config, total int, snapshot func() metrics.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	p.done = make(chan struct{})
	p.finished = make(chan struct{})
	go p.run(cfg, total, snapshot, p.done, p.finished)
}

// StepFinished stops polling and prints the final line for the step.
func (p *ProgressReporter) StepFinished(result metrics.StepResult) {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()

	status := "passed"
	if !result.Passed {
		status = "failed"
	}
	if result.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(p.writer, "\rStep %d | %d users | %d/%d | ok %d | fail %d | RPS %.2f | %s\n",
		result.Step, result.Users, result.TotalRequests, result.TotalRequests,
		result.SuccessfulRequests, result.FailedRequests, result.RequestsPerSecond, status)
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *ProgressReporter) stopLocked() {
	if p.done == nil {
		return
	}
	close(p.done)
	<-p.finished
	p.done, p.finished = nil, nil
}

func (p *ProgressReporter) run(cfg step.Config, total int, snapshot func() metrics.Progress, done <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, FormatProgress(cfg, total, snapshot()))
		case <-done:
			return
		}
	}
}

// FormatProgress renders one carriage-return prefixed progress line.
func FormatProgress(cfg step.Config, total int, snap metrics.Progress) string {
	return fmt.Sprintf("\rStep %d | %d users | %d/%d | ok %d | fail %d | RPS %.2f",
		cfg.Step, cfg.UserCount, snap.Done, total, snap.Successes, snap.Failures, snap.RequestsPerSecond())
}
