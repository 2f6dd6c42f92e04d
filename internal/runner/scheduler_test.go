package runner

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuroyamii/playwright-stress-test/internal/probe"
)

type recordingSink struct {
	mu       sync.Mutex
	outcomes []probe.Outcome
}

func (s *recordingSink) Ingest(o probe.Outcome) {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, o)
	s.mu.Unlock()
}

func (s *recordingSink) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.outcomes))
	for i, o := range s.outcomes {
		out[i] = o.URL
	}
	sort.Strings(out)
	return out
}

func makeItems(n int) []WorkItem {
	items := make([]WorkItem, n)
	for i := range items {
		items[i] = WorkItem{UserID: i + 1, URL: fmt.Sprintf("https://example.com/%03d", i)}
	}
	return items
}

func okProbe(delay time.Duration) probe.Probe {
	return probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		time.Sleep(delay)
		return probe.Result{Outcome: probe.Outcome{URL: url, Success: true, StatusCode: 200, LatencyMs: delay.Milliseconds()}}
	})
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		upper     int
		cpus      int
		want      int
	}{
		{name: "cpu bound", requested: 100, upper: 15, cpus: 4, want: 8},
		{name: "cap bound", requested: 100, upper: 15, cpus: 32, want: 15},
		{name: "requested bound", requested: 5, upper: 15, cpus: 32, want: 5},
		{name: "single cpu floor", requested: 100, upper: 15, cpus: 1, want: 2},
		{name: "floor respects cap", requested: 100, upper: 1, cpus: 1, want: 1},
		{name: "single user", requested: 1, upper: 15, cpus: 8, want: 1},
		{name: "no requested", requested: 0, upper: 15, cpus: 8, want: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampConcurrency(tt.requested, tt.upper, tt.cpus))
		})
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	items := makeItems(50)
	shuffled := append([]WorkItem(nil), items...)
	Shuffle(shuffled, rand.New(rand.NewSource(7)))

	assert.NotEqual(t, items, shuffled)
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].UserID < shuffled[j].UserID })
	assert.Equal(t, items, shuffled)
}

func TestRunDeliversEveryItemOnce(t *testing.T) {
	sink := &recordingSink{}
	s := NewScheduler(Options{Probe: okProbe(time.Millisecond), MaxConcurrency: 4, RandomSeed: 1})

	items := makeItems(40)
	res := s.Run(context.Background(), items, 40, sink)

	assert.Equal(t, 40, res.Admitted)
	assert.Equal(t, 40, res.Completed)
	assert.Zero(t, res.Skipped)
	assert.False(t, res.Interrupted)

	want := make([]string, len(items))
	for i, it := range items {
		want[i] = it.URL
	}
	assert.Equal(t, want, sink.urls())
}

func TestRunDoesNotMutateInput(t *testing.T) {
	items := makeItems(10)
	orig := append([]WorkItem(nil), items...)
	s := NewScheduler(Options{Probe: okProbe(0), RandomSeed: 3})
	s.Run(context.Background(), items, 10, &recordingSink{})
	assert.Equal(t, orig, items)
}

func TestRunNeverExceedsLimit(t *testing.T) {
	var inFlight, peak int64
	p := probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return probe.Result{Outcome: probe.Outcome{URL: url, Success: true, StatusCode: 200}}
	})

	s := NewScheduler(Options{Probe: p, MaxConcurrency: 3})
	res := s.Run(context.Background(), makeItems(30), 30, &recordingSink{})

	assert.Equal(t, 30, res.Completed)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(res.Limit))
	assert.LessOrEqual(t, res.Limit, 3)
}

func TestRunEmptyQueue(t *testing.T) {
	s := NewScheduler(Options{Probe: okProbe(0)})
	res := s.Run(context.Background(), nil, 10, &recordingSink{})
	assert.Zero(t, res.Admitted)
	assert.False(t, res.Interrupted)
}

func TestRunRecoversProbePanic(t *testing.T) {
	p := probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		if userID%2 == 0 {
			panic("boom")
		}
		return probe.Result{Outcome: probe.Outcome{URL: url, Success: true, StatusCode: 200}}
	})
	sink := &recordingSink{}
	s := NewScheduler(Options{Probe: p, MaxConcurrency: 4})
	res := s.Run(context.Background(), makeItems(10), 10, sink)

	require.Equal(t, 10, res.Completed)
	assert.Equal(t, 5, res.Panics)

	var failures int
	for _, o := range sink.outcomes {
		if !o.Success {
			failures++
			assert.Equal(t, "probe panic: boom", o.ErrorMessage)
			assert.False(t, o.HasStatus())
		}
	}
	assert.Equal(t, 5, failures)
}

func TestRunFillsMissingOutcomeURL(t *testing.T) {
	p := probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		return probe.Result{Outcome: probe.Outcome{Success: true, StatusCode: 204}}
	})
	sink := &recordingSink{}
	NewScheduler(Options{Probe: p}).Run(context.Background(), makeItems(2), 2, sink)
	assert.Equal(t, []string{"https://example.com/000", "https://example.com/001"}, sink.urls())
}

func TestRunPassesProbeOptions(t *testing.T) {
	want := probe.Options{Timeout: 7 * time.Second, Retries: 2, UserAgent: "ua"}
	var mismatched int64
	p := probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		if opts != want {
			atomic.AddInt64(&mismatched, 1)
		}
		return probe.Result{Outcome: probe.Outcome{URL: url, Success: true, StatusCode: 200}}
	})
	NewScheduler(Options{Probe: p, ProbeOptions: want}).Run(context.Background(), makeItems(5), 5, &recordingSink{})
	assert.Zero(t, atomic.LoadInt64(&mismatched))
}

func TestRunCancellationDrainsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var started int64
	var sawCancel int64
	p := probe.Func(func(pctx context.Context, userID int, url string, opts probe.Options) probe.Result {
		if atomic.AddInt64(&started, 1) == 2 {
			cancel()
		}
		<-release
		if pctx.Err() != nil {
			atomic.AddInt64(&sawCancel, 1)
		}
		return probe.Result{Outcome: probe.Outcome{URL: url, Success: true, StatusCode: 200}}
	})

	sink := &recordingSink{}
	s := NewScheduler(Options{Probe: p, MaxConcurrency: 2})

	done := make(chan Result, 1)
	go func() { done <- s.Run(ctx, makeItems(20), 2, sink) }()

	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case res := <-done:
		assert.True(t, res.Interrupted)
		assert.Equal(t, res.Admitted, res.Completed)
		assert.Equal(t, 20-res.Admitted, res.Skipped)
		assert.Len(t, sink.outcomes, res.Completed)
		assert.Zero(t, atomic.LoadInt64(&sawCancel), "in-flight visits keep their context")
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunOnCompleteObservesEveryVisit(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	s := NewScheduler(Options{
		Probe: okProbe(0),
		OnComplete: func(item WorkItem, res probe.Result) {
			mu.Lock()
			seen[item.UserID] = res.Outcome.Success
			mu.Unlock()
		},
	})
	s.Run(context.Background(), makeItems(6), 6, &recordingSink{})
	assert.Len(t, seen, 6)
}

func TestRunPacedByArrivalRate(t *testing.T) {
	s := NewScheduler(Options{
		Probe:          okProbe(0),
		RatePerSecond:  100,
		ArrivalModel:   ArrivalModelPoisson,
		PoissonSampler: func() float64 { return 1 },
	})
	start := time.Now()
	res := s.Run(context.Background(), makeItems(5), 5, &recordingSink{})
	assert.Equal(t, 5, res.Completed)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

type panickySink struct {
	recordingSink
	calls int64
}

func (s *panickySink) Ingest(o probe.Outcome) {
	if atomic.AddInt64(&s.calls, 1) == 1 {
		panic("sink exploded")
	}
	s.recordingSink.Ingest(o)
}

func TestRunSurvivesCompletionPanics(t *testing.T) {
	sink := &panickySink{}
	var observed int64
	s := NewScheduler(Options{
		Probe:          okProbe(0),
		MaxConcurrency: 3,
		OnComplete: func(item WorkItem, res probe.Result) {
			if atomic.AddInt64(&observed, 1) == 2 {
				panic("observer exploded")
			}
		},
	})

	res := s.Run(context.Background(), makeItems(8), 8, sink)

	assert.Equal(t, 8, res.Completed)
	assert.False(t, res.Interrupted)
	assert.Equal(t, 2, res.Panics)
	assert.EqualValues(t, 8, atomic.LoadInt64(&sink.calls))
	assert.Len(t, sink.urls(), 7)
	assert.EqualValues(t, 7, atomic.LoadInt64(&observed))
}

func TestRunRoutesItemsByVariant(t *testing.T) {
	tagged := func(tag string) probe.Probe {
		return probe.Func(func(ctx context.Context, userID int, url string, opts probe.Options) probe.Result {
			return probe.Result{Outcome: probe.Outcome{URL: url + "#" + tag, Success: true, StatusCode: 200}}
		})
	}
	s := NewScheduler(Options{
		Probe:  tagged("default"),
		Probes: map[probe.Variant]probe.Probe{probe.VariantBrowser: tagged("browser")},
	})
	items := []WorkItem{
		{UserID: 1, URL: "https://a.test/x", Variant: probe.VariantBrowser},
		{UserID: 2, URL: "https://a.test/y", Variant: probe.VariantHTTP},
		{UserID: 3, URL: "https://a.test/z"},
	}
	sink := &recordingSink{}
	s.Run(context.Background(), items, 3, sink)

	assert.Equal(t, []string{
		"https://a.test/x#browser",
		"https://a.test/y#default",
		"https://a.test/z#default",
	}, sink.urls())
}
