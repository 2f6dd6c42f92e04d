// Package runner drains a finite queue of work items through a probe with a
// bounded number of visits in flight.
//
// A [Scheduler] shuffles the items, admits visits while fewer than the
// concurrency limit are running and then waits for whichever visit finishes
// first before admitting the next one. Every finished visit is handed to the
// [Sink] exactly once:
//
//	s := runner.NewScheduler(runner.Options{
//		Probe:          p,
//		ProbeOptions:   probe.Options{Timeout: 30 * time.Second, Retries: 2},
//		MaxConcurrency: 15,
//	})
//	res := s.Run(ctx, items, 40, aggregator)
//
// A probe that panics is recorded as a failed outcome; a panicking Sink or
// OnComplete hook is logged and counted in [Result.Panics]. Items are routed
// to [Options.Probes] by variant, falling back to [Options.Probe].
//
// Cancelling ctx stops admission; visits already in flight run to completion
// and the result is marked interrupted.
//
// Admissions can be paced with [Options.RatePerSecond] using either uniform
// spacing ([ArrivalModelUniform]) or exponential gaps ([ArrivalModelPoisson]).
package runner
