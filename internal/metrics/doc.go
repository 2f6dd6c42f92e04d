// Package metrics accumulates visit outcomes into step-level results.
//
// An [Aggregator] is created per step. Scheduler workers call
// [Aggregator.Ingest] concurrently; once every visit has completed the step
// controller calls [Aggregator.Finalize] to obtain an immutable [StepResult]:
//
//	agg := metrics.NewAggregator(step, users)
//	agg.Begin()
//	// ... workers call agg.Ingest(outcome) ...
//	agg.End()
//	result := agg.Finalize()
//
// Successful visits are bucketed into six fixed latency ranges and feed the
// average response time. Failed visits are classified by an ordered list of
// [Rule] values: an HTTP status wins, then the first rule whose substring
// appears in the error message, then the text before the first colon.
//
// Counters, per-path metrics and error examples are guarded by a single
// mutex; example lists are capped at [MaxErrorExamples] per error type and
// [MaxErrorsPerPath] per path.
package metrics
