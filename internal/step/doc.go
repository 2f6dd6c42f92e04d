// Package step runs load levels.
//
// A [Controller] executes one step: it builds the work items for the step's
// user count, drains them through a scheduler into a fresh
// [metrics.Aggregator], finalizes the result and judges it against the
// configured thresholds. A [CapacityDriver] escalates the user count step by
// step and stops at the first step that fails.
package step
