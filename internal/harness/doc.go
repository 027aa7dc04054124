// Package harness runs end-to-end simulation scenarios.
//
// A scenario fixes the population, the limits and (optionally) a constant
// worker budget, runs the real master, workers and resource manager against
// a private registry and an in-memory SQLite run log, and evaluates
// assertions over the recorded event stream.
//
// # Scenario Format
//
//	name: spawn_limit
//	description: "One worker with zero budget hits the spawn limit"
//	workers: 1
//	spawn_limit: 5
//	clock_limit_seconds: 1000
//	fixed_budget: 0
//	expect:
//	  stop_reason: spawn limit
//	assertions:
//	  - type: event_count
//	    kind: completion
//	    count: 5
//	  - type: spawn_sequence
//
// # Assertion Types
//
//   - stop_reason: the run ended for the given reason
//   - event_count: exactly Count events of Kind were recorded
//   - event_order: the first event of each listed kind appears in order
//   - spawn_sequence: spawn totals rise by one and live stays within the population
//
// Scenarios with a fixed budget and a single worker are fully deterministic, so
// their summaries can be compared against golden files.
package harness
