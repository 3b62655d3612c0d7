// Package signals implements the scoring modules and event generation that
// run early in every cycle.
//
// Each scoring module is an Accumulator: an ordered list of rules that each
// add a fixed or tiered weight, with per-rule caps, clamped to [Floor, Cap]
// and mapped through ordered thresholds to a flag. Modules only ever see the
// current cycle's events; the CycleContext filters history before they run.
//
// The Generator draws new events from weighted domain and neighborhood pools
// using salted streams of the cycle's RNG provider, so identical seeds give
// identical events.
package signals
