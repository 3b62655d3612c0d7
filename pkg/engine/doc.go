// Package engine provides the core types of the cycle simulation kernel.
//
// # Overview
//
// A cycle advances the simulated city by one tick. Every phase of a cycle
// reads and extends a single CycleContext:
//
//  1. Context - inputs from collaborators, filtered to the current cycle
//  2. Signals - scoring modules and event generation (package signals)
//  3. Recovery - overload score and suppression state (package recovery)
//  4. Intents - every ledger mutation is queued as a WriteIntent
//  5. Persist - the Executor drains the Queue into a LedgerStore
//
// # Write Intents
//
// Nothing in a cycle writes to storage directly. Modules queue intents:
//
//	q := engine.NewQueue()
//	q.QueueAppend("Cycle_Log", []engine.Value{42, "stable"}, "cycle log", "civic")
//	q.QueueReplace("Recovery_State", rows, "persist recovery", "recovery")
//
// Intents land in three buckets. Replace intents (priority 50) always run
// before updates (cell and range, priority 100), which run before logs
// (appends, priority 200). Within a bucket intents are grouped by destination
// and all appends to one destination are coalesced into a single AppendRows
// call that preserves insertion order.
//
// # Execution Modes
//
// In dry-run and replay modes the Executor only logs a summary, reports every
// intent as skipped and leaves the queue intact. In strict mode the first
// write error halts execution; otherwise errors are collected in the stats.
//
// # Errors
//
// Errors are EngineError values classified as validation, execution,
// replay_mismatch or unavailable. Only an unavailable ledger store aborts a
// cycle, and only before any phase runs.
package engine
