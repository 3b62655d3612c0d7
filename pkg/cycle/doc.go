// Package cycle runs one simulation cycle end to end.
//
// A Runner owns the fixed, linear phase order of a cycle. It checks that the
// ledger store is reachable, creates missing ledger tables, reads the
// recovery state the previous cycle persisted, generates and scores the
// cycle's events, evaluates recovery, stages every ledger write as an intent
// and finally hands the queue to the executor:
//
//	runner := cycle.NewRunner(store,
//		cycle.WithSuite(suite),
//		cycle.WithGuard(guard),
//		cycle.WithTelemetry(tel),
//	)
//	res, err := runner.RunCycle(ctx, inputs, engine.Mode{DryRun: true})
//
// Dry runs and replays read the ledger but never write to it, and their
// queue is left intact on the returned context. A replay reinstalls the
// recorded seed of the cycle and compares the recomputed checksum with the
// recorded one; a mismatch is reported on the result, never returned as an
// error.
//
// Every phase gets its own span and phase logger. In profile mode the result
// also carries per-phase timings.
package cycle
