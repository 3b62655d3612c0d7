// Package recovery implements the multi-cycle recovery state machine.
//
// Each cycle derives an overload score from the signals already in the
// cycle context, compares it against calendar-adjusted thresholds, and
// merges the triggered level with the state persisted by the previous
// cycle. Levels decay at most one step per cycle without a new trigger,
// and windows never shrink while active. The resulting level selects the
// suppression multipliers generators apply on the next cycle.
//
// The persisted state is the only cross-cycle memory the kernel keeps. Each
// cycle appends one row to the Recovery_State ledger table, and a cycle reads
// the row of the latest cycle before it, so re-runs and replays start from
// the state the original run saw:
//
//	state, err := recovery.LoadStateBefore(ctx, store, cc.CycleID)
//	cc.PriorRecovery = state
//	outcome := machine.Evaluate(cc)
//	err = recovery.QueueState(cc.Intents, cc.CycleID, outcome)
package recovery
