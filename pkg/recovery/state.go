package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// StateTable is the ledger table holding the persisted recovery state.
const StateTable = "Recovery_State"

// statePriority files state appends under the updates bucket.
const statePriority = 100

// StateHeader is the header row of StateTable.
var StateHeader = []engine.Value{
	"cycle_id", "level", "start_cycle", "window", "duration", "overload_score", "triggered",
}

// StateRow renders an outcome as the StateTable row for cycleID.
func StateRow(cycleID int, out *engine.RecoveryOutcome) []engine.Value {
	s := out.Persisted
	return []engine.Value{cycleID, string(s.Level), s.StartCycle, s.Window, s.Duration, out.OverloadScore, string(out.Triggered)}
}

// QueueState queues an append of the outcome's persisted state to
// StateTable. The table keeps one row per cycle so any cycle can find the
// state it started from. It lands in the updates bucket, ahead of the logs.
func QueueState(q *engine.Queue, cycleID int, out *engine.RecoveryOutcome) error {
	_, err := q.QueueAppend(StateTable, StateRow(cycleID, out),
		fmt.Sprintf("persist recovery state %s", out.Level), "recovery",
		engine.WithPriority(statePriority))
	return err
}

// StateFromTable maps the last data row of StateTable back to a state. An
// empty table is no recovery.
func StateFromTable(t *engine.Table) (engine.RecoveryState, error) {
	if t == nil || len(t.Rows) == 0 {
		return engine.RecoveryState{Level: engine.RecoveryNone}, nil
	}
	return stateFromRow(t, len(t.Rows)-1)
}

func stateFromRow(t *engine.Table, i int) (engine.RecoveryState, error) {
	none := engine.RecoveryState{Level: engine.RecoveryNone}

	raw, ok := t.Get(i, "level")
	if !ok {
		return none, fmt.Errorf("%s: missing level column", StateTable)
	}
	level := engine.RecoveryLevel(engine.AsString(raw))
	if err := level.Validate(); err != nil {
		return none, fmt.Errorf("%s: %w", StateTable, err)
	}

	ints := make(map[string]int, 3)
	for _, col := range []string{"start_cycle", "window", "duration"} {
		v, ok := t.Get(i, col)
		if !ok {
			return none, fmt.Errorf("%s: missing %s column", StateTable, col)
		}
		n, err := engine.AsInt(v)
		if err != nil {
			return none, fmt.Errorf("%s: bad %s: %w", StateTable, col, err)
		}
		ints[col] = n
	}

	s := engine.RecoveryState{
		StartCycle: ints["start_cycle"],
		Window:     ints["window"],
		Duration:   ints["duration"],
		Level:      level,
	}
	if !s.Active() {
		return none, nil
	}
	return s, nil
}

// LoadState reads the most recently persisted state. A missing table means
// no cycle has persisted one yet.
func LoadState(ctx context.Context, store engine.LedgerStore) (engine.RecoveryState, error) {
	t, err := readState(ctx, store)
	if err != nil || t == nil {
		return engine.RecoveryState{Level: engine.RecoveryNone}, err
	}
	return StateFromTable(t)
}

// LoadStateBefore returns the state persisted by the latest cycle earlier
// than cycleID; when a cycle was run more than once its last row wins. A
// cycle that runs again, or is replayed, starts from the same state it did
// the first time.
func LoadStateBefore(ctx context.Context, store engine.LedgerStore, cycleID int) (engine.RecoveryState, error) {
	none := engine.RecoveryState{Level: engine.RecoveryNone}
	t, err := readState(ctx, store)
	if err != nil || t == nil {
		return none, err
	}
	if t.Column("cycle_id") < 0 {
		return none, fmt.Errorf("%s: missing cycle_id column", StateTable)
	}

	best, bestCycle := -1, 0
	for i := range t.Rows {
		v, _ := t.Get(i, "cycle_id")
		written, err := engine.AsInt(v)
		if err != nil {
			return none, fmt.Errorf("%s: bad cycle_id in row %d: %w", StateTable, i, err)
		}
		if written < cycleID && (best < 0 || written >= bestCycle) {
			best, bestCycle = i, written
		}
	}
	if best < 0 {
		return none, nil
	}
	return stateFromRow(t, best)
}

func readState(ctx context.Context, store engine.LedgerStore) (*engine.Table, error) {
	t, err := store.Read(ctx, StateTable)
	if errors.Is(err, engine.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery state: %w", err)
	}
	return t, nil
}
