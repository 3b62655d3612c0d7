package engine_test

import (
	"context"
	"fmt"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// tableStore is a minimal LedgerStore that prints what it is asked to do.
type tableStore struct{}

func (tableStore) Read(ctx context.Context, table string) (*engine.Table, error) {
	return &engine.Table{Name: table}, nil
}

func (tableStore) SetCell(ctx context.Context, table string, row, col int, value engine.Value) error {
	fmt.Printf("set %s[%d,%d] = %v\n", table, row, col, value)
	return nil
}

func (tableStore) SetRange(ctx context.Context, table string, row, col int, values [][]engine.Value) error {
	fmt.Printf("set range %s at [%d,%d]: %v\n", table, row, col, values)
	return nil
}

func (tableStore) AppendRows(ctx context.Context, table string, rows [][]engine.Value) error {
	fmt.Printf("append %d rows to %s: %v\n", len(rows), table, rows)
	return nil
}

func (tableStore) ReplaceTable(ctx context.Context, table string, rows [][]engine.Value) error {
	fmt.Printf("replace %s with %d rows\n", table, len(rows))
	return nil
}

// Example_writeIntents shows how queued intents are flushed in bucket order
// with appends coalesced per destination.
func Example_writeIntents() {
	q := engine.NewQueue()

	_, _ = q.QueueAppend("Cycle_Log", []engine.Value{41, "stable"}, "cycle log", "civic")
	_, _ = q.QueueCell("Dashboard", 1, 0, "moderate", "recovery level", "recovery")
	_, _ = q.QueueAppend("Cycle_Log", []engine.Value{42, "load-strain"}, "cycle log", "civic")
	_, _ = q.QueueReplace("Recovery_State", [][]engine.Value{
		{"start_cycle", "window", "duration", "level"},
		{42, 2, 0, "moderate"},
	}, "persist recovery", "recovery")

	exec := engine.NewExecutor(tableStore{})
	stats, err := exec.Execute(context.Background(), q, engine.ExecuteOptions{})
	if err != nil {
		panic(err)
	}
	fmt.Printf("executed=%d calls=%d\n", stats.Executed, stats.Calls)

	// Output:
	// replace Recovery_State with 2 rows
	// set Dashboard[1,0] = moderate
	// append 2 rows to Cycle_Log: [[41 stable] [42 load-strain]]
	// executed=4 calls=3
}
