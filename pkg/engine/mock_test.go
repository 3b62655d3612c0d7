package engine

import (
	"context"
	"fmt"
)

// call is one recorded ledger operation.
type call struct {
	Op    string
	Table string
	Row   int
	Col   int
	Rows  [][]Value
}

// recordingStore records every ledger call and fails on demand.
type recordingStore struct {
	calls  []call
	failOn map[string]bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{failOn: make(map[string]bool)}
}

func (s *recordingStore) record(c call) error {
	s.calls = append(s.calls, c)
	if s.failOn[c.Table] {
		return fmt.Errorf("cannot access %s", c.Table)
	}
	return nil
}

func (s *recordingStore) Read(ctx context.Context, table string) (*Table, error) {
	return &Table{Name: table}, s.record(call{Op: "read", Table: table})
}

func (s *recordingStore) SetCell(ctx context.Context, table string, row, col int, value Value) error {
	return s.record(call{Op: "set_cell", Table: table, Row: row, Col: col, Rows: [][]Value{{value}}})
}

func (s *recordingStore) SetRange(ctx context.Context, table string, row, col int, values [][]Value) error {
	return s.record(call{Op: "set_range", Table: table, Row: row, Col: col, Rows: values})
}

func (s *recordingStore) AppendRows(ctx context.Context, table string, rows [][]Value) error {
	return s.record(call{Op: "append_rows", Table: table, Rows: rows})
}

func (s *recordingStore) ReplaceTable(ctx context.Context, table string, rows [][]Value) error {
	return s.record(call{Op: "replace_table", Table: table, Rows: rows})
}

func (s *recordingStore) ops() []string {
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Op + ":" + c.Table
	}
	return out
}

// staticCatalog knows a fixed set of tables.
type staticCatalog []string

func (c staticCatalog) HasTable(name string) bool {
	for _, t := range c {
		if t == name {
			return true
		}
	}
	return false
}

func (c staticCatalog) TableNames() []string { return c }

// denyGuard denies writes to the listed destinations.
type denyGuard map[string]bool

func (g denyGuard) Check(ctx context.Context, w *WriteIntent) error {
	if g[w.Destination] {
		return fmt.Errorf("destination %s is protected", w.Destination)
	}
	return nil
}
