package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Call is one ledger operation observed by a MemoryStore.
type Call struct {
	Op    string
	Table string
	Row   int
	Col   int
	Rows  [][]engine.Value
}

// MemoryStore is an in-memory Store. It records every ledger call so tests
// can assert on exactly what a cycle wrote.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][][]engine.Value
	runs   map[string]*Run
	calls  []Call

	// Unavailable, when set, is returned by HealthCheck.
	Unavailable error

	// FailOn makes writes to the named tables fail with the given error.
	FailOn map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][][]engine.Value),
		runs:   make(map[string]*Run),
		FailOn: make(map[string]error),
	}
}

// Init is a no-op.
func (m *MemoryStore) Init(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Migrate is a no-op.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// HealthCheck reports Unavailable when set.
func (m *MemoryStore) HealthCheck(context.Context) error {
	if m.Unavailable != nil {
		return engine.NewUnavailableError("ledger store unavailable", m.Unavailable)
	}
	return nil
}

// Calls returns a copy of the recorded ledger calls.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// ResetCalls forgets recorded calls without touching the tables.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Tables lists the ledger tables in name order.
func (m *MemoryStore) Tables(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Read returns a copy of the table.
func (m *MemoryStore) Read(_ context.Context, table string) (*engine.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", table, engine.ErrTableNotFound)
	}
	out := &engine.Table{Name: table}
	for i, r := range rows {
		if i == 0 {
			for _, c := range r {
				out.Header = append(out.Header, engine.AsString(c))
			}
			continue
		}
		row := make([]engine.Value, len(r))
		copy(row, r)
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// SetCell writes a single cell.
func (m *MemoryStore) SetCell(ctx context.Context, table string, row, col int, value engine.Value) error {
	return m.write(Call{Op: "set_cell", Table: table, Row: row, Col: col, Rows: [][]engine.Value{{value}}})
}

// SetRange writes a block starting at (row, col).
func (m *MemoryStore) SetRange(ctx context.Context, table string, row, col int, values [][]engine.Value) error {
	return m.write(Call{Op: "set_range", Table: table, Row: row, Col: col, Rows: values})
}

// AppendRows adds rows after the last row.
func (m *MemoryStore) AppendRows(ctx context.Context, table string, rows [][]engine.Value) error {
	return m.write(Call{Op: "append_rows", Table: table, Rows: rows})
}

// ReplaceTable clears the table and writes rows.
func (m *MemoryStore) ReplaceTable(ctx context.Context, table string, rows [][]engine.Value) error {
	return m.write(Call{Op: "replace_table", Table: table, Rows: rows})
}

func (m *MemoryStore) write(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.Rows = copyRows(c.Rows)
	m.calls = append(m.calls, c)
	if err := m.FailOn[c.Table]; err != nil {
		return err
	}

	rows, ok := m.tables[c.Table]
	if !ok && c.Op != "replace_table" {
		return fmt.Errorf("%s: %w", c.Table, engine.ErrTableNotFound)
	}

	switch c.Op {
	case "replace_table":
		m.tables[c.Table] = copyRows(c.Rows)
	case "append_rows":
		if len(rows) == 0 {
			rows = [][]engine.Value{{}}
		}
		m.tables[c.Table] = append(rows, copyRows(c.Rows)...)
	default:
		if c.Row < 0 || c.Col < 0 {
			return fmt.Errorf("invalid address (%d,%d)", c.Row, c.Col)
		}
		for i, vals := range c.Rows {
			idx := c.Row + i
			for len(rows) <= idx {
				rows = append(rows, []engine.Value{})
			}
			for len(rows[idx]) < c.Col+len(vals) {
				rows[idx] = append(rows[idx], "")
			}
			copy(rows[idx][c.Col:], vals)
		}
		m.tables[c.Table] = rows
	}
	return nil
}

func copyRows(rows [][]engine.Value) [][]engine.Value {
	out := make([][]engine.Value, len(rows))
	for i, r := range rows {
		out[i] = make([]engine.Value, len(r))
		copy(out[i], r)
	}
	return out
}

// CreateRun records a new run.
func (m *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("failed to create run: duplicate id %s", run.ID)
	}
	r := *run
	m.runs[run.ID] = &r
	return nil
}

// CompleteRun records the final status of a run.
func (m *MemoryStore) CompleteRun(_ context.Context, id string, status RunStatus, checksum string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	now := time.Now().UTC()
	r.Status, r.Checksum, r.Error, r.CompletedAt = status, checksum, errMsg, &now
	return nil
}

// GetRun retrieves a run by ID.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	out := *r
	return &out, nil
}

// ListRuns returns runs newest first.
func (m *MemoryStore) ListRuns(_ context.Context, limit, offset int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out := *r
		runs = append(runs, &out)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}
