package engine

import (
	"context"
)

// LedgerStore is the external table storage the kernel writes through. The
// kernel assumes nothing about its geometry beyond these five operations.
// Row indices are ledger rows: row 0 is the header.
type LedgerStore interface {
	// Read returns the table with its header split from the data rows.
	Read(ctx context.Context, table string) (*Table, error)

	// SetCell writes a single cell.
	SetCell(ctx context.Context, table string, row, col int, value Value) error

	// SetRange writes a rectangular block starting at (row, col).
	SetRange(ctx context.Context, table string, row, col int, values [][]Value) error

	// AppendRows adds rows after the last existing row, preserving order.
	AppendRows(ctx context.Context, table string, rows [][]Value) error

	// ReplaceTable clears the table and writes rows; rows[0] is the header.
	ReplaceTable(ctx context.Context, table string, rows [][]Value) error
}

// HealthChecker is implemented by stores that can report availability.
// The runner checks it before any phase runs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Catalog knows which destinations exist.
type Catalog interface {
	HasTable(name string) bool
	TableNames() []string
}

// IntentGuard vets a write intent before the executor applies it. A non-nil
// error denies the write.
type IntentGuard interface {
	Check(ctx context.Context, intent *WriteIntent) error
}
