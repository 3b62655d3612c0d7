package stores

import (
	"context"
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// RunStatus represents the status of a cycle run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents one invocation of a cycle
type Run struct {
	ID          string     `json:"id"`
	CycleID     int        `json:"cycle_id"`
	Mode        string     `json:"mode"`
	Status      RunStatus  `json:"status"`
	Checksum    string     `json:"checksum"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Metadata    string     `json:"metadata"` // JSON blob
}

// RunRecorder keeps the history of cycle runs.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, status RunStatus, checksum string, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
}

// Store is a ledger store with lifecycle and run history.
type Store interface {
	engine.LedgerStore
	engine.HealthChecker
	RunRecorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Tables lists the ledger tables in name order.
	Tables(ctx context.Context) ([]string, error)
}
