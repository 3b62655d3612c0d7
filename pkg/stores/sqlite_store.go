package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/citysim/cyclekernel/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using SQLite. Each ledger row is stored as a
// JSON array keyed by (table_name, row_idx); row 0 is the header.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string        `json:"path" yaml:"path"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return engine.NewUnavailableError("ledger database not initialized", nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return engine.NewUnavailableError("ledger database unreachable", err)
	}
	return nil
}

// Tables lists the ledger tables in name order.
func (s *SQLiteStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM ledger_tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Read returns a table with its header row split from the data rows.
// Missing rows inside the table read back as empty rows.
func (s *SQLiteStore) Read(ctx context.Context, table string) (*engine.Table, error) {
	exists, err := tableExists(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", table, engine.ErrTableNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_idx, cells FROM ledger_rows WHERE table_name = ? ORDER BY row_idx`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	out := &engine.Table{Name: table}
	for rows.Next() {
		var (
			idx int
			raw string
		)
		if err := rows.Scan(&idx, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		cells, err := decodeCells(raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", table, idx, err)
		}
		if idx == 0 {
			for _, c := range cells {
				out.Header = append(out.Header, engine.AsString(c))
			}
			continue
		}
		for len(out.Rows) < idx-1 {
			out.Rows = append(out.Rows, []engine.Value{})
		}
		out.Rows = append(out.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", table, err)
	}
	return out, nil
}

// SetCell writes a single cell, widening the row as needed.
func (s *SQLiteStore) SetCell(ctx context.Context, table string, row, col int, value engine.Value) error {
	return s.SetRange(ctx, table, row, col, [][]engine.Value{{value}})
}

// SetRange writes a rectangular block starting at (row, col) in one transaction.
func (s *SQLiteStore) SetRange(ctx context.Context, table string, row, col int, values [][]engine.Value) error {
	if row < 0 || col < 0 {
		return fmt.Errorf("invalid address (%d,%d)", row, col)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireTable(ctx, tx, table); err != nil {
			return err
		}
		now := time.Now().UTC()
		for i, vals := range values {
			idx := row + i
			cells, err := loadRow(ctx, tx, table, idx)
			if err != nil {
				return err
			}
			for len(cells) < col+len(vals) {
				cells = append(cells, "")
			}
			copy(cells[col:], vals)
			if err := upsertRow(ctx, tx, table, idx, cells, now); err != nil {
				return err
			}
		}
		return touchTable(ctx, tx, table, now)
	})
}

// AppendRows adds rows after the last existing row in one transaction.
func (s *SQLiteStore) AppendRows(ctx context.Context, table string, rows [][]engine.Value) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireTable(ctx, tx, table); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(row_idx), -1) + 1 FROM ledger_rows WHERE table_name = ?`, table).Scan(&next); err != nil {
			return fmt.Errorf("failed to find end of %s: %w", table, err)
		}
		if next == 0 {
			next = 1
		}
		now := time.Now().UTC()
		for i, r := range rows {
			if err := upsertRow(ctx, tx, table, next+i, r, now); err != nil {
				return err
			}
		}
		return touchTable(ctx, tx, table, now)
	})
}

// ReplaceTable clears the table, creating it if needed, and writes rows
// with rows[0] as the header.
func (s *SQLiteStore) ReplaceTable(ctx context.Context, table string, rows [][]engine.Value) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_tables (name, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
		`, table, now, now); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = ?`, table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
		for i, r := range rows {
			if err := upsertRow(ctx, tx, table, i, r, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return engine.NewUnavailableError("ledger database not initialized", nil)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_tables WHERE name = ?`, table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	return n > 0, nil
}

func requireTable(ctx context.Context, q querier, table string) error {
	ok, err := tableExists(ctx, q, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", table, engine.ErrTableNotFound)
	}
	return nil
}

func loadRow(ctx context.Context, tx *sql.Tx, table string, idx int) ([]engine.Value, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT cells FROM ledger_rows WHERE table_name = ? AND row_idx = ?`, table, idx).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s row %d: %w", table, idx, err)
	}
	return decodeCells(raw)
}

func upsertRow(ctx context.Context, tx *sql.Tx, table string, idx int, cells []engine.Value, now time.Time) error {
	raw, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("failed to encode %s row %d: %w", table, idx, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_rows (table_name, row_idx, is_header, cells, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(table_name, row_idx) DO UPDATE SET cells = excluded.cells, updated_at = excluded.updated_at
	`, table, idx, idx == 0, string(raw), now)
	if err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", table, idx, err)
	}
	return nil
}

func touchTable(ctx context.Context, tx *sql.Tx, table string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_tables SET updated_at = ? WHERE name = ?`, now, table); err != nil {
		return fmt.Errorf("failed to touch %s: %w", table, err)
	}
	return nil
}

func decodeCells(raw string) ([]engine.Value, error) {
	var cells []engine.Value
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("failed to decode cells: %w", err)
	}
	return cells, nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO cycle_runs (id, cycle_id, mode, status, checksum, started_at, completed_at, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.CycleID,
		run.Mode,
		run.Status,
		run.Checksum,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun records the final status of a run
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, checksum string, errMsg *string) error {
	query := `
		UPDATE cycle_runs
		SET status = ?, checksum = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, checksum, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, cycle_id, mode, status, checksum, started_at, completed_at, error, metadata
		FROM cycle_runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.CycleID,
		&run.Mode,
		&run.Status,
		&run.Checksum,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Metadata,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, cycle_id, mode, status, checksum, started_at, completed_at, error, metadata
		FROM cycle_runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.CycleID,
			&run.Mode,
			&run.Status,
			&run.Checksum,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
