package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// ExecuteOptions selects how the executor drains a queue.
type ExecuteOptions struct {
	// DryRun logs what would be written and touches nothing.
	DryRun bool

	// Replay behaves like DryRun; it is reported separately.
	Replay bool

	// Strict halts at the first error instead of collecting it.
	Strict bool
}

// ExecutionStats reports what a flush did.
type ExecutionStats struct {
	Executed      int                `json:"executed"`
	Skipped       int                `json:"skipped"`
	Errors        []*EngineError     `json:"errors,omitempty"`
	ByKind        map[IntentKind]int `json:"by_kind"`
	ByDestination map[string]int     `json:"by_destination"`
	Calls         int                `json:"calls"`
	DryRun        bool               `json:"dry_run"`
	Replay        bool               `json:"replay"`
	Halted        bool               `json:"halted"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
}

// Duration returns how long the flush took.
func (s *ExecutionStats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Executor is the only component allowed to write to the ledger store. It
// drains a Queue in bucket order: replace, updates, logs.
type Executor struct {
	store   LedgerStore
	guard   IntentGuard
	catalog Catalog
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithGuard vets every write before it is applied.
func WithGuard(guard IntentGuard) ExecutorOption {
	return func(e *Executor) { e.guard = guard }
}

// WithCatalog rejects writes to destinations the catalog does not know.
func WithCatalog(catalog Catalog) ExecutorOption {
	return func(e *Executor) { e.catalog = catalog }
}

// WithLogger sets the executor logger.
func WithLogger(logger *telemetry.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics records ledger calls and intent outcomes.
func WithMetrics(metrics *telemetry.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = metrics }
}

// NewExecutor creates an executor writing to store.
func NewExecutor(store LedgerStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:  store,
		logger: telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.NewComponentLogger("executor")
	return e
}

// Execute drains q. In dry-run or replay mode nothing is written and the
// queue is left intact. A real run clears the queue once it completes; a
// strict halt leaves it untouched and returns the error that stopped it.
func (e *Executor) Execute(ctx context.Context, q *Queue, opts ExecuteOptions) (*ExecutionStats, error) {
	stats := &ExecutionStats{
		ByKind:        make(map[IntentKind]int),
		ByDestination: make(map[string]int),
		DryRun:        opts.DryRun,
		Replay:        opts.Replay,
		StartTime:     time.Now(),
	}

	if opts.DryRun || opts.Replay {
		e.observe(q, stats)
		stats.EndTime = time.Now()
		return stats, nil
	}

	f := &flush{Executor: e, ctx: ctx, stats: stats, strict: opts.Strict}
	err := f.run(q)
	stats.EndTime = time.Now()

	if err != nil {
		stats.Halted = true
		e.logger.Zerolog().Error().
			Err(err).
			Int("executed", stats.Executed).
			Int("calls", stats.Calls).
			Msg("Execution halted")
		return stats, err
	}

	q.Clear()
	e.logger.Zerolog().Info().
		Int("executed", stats.Executed).
		Int("calls", stats.Calls).
		Int("errors", len(stats.Errors)).
		Dur("duration", stats.Duration()).
		Msg("Intents flushed")
	return stats, nil
}

func (e *Executor) observe(q *Queue, stats *ExecutionStats) {
	summary := q.Summary()
	stats.Skipped = summary.Total
	for k, n := range summary.ByKind {
		stats.ByKind[k] = n
	}
	for d, n := range summary.ByDestination {
		stats.ByDestination[d] = n
	}

	reason := "dry_run"
	if stats.Replay {
		reason = "replay"
	}
	e.metrics.RecordIntentsSkipped(reason, summary.Total)

	byKind := zerolog.Dict()
	for k, n := range summary.ByKind {
		byKind.Int(string(k), n)
	}
	byDest := zerolog.Dict()
	for d, n := range summary.ByDestination {
		byDest.Int(d, n)
	}
	byDomain := zerolog.Dict()
	for d, n := range summary.ByDomain {
		byDomain.Int(d, n)
	}

	e.logger.Zerolog().Info().
		Str("mode", reason).
		Int("total", summary.Total).
		Dict("by_kind", byKind).
		Dict("by_destination", byDest).
		Dict("by_domain", byDomain).
		Msg("Skipping ledger writes")
}

// flush is the state of one real execution.
type flush struct {
	*Executor
	ctx    context.Context
	stats  *ExecutionStats
	strict bool
}

func (f *flush) run(q *Queue) error {
	for _, w := range byPriority(q.Intents(BucketReplace)) {
		if err := f.ctx.Err(); err != nil {
			return err
		}
		if err := f.replace(w); err != nil {
			return err
		}
	}

	for _, bucket := range []Bucket{BucketUpdates, BucketLogs} {
		for _, group := range groupByDestination(byPriority(q.Intents(bucket))) {
			if err := f.ctx.Err(); err != nil {
				return err
			}
			if err := f.destination(group); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *flush) replace(w *WriteIntent) error {
	if err := f.admit(w); err != nil {
		return f.fail(err, w)
	}
	rows := PadRows(w.Values)
	err := f.call("replace_table", w.Destination, func() error {
		return f.store.ReplaceTable(f.ctx, w.Destination, rows)
	})
	if err != nil {
		return f.fail(writeFailed(w.Destination, err), w)
	}
	f.succeed(w)
	return nil
}

// destination applies one destination's intents: cells one by one, each
// range as a single call, then every append coalesced into one call.
func (f *flush) destination(group []*WriteIntent) error {
	var cells, ranges, appends []*WriteIntent
	for _, w := range group {
		switch w.Kind {
		case IntentCell:
			cells = append(cells, w)
		case IntentRange:
			ranges = append(ranges, w)
		case IntentAppend:
			appends = append(appends, w)
		}
	}

	for _, w := range cells {
		if err := f.cell(w); err != nil {
			return err
		}
	}
	for _, w := range ranges {
		if err := f.rangeWrite(w); err != nil {
			return err
		}
	}
	return f.appendAll(appends)
}

func (f *flush) cell(w *WriteIntent) error {
	if err := f.admit(w); err != nil {
		return f.fail(err, w)
	}
	err := f.call("set_cell", w.Destination, func() error {
		return f.store.SetCell(f.ctx, w.Destination, w.Address.Row, w.Address.Col, w.Values[0][0])
	})
	if err != nil {
		return f.fail(writeFailed(w.Destination, err), w)
	}
	f.succeed(w)
	return nil
}

func (f *flush) rangeWrite(w *WriteIntent) error {
	if err := f.admit(w); err != nil {
		return f.fail(err, w)
	}
	err := f.call("set_range", w.Destination, func() error {
		return f.store.SetRange(f.ctx, w.Destination, w.Address.Row, w.Address.Col, w.Values)
	})
	if err != nil {
		return f.fail(writeFailed(w.Destination, err), w)
	}
	f.succeed(w)
	return nil
}

// appendAll coalesces appends in insertion order, whatever their priority.
func (f *flush) appendAll(appends []*WriteIntent) error {
	sort.SliceStable(appends, func(i, j int) bool {
		return appends[i].Seq < appends[j].Seq
	})
	var admitted []*WriteIntent
	var rows [][]Value
	for _, w := range appends {
		if err := f.admit(w); err != nil {
			if halt := f.fail(err, w); halt != nil {
				return halt
			}
			continue
		}
		admitted = append(admitted, w)
		rows = append(rows, w.Values...)
	}
	if len(admitted) == 0 {
		return nil
	}

	dest := admitted[0].Destination
	err := f.call("append_rows", dest, func() error {
		return f.store.AppendRows(f.ctx, dest, rows)
	})
	if err != nil {
		return f.fail(writeFailed(dest, err).WithDetail("intents", len(admitted)), nil)
	}
	for _, w := range admitted {
		f.succeed(w)
	}
	return nil
}

// admit runs the catalog and guard checks for one intent.
func (f *flush) admit(w *WriteIntent) *EngineError {
	if f.catalog != nil && !f.catalog.HasTable(w.Destination) {
		msg := fmt.Sprintf("unknown destination %q", w.Destination)
		if s := suggest(w.Destination, f.catalog.TableNames()); s != "" {
			msg += fmt.Sprintf(", did you mean %q?", s)
		}
		return NewExecutionError(msg, nil).
			WithCode(ErrCodeUnknownDestination).
			WithDestination(w.Destination)
	}
	if f.guard != nil {
		if err := f.guard.Check(f.ctx, w); err != nil {
			return NewExecutionError("write denied by policy", err).
				WithCode(ErrCodePolicyDenied).
				WithDestination(w.Destination)
		}
	}
	return nil
}

func (f *flush) call(op, dest string, fn func() error) error {
	start := time.Now()
	err := fn()
	f.stats.Calls++
	f.metrics.RecordLedgerCall(op, dest, time.Since(start))
	return err
}

func (f *flush) succeed(w *WriteIntent) {
	f.stats.Executed++
	f.stats.ByKind[w.Kind]++
	f.stats.ByDestination[w.Destination]++
	f.metrics.RecordIntentExecuted(string(w.Kind), "executed")
}

// fail records err and returns it when the flush must halt.
func (f *flush) fail(err *EngineError, w *WriteIntent) error {
	if w != nil {
		err = err.WithIntent(w.ID)
		f.metrics.RecordIntentExecuted(string(w.Kind), "failed")
	}
	f.stats.Errors = append(f.stats.Errors, err)
	f.metrics.RecordError(string(err.Class), err.Code)
	f.logger.WithDestination(err.Destination).WithError(err).Warn("Ledger write failed")
	if f.strict {
		return err
	}
	return nil
}

func writeFailed(dest string, err error) *EngineError {
	return NewExecutionError("ledger write failed", err).WithDestination(dest)
}

// byPriority returns intents ordered by priority, keeping insertion order on ties.
func byPriority(intents []*WriteIntent) []*WriteIntent {
	sort.SliceStable(intents, func(i, j int) bool {
		return intents[i].Priority < intents[j].Priority
	})
	return intents
}

// groupByDestination splits intents per destination in first-seen order.
func groupByDestination(intents []*WriteIntent) [][]*WriteIntent {
	index := make(map[string]int)
	var groups [][]*WriteIntent
	for _, w := range intents {
		i, ok := index[w.Destination]
		if !ok {
			i = len(groups)
			index[w.Destination] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], w)
	}
	return groups
}

// suggest returns the closest known name within a small edit distance.
func suggest(name string, known []string) string {
	best, bestDist := "", 4
	for _, k := range known {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(k))
		if d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
