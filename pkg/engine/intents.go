package engine

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Default priorities per bucket. Lower runs first.
const (
	PriorityReplace = 50
	PriorityUpdate  = 100
	PriorityLog     = 200

	// Non-replace intents below this priority are updates; the rest are logs.
	updateCutoff = 150
)

// Address locates a cell or the top-left corner of a range in ledger rows.
type Address struct {
	Row int `json:"row" validate:"gte=0"`
	Col int `json:"col" validate:"gte=0"`
}

// WriteIntent is a deferred description of one ledger mutation.
type WriteIntent struct {
	// ID uniquely identifies the intent.
	ID string `json:"id"`

	// Kind selects the ledger operation.
	Kind IntentKind `json:"kind" validate:"required,oneof=cell range append replace"`

	// Destination is the ledger table.
	Destination string `json:"destination" validate:"required"`

	// Address is required for cell and range intents.
	Address *Address `json:"address,omitempty"`

	// Values holds the rows to write; a cell intent carries one row of one value.
	Values [][]Value `json:"values" validate:"required,min=1,dive,min=1"`

	// Priority orders intents inside a bucket.
	Priority int `json:"priority"`

	// Reason explains why the write exists.
	Reason string `json:"reason,omitempty"`

	// Domain tags the write for summaries.
	Domain string `json:"domain,omitempty"`

	// Bucket is the execution tier the intent landed in.
	Bucket Bucket `json:"bucket"`

	// Seq is the insertion order across the whole queue.
	Seq int `json:"seq"`
}

// RowCount returns the number of rows the intent writes.
func (w *WriteIntent) RowCount() int {
	return len(w.Values)
}

// IntentOption customizes a queued intent.
type IntentOption func(*WriteIntent)

// WithPriority overrides the default priority, which may move the intent
// between the updates and logs buckets.
func WithPriority(priority int) IntentOption {
	return func(w *WriteIntent) {
		w.Priority = priority
	}
}

// QueueSummary counts queued intents for logs and dry-run reports.
type QueueSummary struct {
	Total         int                `json:"total"`
	ByKind        map[IntentKind]int `json:"by_kind"`
	ByDestination map[string]int     `json:"by_destination"`
	ByDomain      map[string]int     `json:"by_domain"`
	ByBucket      map[Bucket]int     `json:"by_bucket"`
}

// Queue holds write intents in three buckets until the executor drains them.
// Queuing never performs I/O.
type Queue struct {
	buckets  map[Bucket][]*WriteIntent
	seq      int
	errs     []*EngineError
	validate *validator.Validate
	metrics  *telemetry.Metrics
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueMetrics counts accepted intents.
func WithQueueMetrics(m *telemetry.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		buckets:  make(map[Bucket][]*WriteIntent, len(Buckets)),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueueCell queues a single-cell write.
func (q *Queue) QueueCell(dest string, row, col int, value Value, reason, domain string, opts ...IntentOption) (*WriteIntent, error) {
	return q.add(&WriteIntent{
		Kind:        IntentCell,
		Destination: dest,
		Address:     &Address{Row: row, Col: col},
		Values:      [][]Value{{value}},
		Priority:    PriorityUpdate,
		Reason:      reason,
		Domain:      domain,
	}, opts)
}

// QueueRange queues a rectangular write starting at (row, col).
func (q *Queue) QueueRange(dest string, row, col int, values [][]Value, reason, domain string, opts ...IntentOption) (*WriteIntent, error) {
	return q.add(&WriteIntent{
		Kind:        IntentRange,
		Destination: dest,
		Address:     &Address{Row: row, Col: col},
		Values:      copyRows(values),
		Priority:    PriorityUpdate,
		Reason:      reason,
		Domain:      domain,
	}, opts)
}

// QueueAppend queues one row to append.
func (q *Queue) QueueAppend(dest string, row []Value, reason, domain string, opts ...IntentOption) (*WriteIntent, error) {
	var values [][]Value
	if row != nil {
		values = copyRows([][]Value{row})
	}
	return q.add(&WriteIntent{
		Kind:        IntentAppend,
		Destination: dest,
		Values:      values,
		Priority:    PriorityLog,
		Reason:      reason,
		Domain:      domain,
	}, opts)
}

// QueueBatchAppend queues several rows to append as one intent.
func (q *Queue) QueueBatchAppend(dest string, rows [][]Value, reason, domain string, opts ...IntentOption) (*WriteIntent, error) {
	return q.add(&WriteIntent{
		Kind:        IntentAppend,
		Destination: dest,
		Values:      copyRows(rows),
		Priority:    PriorityLog,
		Reason:      reason,
		Domain:      domain,
	}, opts)
}

// QueueReplace queues a full table replacement; rows[0] is the header.
func (q *Queue) QueueReplace(dest string, rows [][]Value, reason, domain string, opts ...IntentOption) (*WriteIntent, error) {
	return q.add(&WriteIntent{
		Kind:        IntentReplace,
		Destination: dest,
		Values:      copyRows(rows),
		Priority:    PriorityReplace,
		Reason:      reason,
		Domain:      domain,
	}, opts)
}

func (q *Queue) add(w *WriteIntent, opts []IntentOption) (*WriteIntent, error) {
	for _, opt := range opts {
		opt(w)
	}

	if err := q.check(w); err != nil {
		verr := NewValidationError(fmt.Sprintf("invalid %s intent", w.Kind), err).
			WithDestination(w.Destination).
			WithDetail("reason", w.Reason)
		q.errs = append(q.errs, verr)
		q.metrics.RecordError(string(verr.Class), verr.Code)
		return nil, verr
	}

	w.ID = uuid.New().String()
	w.Seq = q.seq
	q.seq++
	w.Bucket = bucketFor(w)
	q.buckets[w.Bucket] = append(q.buckets[w.Bucket], w)
	q.metrics.RecordIntentQueued(string(w.Kind), string(w.Bucket))
	return w, nil
}

func (q *Queue) check(w *WriteIntent) error {
	if err := q.validate.Struct(w); err != nil {
		return err
	}
	switch w.Kind {
	case IntentCell:
		if w.Address == nil {
			return fmt.Errorf("cell intent requires an address")
		}
		if len(w.Values) != 1 || len(w.Values[0]) != 1 {
			return fmt.Errorf("cell intent must carry exactly one value")
		}
	case IntentRange:
		if w.Address == nil {
			return fmt.Errorf("range intent requires an address")
		}
	case IntentReplace:
		if len(w.Values[0]) == 0 {
			return fmt.Errorf("replace intent requires a header row")
		}
	}
	return nil
}

func bucketFor(w *WriteIntent) Bucket {
	switch {
	case w.Kind == IntentReplace:
		return BucketReplace
	case w.Priority < updateCutoff:
		return BucketUpdates
	default:
		return BucketLogs
	}
}

// Intents returns a copy of the intents in a bucket, in insertion order.
func (q *Queue) Intents(b Bucket) []*WriteIntent {
	src := q.buckets[b]
	out := make([]*WriteIntent, len(src))
	copy(out, src)
	return out
}

// Len returns the total number of queued intents.
func (q *Queue) Len() int {
	n := 0
	for _, b := range Buckets {
		n += len(q.buckets[b])
	}
	return n
}

// ValidationErrors returns every intent rejected so far.
func (q *Queue) ValidationErrors() []*EngineError {
	out := make([]*EngineError, len(q.errs))
	copy(out, q.errs)
	return out
}

// Summary counts the queued intents.
func (q *Queue) Summary() QueueSummary {
	s := QueueSummary{
		ByKind:        make(map[IntentKind]int),
		ByDestination: make(map[string]int),
		ByDomain:      make(map[string]int),
		ByBucket:      make(map[Bucket]int),
	}
	for _, b := range Buckets {
		for _, w := range q.buckets[b] {
			s.Total++
			s.ByKind[w.Kind]++
			s.ByDestination[w.Destination]++
			s.ByBucket[b]++
			if w.Domain != "" {
				s.ByDomain[w.Domain]++
			}
		}
	}
	return s
}

// Clear empties all buckets. Validation errors are kept.
func (q *Queue) Clear() {
	q.buckets = make(map[Bucket][]*WriteIntent, len(Buckets))
}

func copyRows(rows [][]Value) [][]Value {
	if rows == nil {
		return nil
	}
	out := make([][]Value, len(rows))
	for i, row := range rows {
		out[i] = append([]Value(nil), row...)
	}
	return out
}
