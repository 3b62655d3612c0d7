package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueueRejectsInvalidIntents(t *testing.T) {
	tests := []struct {
		name  string
		queue func(q *Queue) (*WriteIntent, error)
	}{
		{
			name: "missing destination",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueCell("", 1, 1, "x", "test", "civic")
			},
		},
		{
			name: "negative address",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueCell("Dashboard", -1, 0, "x", "test", "civic")
			},
		},
		{
			name: "nil append row",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueAppend("Cycle_Log", nil, "test", "civic")
			},
		},
		{
			name: "empty append row",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueAppend("Cycle_Log", []Value{}, "test", "civic")
			},
		},
		{
			name: "no rows in batch",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueBatchAppend("Cycle_Log", [][]Value{}, "test", "civic")
			},
		},
		{
			name: "empty row inside range",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueRange("Dashboard", 1, 0, [][]Value{{1, 2}, {}}, "test", "civic")
			},
		},
		{
			name: "replace without rows",
			queue: func(q *Queue) (*WriteIntent, error) {
				return q.QueueReplace("Recovery_State", nil, "test", "recovery")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			w, err := tt.queue(q)
			if err == nil {
				t.Fatalf("expected validation error, got intent %+v", w)
			}
			if !IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			if q.Len() != 0 {
				t.Errorf("rejected intent was queued")
			}
			if got := len(q.ValidationErrors()); got != 1 {
				t.Errorf("ValidationErrors() = %d, want 1", got)
			}
		})
	}
}

func TestQueueBuckets(t *testing.T) {
	q := NewQueue()

	mustQueue(t)(q.QueueAppend("Cycle_Log", []Value{1}, "log", "civic"))
	mustQueue(t)(q.QueueCell("Dashboard", 1, 0, "stable", "flag", "civic"))
	mustQueue(t)(q.QueueRange("Dashboard", 1, 1, [][]Value{{1, 2}}, "scores", "civic"))
	mustQueue(t)(q.QueueReplace("Recovery_State", [][]Value{{"level"}, {"none"}}, "state", "recovery"))
	mustQueue(t)(q.QueueAppend("World_Events", []Value{"fire"}, "urgent", "crime", WithPriority(120)))
	mustQueue(t)(q.QueueCell("Dashboard", 2, 0, "late", "late", "civic", WithPriority(180)))

	got := map[Bucket][]IntentKind{}
	for _, b := range Buckets {
		for _, w := range q.Intents(b) {
			got[b] = append(got[b], w.Kind)
		}
	}
	want := map[Bucket][]IntentKind{
		BucketReplace: {IntentReplace},
		BucketUpdates: {IntentCell, IntentRange, IntentAppend},
		BucketLogs:    {IntentAppend, IntentCell},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bucket contents mismatch (-want +got):\n%s", diff)
	}

	if q.Len() != 6 {
		t.Errorf("Len() = %d, want 6", q.Len())
	}
}

func TestQueueDefaultPriorities(t *testing.T) {
	q := NewQueue()
	replace := mustQueue(t)(q.QueueReplace("Recovery_State", [][]Value{{"level"}}, "", ""))
	cell := mustQueue(t)(q.QueueCell("Dashboard", 1, 0, 1, "", ""))
	appendIntent := mustQueue(t)(q.QueueAppend("Cycle_Log", []Value{1}, "", ""))

	if replace.Priority != PriorityReplace || cell.Priority != PriorityUpdate || appendIntent.Priority != PriorityLog {
		t.Errorf("priorities = %d/%d/%d, want %d/%d/%d",
			replace.Priority, cell.Priority, appendIntent.Priority,
			PriorityReplace, PriorityUpdate, PriorityLog)
	}
	if replace.ID == "" || replace.ID == cell.ID {
		t.Errorf("intent IDs must be unique and non-empty")
	}
	if cell.Seq != 1 || appendIntent.Seq != 2 {
		t.Errorf("sequence numbers = %d, %d; want 1, 2", cell.Seq, appendIntent.Seq)
	}
}

func TestQueueCopiesValues(t *testing.T) {
	q := NewQueue()
	row := []Value{"a", "b"}
	w := mustQueue(t)(q.QueueAppend("Cycle_Log", row, "", ""))
	row[0] = "mutated"
	if w.Values[0][0] != "a" {
		t.Errorf("queued intent shares memory with caller: %v", w.Values[0][0])
	}
}

func TestQueueSummaryAndClear(t *testing.T) {
	q := NewQueue()
	mustQueue(t)(q.QueueAppend("Cycle_Log", []Value{1}, "", "civic"))
	mustQueue(t)(q.QueueAppend("Cycle_Log", []Value{2}, "", "civic"))
	mustQueue(t)(q.QueueCell("Dashboard", 1, 0, 1, "", "recovery"))
	_, _ = q.QueueCell("", 1, 0, 1, "", "")

	s := q.Summary()
	if s.Total != 3 {
		t.Errorf("Total = %d, want 3", s.Total)
	}
	if s.ByDestination["Cycle_Log"] != 2 || s.ByKind[IntentAppend] != 2 || s.ByDomain["recovery"] != 1 {
		t.Errorf("unexpected summary %+v", s)
	}

	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d", q.Len())
	}
	if len(q.ValidationErrors()) != 1 {
		t.Errorf("Clear must keep validation errors")
	}
}

func mustQueue(t *testing.T) func(*WriteIntent, error) *WriteIntent {
	t.Helper()
	return func(w *WriteIntent, err error) *WriteIntent {
		t.Helper()
		if err != nil {
			t.Fatalf("queue failed: %v", err)
		}
		return w
	}
}
