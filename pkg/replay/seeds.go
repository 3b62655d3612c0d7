package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// SeedTable is the append-only ledger of cycle seeds.
const SeedTable = "Cycle_Seeds"

// SeedHeader is the header row of SeedTable.
var SeedHeader = []engine.Value{
	"cycle_id", "seed", "checksum", "timestamp",
	"weather", "holiday", "events", "story_seeds", "bonds", "illness",
}

// ErrSeedNotFound is returned when no record exists for a cycle.
var ErrSeedNotFound = errors.New("cycle seed not found")

// CycleSeedRecord is the persisted seed and checksum of one cycle.
type CycleSeedRecord struct {
	CycleID     int         `json:"cycle_id"`
	Seed        int64       `json:"seed"`
	Checksum    string      `json:"checksum"`
	Timestamp   time.Time   `json:"timestamp"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// NewRecord builds the record for a finished cycle, updating the summary checksum.
func NewRecord(cc *engine.CycleContext) *CycleSeedRecord {
	fp := FingerprintOf(cc)
	sum := fp.Sum()
	cc.Summary.Checksum = sum
	return &CycleSeedRecord{
		CycleID:     cc.CycleID,
		Seed:        cc.Seed,
		Checksum:    sum,
		Timestamp:   cc.Timestamp.UTC(),
		Fingerprint: fp,
	}
}

// Row renders the record as a SeedTable row. The seed is written as a
// string so it survives JSON number rounding.
func (r *CycleSeedRecord) Row() []engine.Value {
	fp := r.Fingerprint
	return []engine.Value{
		r.CycleID,
		fmt.Sprintf("%d", r.Seed),
		r.Checksum,
		r.Timestamp.Format(time.RFC3339),
		fp.Weather, fp.Holiday, fp.Events, fp.StorySeeds, fp.Bonds, fp.Illness,
	}
}

// recordAt maps data row i of SeedTable back to a record.
func recordAt(t *engine.Table, i int) (*CycleSeedRecord, error) {
	get := func(col string) (engine.Value, error) {
		v, ok := t.Get(i, col)
		if !ok {
			return nil, fmt.Errorf("%s row %d: missing %s", SeedTable, i+1, col)
		}
		return v, nil
	}
	getInt := func(col string) (int, error) {
		v, err := get(col)
		if err != nil {
			return 0, err
		}
		return engine.AsInt(v)
	}

	var (
		r   CycleSeedRecord
		err error
		v   engine.Value
	)
	if r.CycleID, err = getInt("cycle_id"); err != nil {
		return nil, err
	}
	if v, err = get("seed"); err != nil {
		return nil, err
	}
	if r.Seed, err = engine.AsInt64(v); err != nil {
		return nil, fmt.Errorf("%s row %d: bad seed: %w", SeedTable, i+1, err)
	}
	if v, err = get("checksum"); err != nil {
		return nil, err
	}
	r.Checksum = engine.AsString(v)

	if v, ok := t.Get(i, "timestamp"); ok {
		if ts, err := time.Parse(time.RFC3339, engine.AsString(v)); err == nil {
			r.Timestamp = ts
		}
	}

	// Fingerprint columns are optional; records without them still replay,
	// they only lose the field-level diff.
	fp := &r.Fingerprint
	if v, ok := t.Get(i, "weather"); ok {
		fp.Weather = engine.AsString(v)
	}
	if v, ok := t.Get(i, "holiday"); ok {
		fp.Holiday = engine.AsString(v)
	}
	if v, ok := t.Get(i, "illness"); ok {
		fp.Illness = engine.AsString(v)
	}
	for col, dst := range map[string]*int{"events": &fp.Events, "story_seeds": &fp.StorySeeds, "bonds": &fp.Bonds} {
		if v, ok := t.Get(i, col); ok {
			if n, err := engine.AsInt(v); err == nil {
				*dst = n
			}
		}
	}
	return &r, nil
}

// ListCycleSeeds returns every record in ledger order.
func ListCycleSeeds(ctx context.Context, store engine.LedgerStore) ([]*CycleSeedRecord, error) {
	t, err := store.Read(ctx, SeedTable)
	if errors.Is(err, engine.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SeedTable, err)
	}
	records := make([]*CycleSeedRecord, 0, len(t.Rows))
	for i := range t.Rows {
		r, err := recordAt(t, i)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// LoadCycleSeed returns the record for cycleID or an error wrapping
// ErrSeedNotFound.
func LoadCycleSeed(ctx context.Context, store engine.LedgerStore, cycleID int) (*CycleSeedRecord, error) {
	records, err := ListCycleSeeds(ctx, store)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.CycleID == cycleID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("cycle %d: %w", cycleID, ErrSeedNotFound)
}

// SaveCycleSeed queues the cycle's record as a log append unless the ledger
// already holds one for the cycle. It reports whether a record was queued.
func SaveCycleSeed(ctx context.Context, store engine.LedgerStore, cc *engine.CycleContext) (*CycleSeedRecord, bool, error) {
	rec := NewRecord(cc)

	existing, err := LoadCycleSeed(ctx, store, cc.CycleID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrSeedNotFound):
		return nil, false, err
	}

	if _, err := cc.Intents.QueueAppend(SeedTable, rec.Row(),
		fmt.Sprintf("seed record for cycle %d", cc.CycleID), "replay"); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
