package replay

import (
	"context"
	"errors"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// InitializeReplay loads the record for cycleID, installs its seed and marks
// the context as replaying. Without a record the cycle ID itself is the
// seed and the returned record is nil.
func InitializeReplay(ctx context.Context, store engine.LedgerStore, cc *engine.CycleContext, cycleID int) (*CycleSeedRecord, error) {
	rec, err := LoadCycleSeed(ctx, store, cycleID)
	if err != nil && !errors.Is(err, ErrSeedNotFound) {
		return nil, err
	}

	seed := int64(cycleID)
	if rec != nil {
		seed = rec.Seed
	}
	cc.Reseed(seed)
	cc.Mode.Replay = true
	cc.Mode.ReplayCycleID = &cycleID
	return rec, nil
}

// Comparison is the result of checking a replayed cycle against its record.
type Comparison struct {
	Match            bool        `json:"match"`
	OriginalChecksum string      `json:"original_checksum"`
	CurrentChecksum  string      `json:"current_checksum"`
	Differences      []FieldDiff `json:"differences,omitempty"`
}

// Err returns a replay-mismatch error describing the comparison, or nil on a match.
func (c *Comparison) Err() error {
	if c.Match {
		return nil
	}
	e := engine.NewReplayMismatchError("replay checksum differs from the recorded cycle").
		WithDetail("original", c.OriginalChecksum).
		WithDetail("current", c.CurrentChecksum)
	for _, d := range c.Differences {
		e = e.WithDetail(d.Field, d.Original+" -> "+d.Current)
	}
	return e
}

// CompareReplayOutput recomputes the checksum of the replayed cycle and
// compares it with the original record. A missing record never matches.
func CompareReplayOutput(cc *engine.CycleContext, original *CycleSeedRecord) *Comparison {
	fp := FingerprintOf(cc)
	current := Checksum(cc)

	if original == nil {
		return &Comparison{
			CurrentChecksum: current,
			Differences:     []FieldDiff{{Field: "record", Original: "missing", Current: current}},
		}
	}

	c := &Comparison{
		Match:            original.Checksum == current,
		OriginalChecksum: original.Checksum,
		CurrentChecksum:  current,
	}
	if !c.Match {
		c.Differences = original.Fingerprint.Diff(fp)
	}
	return c
}
