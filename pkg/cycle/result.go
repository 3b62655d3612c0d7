package cycle

import (
	"time"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/replay"
)

// Phase names, in execution order.
const (
	PhaseHealth    = "health"
	PhaseBootstrap = "bootstrap"
	PhaseLoadState = "load_state"
	PhaseReplay    = "replay_init"
	PhaseGenerate  = "generate"
	PhaseScore     = "score"
	PhaseRecovery  = "recovery"
	PhaseSeed      = "seed"
	PhaseQueue     = "queue"
	PhaseExecute   = "execute"
	PhaseCompare   = "compare"
)

// PhaseTiming is the wall time of one phase. Only collected in profile mode.
type PhaseTiming struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// Result is everything a finished cycle reports back.
type Result struct {
	RunID   string             `json:"run_id"`
	CycleID int                `json:"cycle_id"`
	Seed    int64              `json:"seed"`
	Mode    engine.Mode        `json:"mode"`
	Status  engine.CycleStatus `json:"status"`

	Summary engine.Summary `json:"summary"`

	// Queue counts the intents staged before execution.
	Queue            engine.QueueSummary     `json:"queue"`
	ValidationErrors []*engine.EngineError   `json:"validation_errors,omitempty"`
	Stats            *engine.ExecutionStats  `json:"stats,omitempty"`
	Created          []string                `json:"created_tables,omitempty"`
	SeedRecord       *replay.CycleSeedRecord `json:"seed_record,omitempty"`
	SeedQueued       bool                    `json:"seed_queued"`

	// Replay is set for replay runs.
	Replay *replay.Comparison `json:"replay,omitempty"`

	Phases    []PhaseTiming `json:"phases,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`

	// Context is the final cycle context. After a dry run or replay its
	// queue still holds every staged intent.
	Context *engine.CycleContext `json:"-"`
}

// Duration returns how long the cycle took.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Matched reports whether a replay reproduced its recorded checksum.
// Non-replay results always match.
func (r *Result) Matched() bool {
	return r.Replay == nil || r.Replay.Match
}

func statusOf(stats *engine.ExecutionStats, err error) engine.CycleStatus {
	switch {
	case err != nil || (stats != nil && stats.Halted):
		return engine.CycleStatusFailed
	case stats != nil && len(stats.Errors) > 0:
		return engine.CycleStatusPartial
	default:
		return engine.CycleStatusSucceeded
	}
}
