package recovery

import (
	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/signals"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Minimum window lengths, in cycles, opened by each triggered level.
var minWindow = map[engine.RecoveryLevel]int{
	engine.RecoveryHeavy:    3,
	engine.RecoveryModerate: 2,
	engine.RecoveryLight:    1,
}

// Machine evaluates recovery once per cycle.
type Machine struct {
	cfg      Config
	overload *signals.Accumulator
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(m *Machine) {
		m.logger = l.NewComponentLogger("recovery")
	}
}

// WithMetrics publishes the level and overload score as gauges.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// WithOverload replaces the overload accumulator.
func WithOverload(acc *signals.Accumulator) Option {
	return func(m *Machine) {
		m.overload = acc
	}
}

// NewMachine creates a recovery state machine.
func NewMachine(cfg Config, opts ...Option) *Machine {
	m := &Machine{
		cfg:      cfg,
		overload: Overload(),
		logger:   telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Thresholds applies the calendar modifiers to the base thresholds and
// clamps each to its floor.
func (m *Machine) Thresholds(cal engine.Calendar) engine.Thresholds {
	adj := m.cfg.Modifiers.adjustment(cal)
	return engine.Thresholds{
		Light:    max(m.cfg.Base.Light+adj, m.cfg.Floors.Light),
		Moderate: max(m.cfg.Base.Moderate+adj, m.cfg.Floors.Moderate),
		Heavy:    max(m.cfg.Base.Heavy+adj, m.cfg.Floors.Heavy),
	}
}

// Trigger returns the highest level whose threshold the score reaches.
func Trigger(score int, t engine.Thresholds) engine.RecoveryLevel {
	switch {
	case score >= t.Heavy:
		return engine.RecoveryHeavy
	case score >= t.Moderate:
		return engine.RecoveryModerate
	case score >= t.Light:
		return engine.RecoveryLight
	default:
		return engine.RecoveryNone
	}
}

// Merge combines the triggered level with the previous cycle's state.
//
// Heavy always resets the window. Moderate and light open a window when none
// is active; otherwise the level is the higher of the trigger and the
// previous level decayed by one step, and the window only grows. Without a
// trigger an active window decays one step and closes when it reaches none.
func Merge(prev engine.RecoveryState, triggered engine.RecoveryLevel, cycle int) engine.RecoveryState {
	var next engine.RecoveryState

	switch triggered {
	case engine.RecoveryHeavy:
		next = engine.RecoveryState{StartCycle: cycle, Window: minWindow[engine.RecoveryHeavy], Level: engine.RecoveryHeavy}

	case engine.RecoveryModerate, engine.RecoveryLight:
		if !prev.Active() {
			next = engine.RecoveryState{StartCycle: cycle, Window: minWindow[triggered], Level: triggered}
			break
		}
		next = engine.RecoveryState{
			StartCycle: prev.StartCycle,
			Window:     max(prev.Window, minWindow[triggered]),
			Level:      engine.MaxLevel(triggered, prev.Level.StepDown()),
		}

	default:
		if !prev.Active() {
			next = engine.RecoveryState{Level: engine.RecoveryNone}
			break
		}
		decayed := prev.Level.StepDown()
		if decayed == engine.RecoveryNone {
			next = engine.RecoveryState{Level: engine.RecoveryNone}
			break
		}
		next = engine.RecoveryState{StartCycle: prev.StartCycle, Window: prev.Window, Level: decayed}
	}

	if next.Active() {
		next.Duration = cycle - next.StartCycle
	}
	return next
}

// Evaluate runs the state machine for the cycle and stores the outcome in
// the summary. It reads the civic-load score, so signals run first.
func (m *Machine) Evaluate(cc *engine.CycleContext) *engine.RecoveryOutcome {
	score := m.overload.Evaluate(cc)
	thresholds := m.Thresholds(cc.Calendar)
	triggered := Trigger(score.Value, thresholds)
	next := Merge(cc.PriorRecovery, triggered, cc.CycleID)

	out := &engine.RecoveryOutcome{
		Level:         next.Level,
		Triggered:     triggered,
		OverloadScore: score.Value,
		Reasons:       score.Reasons,
		Thresholds:    thresholds,
		Multipliers:   engine.SuppressionFor(next.Level),
		Persisted:     next,
	}
	cc.Summary.Recovery = out

	m.metrics.SetRecovery(next.Level.Rank(), score.Value)

	zl := m.logger.Zerolog()
	ev := zl.Debug()
	if next.Level != cc.PriorRecovery.Level {
		ev = zl.Info()
	}
	ev.Int("cycle_id", cc.CycleID).
		Int("overload", score.Value).
		Str("triggered", string(triggered)).
		Str("from", string(cc.PriorRecovery.Level)).
		Str("to", string(next.Level)).
		Int("window", next.Window).
		Msg("Recovery evaluated")
	return out
}
