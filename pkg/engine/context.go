package engine

import (
	"time"

	"github.com/citysim/cyclekernel/pkg/rng"
)

// Defaults substituted when a collaborator did not supply a signal.
const (
	DefaultWeatherImpact = 1.0
	DefaultComfortIndex  = 0.5
	DefaultEconomicMood  = 50.0
	DefaultIllnessRate   = 0.0
)

// Cycled is implemented by records tagged with the cycle that produced them.
type Cycled interface {
	CycleNumber() int
}

func (e Event) CycleNumber() int          { return e.Cycle }
func (a AuditIssue) CycleNumber() int     { return a.Cycle }
func (h StoryHook) CycleNumber() int      { return h.Cycle }
func (t TextureTrigger) CycleNumber() int { return t.Cycle }

// CurrentCycle keeps only the items tagged with cycle. Historical entries
// must never reach a scoring module.
func CurrentCycle[T Cycled](items []T, cycle int) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item.CycleNumber() == cycle {
			out = append(out, item)
		}
	}
	return out
}

// NewCycleContext builds the context for one cycle. The seed defaults to the
// cycle ID and array inputs are filtered to the current cycle.
func NewCycleContext(in Inputs, mode Mode) *CycleContext {
	seed := int64(in.CycleID)
	if in.Seed != nil {
		seed = *in.Seed
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return &CycleContext{
		CycleID:         in.CycleID,
		Seed:            seed,
		Timestamp:       ts,
		Mode:            mode,
		RNG:             rng.NewProvider(seed),
		Calendar:        in.Calendar,
		Weather:         in.Weather,
		WeatherMood:     in.WeatherMood,
		EconomicMood:    in.EconomicMood,
		IllnessRate:     in.IllnessRate,
		ShockFlag:       in.ShockFlag,
		Events:          CurrentCycle(in.WorldEvents, in.CycleID),
		AuditIssues:     CurrentCycle(in.AuditIssues, in.CycleID),
		StoryHooks:      CurrentCycle(in.StoryHooks, in.CycleID),
		TextureTriggers: CurrentCycle(in.TextureTriggers, in.CycleID),
		Arcs:            in.Arcs,
		Neighborhoods:   in.Neighborhoods,
		StorySeeds:      in.StorySeeds,
		Bonds:           in.Bonds,
		PriorRecovery:   RecoveryState{Level: RecoveryNone},
		Config:          make(map[string]any),
		Intents:         NewQueue(),
	}
}

// Reseed installs a new RNG provider, used when replaying a recorded seed.
func (cc *CycleContext) Reseed(seed int64) {
	cc.Seed = seed
	cc.RNG = rng.NewProvider(seed)
}

// AddEvents appends generated events to the current cycle.
func (cc *CycleContext) AddEvents(events ...Event) {
	for _, ev := range events {
		ev.Cycle = cc.CycleID
		cc.Events = append(cc.Events, ev)
		cc.Summary.GeneratedEvents = append(cc.Summary.GeneratedEvents, ev)
	}
}

// WeatherType returns the weather type or "" when unknown.
func (cc *CycleContext) WeatherType() string {
	if cc.Weather == nil {
		return ""
	}
	return cc.Weather.Type
}

// WeatherImpact returns the weather impact, defaulting to 1.0.
func (cc *CycleContext) WeatherImpact() float64 {
	if cc.Weather == nil || cc.Weather.Impact == 0 {
		return DefaultWeatherImpact
	}
	return cc.Weather.Impact
}

// ComfortIndex returns the weather comfort index, defaulting to 0.5.
func (cc *CycleContext) ComfortIndex() float64 {
	if cc.WeatherMood == nil {
		return DefaultComfortIndex
	}
	return cc.WeatherMood.ComfortIndex
}

// Mood returns the economic mood, defaulting to 50.
func (cc *CycleContext) Mood() float64 {
	if cc.EconomicMood == nil {
		return DefaultEconomicMood
	}
	return *cc.EconomicMood
}

// Illness returns the illness rate, defaulting to 0.
func (cc *CycleContext) Illness() float64 {
	if cc.IllnessRate == nil {
		return DefaultIllnessRate
	}
	return *cc.IllnessRate
}

// HasShock reports whether a shock flag is raised.
func (cc *CycleContext) HasShock() bool {
	return cc.ShockFlag != "" && cc.ShockFlag != "none"
}

// ArcsAtPeak counts arcs in their peak phase.
func (cc *CycleContext) ArcsAtPeak() int {
	n := 0
	for _, arc := range cc.Arcs {
		if arc.AtPeak() {
			n++
		}
	}
	return n
}

// CountSeverity counts current-cycle events of the given severity.
func (cc *CycleContext) CountSeverity(s Severity) int {
	n := 0
	for _, ev := range cc.Events {
		if ev.Severity == s {
			n++
		}
	}
	return n
}

// CivicFlag returns the civic-load flag, defaulting to stable.
func (cc *CycleContext) CivicFlag() Flag {
	if cc.Summary.CivicLoad.Flag == "" {
		return FlagStable
	}
	return cc.Summary.CivicLoad.Flag
}

// PriorSuppression returns the multipliers implied by the previous cycle's recovery level.
func (cc *CycleContext) PriorSuppression() Suppression {
	return SuppressionFor(cc.PriorRecovery.Level)
}

// SuppressionFor returns the fixed multiplier table for a recovery level.
func SuppressionFor(level RecoveryLevel) Suppression {
	switch level {
	case RecoveryHeavy:
		return Suppression{Event: 0.5, Hook: 0.5, Texture: 0.6}
	case RecoveryModerate:
		return Suppression{Event: 0.75, Hook: 0.6, Texture: 0.7}
	case RecoveryLight:
		return Suppression{Event: 0.9, Hook: 0.85, Texture: 0.8}
	default:
		return NoSuppression
	}
}
