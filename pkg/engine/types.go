package engine

import (
	"time"

	"github.com/citysim/cyclekernel/pkg/rng"
)

// Event is something that happened in the city during a cycle.
type Event struct {
	// Cycle is the cycle the event belongs to.
	Cycle int `json:"cycle" yaml:"cycle"`

	// Description is the human-readable headline.
	Description string `json:"description" yaml:"description"`

	// Domain is drawn from the fixed Domains set.
	Domain Domain `json:"domain" yaml:"domain"`

	// Severity governs suppression and caps.
	Severity Severity `json:"severity" yaml:"severity"`

	// Neighborhood is where the event took place.
	Neighborhood string `json:"neighborhood" yaml:"neighborhood"`
}

// Validate checks domain and severity.
func (e Event) Validate() error {
	if err := e.Domain.Validate(); err != nil {
		return err
	}
	return e.Severity.Validate()
}

// AuditIssue is a problem flagged by the city's audit feed.
type AuditIssue struct {
	Cycle       int    `json:"cycle" yaml:"cycle"`
	Description string `json:"description" yaml:"description"`
}

// StoryHook is a narrative lead produced for a cycle.
type StoryHook struct {
	Cycle int    `json:"cycle" yaml:"cycle"`
	Text  string `json:"text" yaml:"text"`
}

// TextureTrigger is a small atmospheric detail produced for a cycle.
type TextureTrigger struct {
	Cycle int    `json:"cycle" yaml:"cycle"`
	Text  string `json:"text" yaml:"text"`
}

// Arc is a multi-cycle storyline.
type Arc struct {
	Name         string `json:"name" yaml:"name"`
	Phase        string `json:"phase" yaml:"phase"`
	Neighborhood string `json:"neighborhood,omitempty" yaml:"neighborhood,omitempty"`
}

// AtPeak reports whether the arc is at its peak phase.
func (a Arc) AtPeak() bool {
	return a.Phase == "peak"
}

// Bond is a relationship between two citizens.
type Bond struct {
	CitizenA string `json:"citizen_a" yaml:"citizen_a"`
	CitizenB string `json:"citizen_b" yaml:"citizen_b"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// NeighborhoodStats is a population snapshot for one neighborhood.
type NeighborhoodStats struct {
	Name       string `json:"name" yaml:"name"`
	Population int    `json:"population" yaml:"population"`
	Arrivals   int    `json:"arrivals" yaml:"arrivals"`
	Departures int    `json:"departures" yaml:"departures"`
}

// Calendar is supplied by the calendar provider.
type Calendar struct {
	Season          string          `json:"season" yaml:"season"`
	Holiday         string          `json:"holiday" yaml:"holiday"`
	HolidayPriority HolidayPriority `json:"holiday_priority" yaml:"holiday_priority"`
	IsFirstFriday   bool            `json:"is_first_friday" yaml:"is_first_friday"`
	IsCreationDay   bool            `json:"is_creation_day" yaml:"is_creation_day"`
	SportsSeason    SportsSeason    `json:"sports_season" yaml:"sports_season"`
}

// Weather is supplied by the weather provider.
type Weather struct {
	Type   string  `json:"type" yaml:"type"`
	Impact float64 `json:"impact" yaml:"impact"`
}

// WeatherMood describes how the weather feels to residents.
type WeatherMood struct {
	ComfortIndex float64 `json:"comfort_index" yaml:"comfort_index"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Inputs is everything external collaborators hand to one cycle. Array fields
// may hold history from earlier cycles; the context filters them.
type Inputs struct {
	CycleID         int                 `json:"cycle_id" yaml:"cycle_id"`
	Seed            *int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
	Timestamp       time.Time           `json:"timestamp" yaml:"timestamp"`
	Calendar        Calendar            `json:"calendar" yaml:"calendar"`
	Weather         *Weather            `json:"weather,omitempty" yaml:"weather,omitempty"`
	WeatherMood     *WeatherMood        `json:"weather_mood,omitempty" yaml:"weather_mood,omitempty"`
	EconomicMood    *float64            `json:"economic_mood,omitempty" yaml:"economic_mood,omitempty"`
	IllnessRate     *float64            `json:"illness_rate,omitempty" yaml:"illness_rate,omitempty"`
	WorldEvents     []Event             `json:"world_events,omitempty" yaml:"world_events,omitempty"`
	AuditIssues     []AuditIssue        `json:"audit_issues,omitempty" yaml:"audit_issues,omitempty"`
	StoryHooks      []StoryHook         `json:"story_hooks,omitempty" yaml:"story_hooks,omitempty"`
	TextureTriggers []TextureTrigger    `json:"texture_triggers,omitempty" yaml:"texture_triggers,omitempty"`
	ShockFlag       string              `json:"shock_flag,omitempty" yaml:"shock_flag,omitempty"`
	Arcs            []Arc               `json:"arcs,omitempty" yaml:"arcs,omitempty"`
	Neighborhoods   []NeighborhoodStats `json:"neighborhoods,omitempty" yaml:"neighborhoods,omitempty"`
	StorySeeds      []string            `json:"story_seeds,omitempty" yaml:"story_seeds,omitempty"`
	Bonds           []Bond              `json:"bonds,omitempty" yaml:"bonds,omitempty"`
}

// Mode configures how a cycle runs.
type Mode struct {
	// DryRun computes everything but performs no ledger writes.
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	// Replay re-runs a recorded cycle with its original seed.
	Replay bool `json:"replay" yaml:"replay"`

	// ReplayCycleID is the cycle whose seed record is replayed.
	ReplayCycleID *int `json:"replay_cycle_id,omitempty" yaml:"replay_cycle_id,omitempty"`

	// Strict halts execution at the first write error.
	Strict bool `json:"strict" yaml:"strict"`

	// Profile records per-phase timings in the result.
	Profile bool `json:"profile" yaml:"profile"`
}

// Observing reports whether the mode forbids ledger mutation.
func (m Mode) Observing() bool {
	return m.DryRun || m.Replay
}

// String names the mode for logs and metrics labels.
func (m Mode) String() string {
	switch {
	case m.Replay:
		return "replay"
	case m.DryRun:
		return "dry-run"
	default:
		return "run"
	}
}

// Score is a numeric signal with the reasons behind it and its classification.
type Score struct {
	Value   int      `json:"value"`
	Reasons []string `json:"reasons,omitempty"`
	Flag    Flag     `json:"flag"`
}

// DynamicsVector maps a name (usually a neighborhood) to a signed rate.
type DynamicsVector map[string]float64

// PatternSignal is the output of pattern detection.
type PatternSignal struct {
	Score
	DominantDomain Domain `json:"dominant_domain,omitempty"`
	Hotspot        string `json:"hotspot,omitempty"`
}

// MigrationSignal is the output of migration drift.
type MigrationSignal struct {
	Score
	Dynamics DynamicsVector `json:"dynamics,omitempty"`
}

// Thresholds are the overload scores at which each recovery level triggers.
type Thresholds struct {
	Light    int `json:"light" yaml:"light" validate:"gte=0"`
	Moderate int `json:"moderate" yaml:"moderate" validate:"gtefield=Light"`
	Heavy    int `json:"heavy" yaml:"heavy" validate:"gtefield=Moderate"`
}

// Suppression holds the multipliers generators apply while recovering.
type Suppression struct {
	Event   float64 `json:"event"`
	Hook    float64 `json:"hook"`
	Texture float64 `json:"texture"`
}

// NoSuppression leaves generation volume untouched.
var NoSuppression = Suppression{Event: 1, Hook: 1, Texture: 1}

// RecoveryState is the only memory carried from one cycle to the next.
type RecoveryState struct {
	StartCycle int           `json:"start_cycle"`
	Window     int           `json:"window"`
	Duration   int           `json:"duration"`
	Level      RecoveryLevel `json:"level"`
}

// Active reports whether a recovery window is open.
func (s RecoveryState) Active() bool {
	return s.Window > 0 && s.Level.Rank() > 0
}

// RecoveryOutcome is what the recovery state machine produces each cycle.
type RecoveryOutcome struct {
	Level         RecoveryLevel `json:"level"`
	Triggered     RecoveryLevel `json:"triggered"`
	OverloadScore int           `json:"overload_score"`
	Reasons       []string      `json:"reasons,omitempty"`
	Thresholds    Thresholds    `json:"thresholds"`
	Multipliers   Suppression   `json:"multipliers"`
	Persisted     RecoveryState `json:"persisted"`
}

// Summary collects every signal a cycle derives. Modules set their own
// fields and never clear another module's.
type Summary struct {
	CivicLoad       Score            `json:"civic_load"`
	CycleWeight     Score            `json:"cycle_weight"`
	Pattern         PatternSignal    `json:"pattern"`
	Migration       MigrationSignal  `json:"migration"`
	GeneratedEvents []Event          `json:"generated_events,omitempty"`
	Recovery        *RecoveryOutcome `json:"recovery,omitempty"`
	Checksum        string           `json:"checksum,omitempty"`
}

// CycleContext is the single aggregate threaded through every phase of one
// cycle. It is owned by the running cycle and never shared across cycles.
type CycleContext struct {
	CycleID   int
	Seed      int64
	Timestamp time.Time
	Mode      Mode
	RNG       *rng.Provider

	Calendar     Calendar
	Weather      *Weather
	WeatherMood  *WeatherMood
	EconomicMood *float64
	IllnessRate  *float64
	ShockFlag    string

	// Current-cycle views; history from Inputs is filtered out.
	Events          []Event
	AuditIssues     []AuditIssue
	StoryHooks      []StoryHook
	TextureTriggers []TextureTrigger

	Arcs          []Arc
	Neighborhoods []NeighborhoodStats
	StorySeeds    []string
	Bonds         []Bond

	// PriorRecovery is the state persisted by the previous cycle.
	PriorRecovery RecoveryState

	Summary Summary
	Config  map[string]any
	Intents *Queue
}
