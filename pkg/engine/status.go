package engine

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Domain is the fixed category an event belongs to.
type Domain string

const (
	DomainCivic          Domain = "civic"
	DomainCrime          Domain = "crime"
	DomainHealth         Domain = "health"
	DomainInfrastructure Domain = "infrastructure"
	DomainWeather        Domain = "weather"
	DomainCulture        Domain = "culture"
	DomainSports         Domain = "sports"
	DomainBusiness       Domain = "business"
	DomainCommunity      Domain = "community"
	DomainEducation      Domain = "education"
	DomainTransit        Domain = "transit"
	DomainEnvironment    Domain = "environment"
)

// Domains lists every valid domain in a stable order.
var Domains = []Domain{
	DomainCivic, DomainCrime, DomainHealth, DomainInfrastructure,
	DomainWeather, DomainCulture, DomainSports, DomainBusiness,
	DomainCommunity, DomainEducation, DomainTransit, DomainEnvironment,
}

// Validate checks if the domain is part of the fixed set.
func (d Domain) Validate() error {
	for _, known := range Domains {
		if d == known {
			return nil
		}
	}
	return fmt.Errorf("invalid domain: %s", d)
}

// UnmarshalYAML decodes and validates a domain.
func (d *Domain) UnmarshalYAML(value *yaml.Node) error {
	*d = Domain(value.Value)
	return d.Validate()
}

// Severity grades an event. It is assigned at creation and never inferred later.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Validate checks if the severity is valid.
func (s Severity) Validate() error {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return nil
	default:
		return fmt.Errorf("invalid severity: %s", s)
	}
}

// UnmarshalYAML decodes and validates a severity.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	*s = Severity(value.Value)
	return s.Validate()
}

// RecoveryLevel is the strictly ordered recovery intensity.
type RecoveryLevel string

const (
	RecoveryNone     RecoveryLevel = "none"
	RecoveryLight    RecoveryLevel = "light"
	RecoveryModerate RecoveryLevel = "moderate"
	RecoveryHeavy    RecoveryLevel = "heavy"
)

var recoveryRanks = map[RecoveryLevel]int{
	RecoveryNone:     0,
	RecoveryLight:    1,
	RecoveryModerate: 2,
	RecoveryHeavy:    3,
}

// Rank returns the position of the level in none < light < moderate < heavy.
// Unknown levels rank as none.
func (l RecoveryLevel) Rank() int {
	return recoveryRanks[l]
}

// StepDown returns the next lower level; none stays none.
func (l RecoveryLevel) StepDown() RecoveryLevel {
	switch l {
	case RecoveryHeavy:
		return RecoveryModerate
	case RecoveryModerate:
		return RecoveryLight
	default:
		return RecoveryNone
	}
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b RecoveryLevel) RecoveryLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Validate checks if the recovery level is valid.
func (l RecoveryLevel) Validate() error {
	if _, ok := recoveryRanks[l]; !ok {
		return fmt.Errorf("invalid recovery level: %s", l)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (l RecoveryLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(l))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (l *RecoveryLevel) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*l = RecoveryLevel(str)
	return l.Validate()
}

// Flag is a classification produced by a signal module.
type Flag string

const (
	FlagStable          Flag = "stable"
	FlagMinorVariance   Flag = "minor-variance"
	FlagLoadStrain      Flag = "load-strain"
	FlagLowSignal       Flag = "low-signal"
	FlagMediumSignal    Flag = "medium-signal"
	FlagHighSignal      Flag = "high-signal"
	FlagNoPattern       Flag = "none"
	FlagEmergingPattern Flag = "emerging-pattern"
	FlagPatternWave     Flag = "pattern-wave"
	FlagMigrationStable Flag = "stable"
	FlagDrift           Flag = "drift"
	FlagExodusPressure  Flag = "exodus-pressure"
)

// HolidayPriority tells how strongly a holiday shapes the cycle.
type HolidayPriority string

const (
	HolidayNone  HolidayPriority = "none"
	HolidayMinor HolidayPriority = "minor"
	HolidayMajor HolidayPriority = "major"
)

// SportsSeason is the sports calendar phase.
type SportsSeason string

const (
	SportsOff          SportsSeason = "off"
	SportsRegular      SportsSeason = "regular"
	SportsPlayoffs     SportsSeason = "playoffs"
	SportsChampionship SportsSeason = "championship"
)

// IntentKind is the tag of a write intent.
type IntentKind string

const (
	IntentCell    IntentKind = "cell"
	IntentRange   IntentKind = "range"
	IntentAppend  IntentKind = "append"
	IntentReplace IntentKind = "replace"
)

// Bucket is the execution tier an intent is queued into.
type Bucket string

const (
	BucketReplace Bucket = "replace"
	BucketUpdates Bucket = "updates"
	BucketLogs    Bucket = "logs"
)

// Buckets lists the buckets in execution order.
var Buckets = []Bucket{BucketReplace, BucketUpdates, BucketLogs}

// CycleStatus is the outcome of a cycle run.
type CycleStatus string

const (
	// CycleStatusSucceeded indicates every queued write was flushed or skipped cleanly.
	CycleStatusSucceeded CycleStatus = "succeeded"

	// CycleStatusPartial indicates the cycle completed with execution errors.
	CycleStatusPartial CycleStatus = "partial"

	// CycleStatusFailed indicates the cycle was aborted or halted in strict mode.
	CycleStatusFailed CycleStatus = "failed"
)
