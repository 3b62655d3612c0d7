package policy

import (
	"fmt"
	"strings"

	"github.com/citysim/cyclekernel/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is logged but never blocks a write.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the write.
	SeverityError Severity = "error"

	// SeverityCritical blocks the write.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the write.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Validate checks that s is a known severity.
func (s Severity) Validate() error {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return nil
	}
	return fmt.Errorf("unknown severity %q", s)
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	Policy      string   `json:"policy"`
	Destination string   `json:"destination,omitempty"`
	IntentID    string   `json:"intent_id,omitempty"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
}

// Config selects the guard's policies and their settings.
type Config struct {
	// Files are extra .rego or .json policy files or directories.
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`

	// ProtectedTables only accept appends.
	ProtectedTables []string `json:"protected_tables,omitempty" yaml:"protected_tables,omitempty"`

	// MaxRows caps the rows a single intent may carry; 0 disables the cap.
	MaxRows int `json:"max_rows" yaml:"max_rows" validate:"gte=0"`

	// Disabled lists built-in policies to skip.
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// DefaultConfig protects the seed history and caps intents at 500 rows.
func DefaultConfig() Config {
	return Config{
		ProtectedTables: []string{"Cycle_Seeds"},
		MaxRows:         500,
	}
}

// Input is the document a policy sees as input.
type Input struct {
	Intent   IntentInput `json:"intent"`
	Settings Settings    `json:"settings"`
}

// IntentInput is the policy view of a write intent.
type IntentInput struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	Destination string           `json:"destination"`
	Address     *engine.Address  `json:"address,omitempty"`
	Rows        int              `json:"rows"`
	Width       int              `json:"width"`
	Values      [][]engine.Value `json:"values"`
	Priority    int              `json:"priority"`
	Reason      string           `json:"reason"`
	Domain      string           `json:"domain"`
	Bucket      string           `json:"bucket"`
}

// Settings are the configured limits policies compare against.
type Settings struct {
	ProtectedTables []string `json:"protected_tables"`
	MaxRows         int      `json:"max_rows"`
}

// NewInput builds the policy input for an intent.
func NewInput(w *engine.WriteIntent, settings Settings) Input {
	width := 0
	for _, row := range w.Values {
		if len(row) > width {
			width = len(row)
		}
	}
	if settings.ProtectedTables == nil {
		settings.ProtectedTables = []string{}
	}
	return Input{
		Intent: IntentInput{
			ID:          w.ID,
			Kind:        string(w.Kind),
			Destination: w.Destination,
			Address:     w.Address,
			Rows:        len(w.Values),
			Width:       width,
			Values:      w.Values,
			Priority:    w.Priority,
			Reason:      w.Reason,
			Domain:      w.Domain,
			Bucket:      string(w.Bucket),
		},
		Settings: settings,
	}
}

// DeniedError lists the blocking violations behind a denied write.
type DeniedError struct {
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return strings.Join(msgs, "; ")
}
