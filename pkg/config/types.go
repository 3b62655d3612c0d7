package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/policy"
	"github.com/citysim/cyclekernel/pkg/recovery"
	"github.com/citysim/cyclekernel/pkg/signals"
	"github.com/citysim/cyclekernel/pkg/stores"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Config is the complete cycle kernel configuration.
type Config struct {
	// Store selects and tunes the ledger store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`

	// Recovery tunes the recovery state machine.
	Recovery recovery.Config `json:"recovery" yaml:"recovery"`

	// Generation tunes crisis event generation.
	Generation signals.GeneratorConfig `json:"generation" yaml:"generation"`

	// Mode holds defaults for flags not given on the command line.
	Mode ModeDefaults `json:"mode" yaml:"mode"`

	// Rules are Starlark scoring rules attached to signal modules.
	Rules []RuleScript `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`

	// Policy configures the write guard.
	Policy policy.Config `json:"policy" yaml:"policy"`

	// Dir is the directory of the file the config was loaded from. Relative
	// rule and policy paths resolve against it.
	Dir string `json:"-" yaml:"-"`
}

// StoreConfig selects the ledger store.
type StoreConfig struct {
	// Driver is sqlite or memory.
	Driver string `json:"driver" yaml:"driver" validate:"required,oneof=sqlite memory"`

	// Path is the SQLite database file, or ":memory:".
	Path string `json:"path" yaml:"path" validate:"required_if=Driver sqlite"`

	MaxOpenConns    int      `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int      `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// SQLite converts the store section into the SQLite store's settings.
func (s StoreConfig) SQLite() stores.Config {
	return stores.Config{
		Path:            s.Path,
		MaxOpenConns:    s.MaxOpenConns,
		MaxIdleConns:    s.MaxIdleConns,
		ConnMaxLifetime: time.Duration(s.ConnMaxLifetime),
	}
}

// ModeDefaults are applied to every run unless overridden.
type ModeDefaults struct {
	Strict  bool `json:"strict" yaml:"strict"`
	Profile bool `json:"profile" yaml:"profile"`
}

// Apply sets the defaults on m.
func (d ModeDefaults) Apply(m engine.Mode) engine.Mode {
	m.Strict = m.Strict || d.Strict
	m.Profile = m.Profile || d.Profile
	return m
}

// RuleScript attaches a Starlark rule to a signal module. Exactly one of
// Source and File is set.
type RuleScript struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Module string `json:"module" yaml:"module" validate:"required,oneof=civic_load cycle_weight pattern migration_drift"`
	Source string `json:"source,omitempty" yaml:"source,omitempty" validate:"required_without=File,excluded_with=File"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Duration is a time.Duration that decodes from "30s" style strings or
// integer nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	v, err := telemetry.ParseDuration(data)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DefaultConfig returns the configuration used when no file is given: an
// in-memory store, console logging and the stock tuning.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:          "memory",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: Duration(time.Hour),
		},
		Telemetry:  *telemetry.DefaultConfig(),
		Recovery:   recovery.DefaultConfig(),
		Generation: signals.DefaultGeneratorConfig(),
		Policy:     policy.DefaultConfig(),
	}
}

// Validate checks struct tags and each section's own rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if seen[r.Name] {
			return fmt.Errorf("invalid config: duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// ValidationError represents a configuration error with its location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "store.driver").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a file fails schema validation.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.String()
	}
	return "config validation failed: " + strings.Join(msgs, "; ")
}
