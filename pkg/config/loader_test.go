package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/citysim/cyclekernel/pkg/engine"
)

const yamlConfig = `
store:
  driver: sqlite
  path: ledger.db
  conn_max_lifetime: 10m
telemetry:
  logging:
    level: debug
  tracing:
    export_timeout: 5s
recovery:
  base: {light: 4, moderate: 7, heavy: 11}
  modifiers:
    seasons: {winter: 1}
generation:
  neighborhoods: [Harbor, Downtown]
mode:
  strict: true
rules:
  - name: festival_bonus
    module: civic_load
    source: |
      def score(facts):
          return 0
policy:
  max_rows: 50
`

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadBytes(context.Background(), "kernel.yaml", []byte(yamlConfig))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}

	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "ledger.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if time.Duration(cfg.Store.ConnMaxLifetime) != 10*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 10m", time.Duration(cfg.Store.ConnMaxLifetime))
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want debug level with default console format", cfg.Telemetry.Logging)
	}
	if cfg.Telemetry.Tracing.ExportTimeout != 5*time.Second {
		t.Errorf("ExportTimeout = %v", cfg.Telemetry.Tracing.ExportTimeout)
	}
	if diff := cmp.Diff(engine.Thresholds{Light: 4, Moderate: 7, Heavy: 11}, cfg.Recovery.Base); diff != "" {
		t.Errorf("Base mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(engine.Thresholds{Light: 2, Moderate: 4, Heavy: 7}, cfg.Recovery.Floors); diff != "" {
		t.Errorf("Floors should keep defaults (-want +got):\n%s", diff)
	}
	if cfg.Recovery.Modifiers.MajorHoliday != 2 || cfg.Recovery.Modifiers.Seasons["winter"] != 1 {
		t.Errorf("Modifiers = %+v", cfg.Recovery.Modifiers)
	}
	if diff := cmp.Diff([]string{"Harbor", "Downtown"}, cfg.Generation.Neighborhoods); diff != "" {
		t.Errorf("Neighborhoods mismatch (-want +got):\n%s", diff)
	}
	if cfg.Generation.MinEvents != 2 {
		t.Errorf("MinEvents = %d, want default 2", cfg.Generation.MinEvents)
	}
	if !cfg.Mode.Strict || cfg.Mode.Profile {
		t.Errorf("Mode = %+v", cfg.Mode)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Module != "civic_load" {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
	if cfg.Policy.MaxRows != 50 || len(cfg.Policy.ProtectedTables) != 1 {
		t.Errorf("Policy = %+v", cfg.Policy)
	}
}

func TestLoadCUE(t *testing.T) {
	src := `
let lightAt = 5

store: driver: "memory"
recovery: base: {light: lightAt, moderate: lightAt + 3, heavy: lightAt + 6}
generation: neighborhoods: ["Harbor", "Old Mill"]
`
	cfg, err := NewLoader().LoadBytes(context.Background(), "kernel.cue", []byte(src))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if diff := cmp.Diff(engine.Thresholds{Light: 5, Moderate: 8, Heavy: 11}, cfg.Recovery.Base); diff != "" {
		t.Errorf("Base mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.Generation.Neighborhoods) != 2 {
		t.Errorf("Neighborhoods = %v", cfg.Generation.Neighborhoods)
	}
}

func TestLoadJSON(t *testing.T) {
	src := `{"policy": {"protected_tables": ["Cycle_Seeds", "Recovery_State"], "max_rows": 10}}`
	cfg, err := NewLoader().LoadBytes(context.Background(), "kernel.json", []byte(src))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Cycle_Seeds", "Recovery_State"}, cfg.Policy.ProtectedTables); diff != "" {
		t.Errorf("ProtectedTables mismatch (-want +got):\n%s", diff)
	}
	if cfg.Policy.MaxRows != 10 {
		t.Errorf("MaxRows = %d", cfg.Policy.MaxRows)
	}
}

func TestLoadStarlark(t *testing.T) {
	t.Setenv("CK_PROFILE", "yes")
	src := `
_hoods = ["Harbor", "Downtown", "Northgate"]

def weights():
    return {"crime": 1.5}

generation = {"neighborhoods": _hoods, "domain_weights": weights()}
mode = {"profile": getenv("CK_PROFILE", "no") == "yes"}
`
	cfg, err := NewLoader().LoadBytes(context.Background(), "kernel.star", []byte(src))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if !cfg.Mode.Profile {
		t.Error("Mode.Profile = false, want true from environment")
	}
	if len(cfg.Generation.Neighborhoods) != 3 {
		t.Errorf("Neighborhoods = %v", cfg.Generation.Neighborhoods)
	}
	if cfg.Generation.DomainWeights[engine.DomainCrime] != 1.5 {
		t.Errorf("DomainWeights = %v", cfg.Generation.DomainWeights)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		content    string
		wantSchema bool
	}{
		{name: "unknown driver", file: "c.yaml", content: "store: {driver: postgres}", wantSchema: true},
		{name: "unknown field", file: "c.yaml", content: "colour: blue", wantSchema: true},
		{name: "bad duration", file: "c.yaml", content: "store: {conn_max_lifetime: soon}", wantSchema: true},
		{name: "bad domain weight", file: "c.yaml", content: "generation: {domain_weights: {piracy: 2}}", wantSchema: true},
		{name: "cue syntax", file: "c.cue", content: "store: {", wantSchema: true},
		{name: "bad rule module", file: "c.json", content: `{"rules": [{"name": "x", "module": "weather", "source": ""}]}`, wantSchema: true},
		{name: "unordered thresholds", file: "c.yaml", content: "recovery: {base: {light: 5, moderate: 3, heavy: 9}}"},
		{name: "sqlite without path", file: "c.yaml", content: "store: {driver: sqlite}"},
		{name: "rule with source and file", file: "c.yaml", content: "rules: [{name: r, module: pattern, source: x, file: r.star}]"},
		{name: "duplicate rules", file: "c.yaml", content: "rules: [{name: r, module: pattern, source: x}, {name: r, module: pattern, source: y}]"},
		{name: "unsupported format", file: "c.toml", content: "a = 1"},
		{name: "yaml syntax", file: "c.yaml", content: "store: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadBytes(context.Background(), tt.file, []byte(tt.content))
			if err == nil {
				t.Fatal("LoadBytes() succeeded, want error")
			}
			var verrs ValidationErrors
			if got := errors.As(err, &verrs); got != tt.wantSchema {
				t.Errorf("schema error = %v, want %v (err: %v)", got, tt.wantSchema, err)
			}
		})
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadBytes(context.Background(), "empty.yaml", nil)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

const yamlInputs = `
cycle_id: 42
seed: 9007199254740993
timestamp: 2026-03-01T09:00:00Z
calendar:
  season: winter
  holiday: Founders Day
  holiday_priority: major
economic_mood: 35
world_events:
  - {cycle: 42, description: Pier fire, domain: infrastructure, severity: high, neighborhood: Harbor}
  - {cycle: 41, description: Old news, domain: civic, severity: low}
arcs:
  - {name: Dockworkers, phase: peak, neighborhood: Harbor}
`

func TestLoadInputs(t *testing.T) {
	inputs, err := NewLoader().LoadInputsBytes(context.Background(), "cycle.yaml", []byte(yamlInputs))
	if err != nil {
		t.Fatalf("LoadInputsBytes() error = %v", err)
	}

	if inputs.CycleID != 42 {
		t.Errorf("CycleID = %d", inputs.CycleID)
	}
	if inputs.Seed == nil || *inputs.Seed != 9007199254740993 {
		t.Errorf("Seed = %v, want exact 9007199254740993", inputs.Seed)
	}
	if want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC); !inputs.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", inputs.Timestamp, want)
	}
	if inputs.Calendar.HolidayPriority != engine.HolidayMajor {
		t.Errorf("HolidayPriority = %q", inputs.Calendar.HolidayPriority)
	}
	if inputs.EconomicMood == nil || *inputs.EconomicMood != 35 {
		t.Errorf("EconomicMood = %v", inputs.EconomicMood)
	}
	want := []engine.Event{
		{Cycle: 42, Description: "Pier fire", Domain: engine.DomainInfrastructure, Severity: engine.SeverityHigh, Neighborhood: "Harbor"},
		{Cycle: 41, Description: "Old news", Domain: engine.DomainCivic, Severity: engine.SeverityLow},
	}
	if diff := cmp.Diff(want, inputs.WorldEvents); diff != "" {
		t.Errorf("WorldEvents mismatch (-want +got):\n%s", diff)
	}
	if len(inputs.Arcs) != 1 || !inputs.Arcs[0].AtPeak() {
		t.Errorf("Arcs = %+v", inputs.Arcs)
	}
}

func TestLoadInputsJSONKeepsLargeSeed(t *testing.T) {
	src := `{"cycle_id": 7, "seed": 9007199254740993}`
	inputs, err := NewLoader().LoadInputsBytes(context.Background(), "cycle.json", []byte(src))
	if err != nil {
		t.Fatalf("LoadInputsBytes() error = %v", err)
	}
	if inputs.Seed == nil || *inputs.Seed != 9007199254740993 {
		t.Errorf("Seed = %v", inputs.Seed)
	}
}

func TestLoadInputsRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing cycle", content: "calendar: {season: winter}"},
		{name: "bad severity", content: "cycle_id: 1\nworld_events: [{cycle: 1, domain: crime, severity: extreme}]"},
		{name: "bad domain", content: "cycle_id: 1\nworld_events: [{cycle: 1, domain: piracy, severity: low}]"},
		{name: "negative cycle", content: "cycle_id: -3"},
		{name: "unknown field", content: "cycle_id: 1\nmayor: Ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadInputsBytes(context.Background(), "cycle.yaml", []byte(tt.content))
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("error = %v, want ValidationErrors", err)
			}
		})
	}
}
