package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/citysim/cyclekernel/pkg/engine"
)

func TestBuildSuiteAttachesRules(t *testing.T) {
	dir := t.TempDir()
	script := "def score(facts):\n    return (facts.high_events, \"high severity\")\n"
	if err := os.WriteFile(filepath.Join(dir, "high.star"), []byte(script), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.Rules = []RuleScript{
		{Name: "festival", Module: "civic_load", Source: "def score(facts):\n    return 2 if facts.holiday_priority == \"major\" else 0\n"},
		{Name: "high", Module: "pattern", File: "high.star"},
	}

	suite, err := cfg.BuildSuite(nil)
	if err != nil {
		t.Fatalf("BuildSuite() error = %v", err)
	}

	cc := engine.NewCycleContext(engine.Inputs{
		CycleID:  3,
		Calendar: engine.Calendar{HolidayPriority: engine.HolidayMajor},
		WorldEvents: []engine.Event{
			{Cycle: 3, Domain: engine.DomainCrime, Severity: engine.SeverityHigh, Neighborhood: "Harbor"},
		},
	}, engine.Mode{})
	suite.Score(cc)

	if !slices.Contains(cc.Summary.CivicLoad.Reasons, "festival (+2)") {
		t.Errorf("civic load reasons %v lack the festival rule", cc.Summary.CivicLoad.Reasons)
	}
	if !slices.Contains(cc.Summary.Pattern.Reasons, "high severity (+1)") {
		t.Errorf("pattern reasons %v lack the file rule", cc.Summary.Pattern.Reasons)
	}
}

func TestBuildSuiteErrors(t *testing.T) {
	tests := []struct {
		name string
		rule RuleScript
	}{
		{name: "missing file", rule: RuleScript{Name: "gone", Module: "pattern", File: "gone.star"}},
		{name: "no score function", rule: RuleScript{Name: "empty", Module: "pattern", Source: "x = 1\n"}},
		{name: "unknown module", rule: RuleScript{Name: "odd", Module: "weather", Source: "def score(f):\n    return 0\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Dir = t.TempDir()
			cfg.Rules = []RuleScript{tt.rule}
			if _, err := cfg.BuildSuite(nil); err == nil {
				t.Error("BuildSuite() succeeded, want error")
			}
		})
	}
}

func TestPathsResolveAgainstConfigDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = "/etc/cyclekernel"
	cfg.Rules = []RuleScript{
		{Name: "a", Module: "pattern", File: "rules/a.star"},
		{Name: "b", Module: "pattern", Source: "def score(f):\n    return 0\n"},
	}
	cfg.Policy.Files = []string{"policies", "/opt/extra.rego"}

	want := []string{"/etc/cyclekernel/rules/a.star", "/etc/cyclekernel/policies", "/opt/extra.rego"}
	if diff := cmp.Diff(want, cfg.WatchPaths()); diff != "" {
		t.Errorf("WatchPaths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want[1:], cfg.PolicyConfig().Files); diff != "" {
		t.Errorf("PolicyConfig().Files mismatch (-want +got):\n%s", diff)
	}
	if cfg.Policy.Files[0] != "policies" {
		t.Error("PolicyConfig modified the config in place")
	}
}

func TestModeDefaultsApply(t *testing.T) {
	got := ModeDefaults{Strict: true}.Apply(engine.Mode{DryRun: true, Profile: true})
	want := engine.Mode{DryRun: true, Strict: true, Profile: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
}
