package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/stores"
)

func newTestGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	g, err := NewGuard(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	return g
}

func intent(kind engine.IntentKind, dest string, values [][]engine.Value, reason string) *engine.WriteIntent {
	w := &engine.WriteIntent{
		ID:          "intent-1",
		Kind:        kind,
		Destination: dest,
		Values:      values,
		Reason:      reason,
	}
	if kind == engine.IntentCell || kind == engine.IntentRange {
		w.Address = &engine.Address{Row: 1, Col: 0}
	}
	return w
}

func TestNewGuardLoadsBuiltins(t *testing.T) {
	g := newTestGuard(t, DefaultConfig())

	var names []string
	for _, p := range g.Policies() {
		names = append(names, p.Name)
	}
	want := []string{"missing-reason", "payload-size", "protected-tables", "write-shape"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("policies mismatch (-want +got):\n%s", diff)
	}
}

func TestGuardCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRows = 2
	g := newTestGuard(t, cfg)

	tests := []struct {
		name       string
		intent     *engine.WriteIntent
		wantPolicy string
	}{
		{
			name:   "append to protected table",
			intent: intent(engine.IntentAppend, "Cycle_Seeds", [][]engine.Value{{42, "42"}}, "seed"),
		},
		{
			name:       "replace protected table",
			intent:     intent(engine.IntentReplace, "Cycle_Seeds", [][]engine.Value{{"cycle_id"}}, "reset"),
			wantPolicy: "protected-tables",
		},
		{
			name:       "too many rows",
			intent:     intent(engine.IntentAppend, "Cycle_Log", [][]engine.Value{{1}, {2}, {3}}, "log"),
			wantPolicy: "payload-size",
		},
		{
			name:   "rows at limit",
			intent: intent(engine.IntentAppend, "Cycle_Log", [][]engine.Value{{1}, {2}}, "log"),
		},
		{
			name:       "wide cell",
			intent:     intent(engine.IntentCell, "Dashboard", [][]engine.Value{{1, 2}}, "metric"),
			wantPolicy: "write-shape",
		},
		{
			name:   "missing reason only warns",
			intent: intent(engine.IntentCell, "Dashboard", [][]engine.Value{{1}}, ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(context.Background(), tt.intent)
			if tt.wantPolicy == "" {
				if err != nil {
					t.Fatalf("Check() error = %v, want nil", err)
				}
				return
			}
			var denied *DeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("Check() error = %v, want *DeniedError", err)
			}
			if len(denied.Violations) != 1 || denied.Violations[0].Policy != tt.wantPolicy {
				t.Errorf("Violations = %+v, want one from %s", denied.Violations, tt.wantPolicy)
			}
		})
	}
}

func TestGuardEvaluateReportsWarnings(t *testing.T) {
	g := newTestGuard(t, DefaultConfig())

	got, err := g.Evaluate(context.Background(), intent(engine.IntentAppend, "Cycle_Log", [][]engine.Value{{1}}, ""))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := []Violation{{
		Policy:      "missing-reason",
		Destination: "Cycle_Log",
		IntentID:    "intent-1",
		Message:     "append write to Cycle_Log has no reason",
		Severity:    SeverityWarning,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestGuardDisabledBuiltin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = []string{"protected-tables"}
	g := newTestGuard(t, cfg)

	err := g.Check(context.Background(), intent(engine.IntentReplace, "Cycle_Seeds", [][]engine.Value{{"cycle_id"}}, "reset"))
	if err != nil {
		t.Errorf("Check() error = %v, want nil with protected-tables disabled", err)
	}
}

func TestGuardCustomPolicyAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "no-sports-dashboard.rego")
	allow := `package custom.sports

deny contains msg if {
	false
	msg := "never"
}
`
	deny := `package custom.sports

deny contains msg if {
	input.intent.destination == "Dashboard"
	input.intent.domain == "sports"
	msg := "sports stays off the dashboard"
}
`
	if err := os.WriteFile(path, []byte(allow), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Files = []string{dir}
	g := newTestGuard(t, cfg)

	w := intent(engine.IntentCell, "Dashboard", [][]engine.Value{{3}}, "score")
	w.Domain = "sports"
	if err := g.Check(context.Background(), w); err != nil {
		t.Fatalf("Check() before reload error = %v", err)
	}

	if err := os.WriteFile(path, []byte(deny), 0644); err != nil {
		t.Fatal(err)
	}
	if err := g.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	err := g.Check(context.Background(), w)
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Violations[0].Policy != "no-sports-dashboard" {
		t.Fatalf("Check() after reload error = %v, want denial", err)
	}

	if err := os.WriteFile(path, []byte("package custom.sports\ndeny contains"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := g.Reload(context.Background()); err == nil {
		t.Fatal("Reload() with broken policy succeeded")
	}
	if err := g.Check(context.Background(), w); err == nil {
		t.Error("broken reload replaced the active policy set")
	}
}

func TestNewGuardRejectsBrokenPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\ndeny contains msg if {"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Files = []string{path}
	if _, err := NewGuard(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("NewGuard() accepted a policy that does not parse")
	}
}

func TestGuardWithExecutor(t *testing.T) {
	store := stores.NewMemoryStore()
	ctx := context.Background()
	for _, table := range []string{"Cycle_Seeds", "Cycle_Log"} {
		if err := store.ReplaceTable(ctx, table, [][]engine.Value{{"cycle_id"}}); err != nil {
			t.Fatal(err)
		}
	}
	store.ResetCalls()

	q := engine.NewQueue()
	if _, err := q.QueueReplace("Cycle_Seeds", [][]engine.Value{{"cycle_id"}}, "wipe", "replay"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.QueueAppend("Cycle_Log", []engine.Value{7}, "log", "cycle"); err != nil {
		t.Fatal(err)
	}

	exec := engine.NewExecutor(store, engine.WithGuard(newTestGuard(t, DefaultConfig())))
	stats, err := exec.Execute(ctx, q, engine.ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(stats.Errors) != 1 || stats.Errors[0].Code != engine.ErrCodePolicyDenied {
		t.Fatalf("Errors = %v, want one policy denial", stats.Errors)
	}
	calls := store.Calls()
	if len(calls) != 1 || calls[0].Table != "Cycle_Log" {
		t.Errorf("Calls = %+v, want only the Cycle_Log append", calls)
	}
}

func TestGuardHonorsFileSeverityHeader(t *testing.T) {
	dir := t.TempDir()
	src := `# Flags late dashboard writes without blocking them.
# severity: warning
package custom.late

deny contains msg if {
	input.intent.destination == "Dashboard"
	msg := "dashboard written late"
}
`
	if err := os.WriteFile(filepath.Join(dir, "late-dashboard.rego"), []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Files = []string{dir}
	g := newTestGuard(t, cfg)

	w := intent(engine.IntentCell, "Dashboard", [][]engine.Value{{3}}, "score")
	if err := g.Check(context.Background(), w); err != nil {
		t.Fatalf("Check() error = %v, want the warning to pass", err)
	}
	violations, err := g.Evaluate(context.Background(), w)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, v := range violations {
		if v.Policy == "late-dashboard" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("violations = %+v, want a late-dashboard warning", violations)
	}
}
