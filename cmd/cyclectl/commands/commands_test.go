package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `store:
  driver: sqlite
  path: ledger.db
telemetry:
  logging:
    level: error
    output: discard
`

const testInputs = `cycle_id: 12
seed: 12
timestamp: "2026-03-01T09:00:00Z"
calendar:
  season: spring
world_events:
  - cycle: 12
    description: Pier fire
    domain: infrastructure
    severity: high
    neighborhood: Harbor
`

// workspace writes a config and an inputs file into a fresh directory.
func workspace(t *testing.T) (cfgPath, inputsPath string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "cyclekernel.yaml")
	inputsPath = filepath.Join(dir, "cycle-12.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(inputsPath, []byte(testInputs), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, inputsPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type cliResult struct {
	CycleID int    `json:"cycle_id"`
	Seed    int64  `json:"seed"`
	Status  string `json:"status"`
	Queue   struct {
		Total int `json:"total"`
	} `json:"queue"`
	Stats *struct {
		Executed int `json:"executed"`
		Skipped  int `json:"skipped"`
		Calls    int `json:"calls"`
	} `json:"stats"`
	SeedQueued bool `json:"seed_queued"`
	Replay     *struct {
		Match bool `json:"match"`
	} `json:"replay"`
}

func decodeResult(t *testing.T, out string) cliResult {
	t.Helper()
	var res cliResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a JSON result: %v\n%s", err, out)
	}
	return res
}

func TestRunDryRunJSON(t *testing.T) {
	cfg, inputs := workspace(t)

	out, err := execute(t, "run", "-c", cfg, "-i", inputs, "--dry-run", "--json")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	res := decodeResult(t, out)
	if res.CycleID != 12 || res.Seed != 12 {
		t.Errorf("cycle/seed = %d/%d, want 12/12", res.CycleID, res.Seed)
	}
	if res.Status != "succeeded" {
		t.Errorf("status = %q", res.Status)
	}
	if res.Queue.Total == 0 {
		t.Error("dry run staged no intents")
	}
	if res.Stats == nil || res.Stats.Calls != 0 || res.Stats.Skipped != res.Queue.Total {
		t.Errorf("stats = %+v, want every intent skipped", res.Stats)
	}
}

func TestRunThenListSeedsAndRuns(t *testing.T) {
	cfg, inputs := workspace(t)

	out, err := execute(t, "run", "-c", cfg, "-i", inputs, "--json")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	res := decodeResult(t, out)
	if !res.SeedQueued || res.Stats == nil || res.Stats.Calls == 0 {
		t.Fatalf("real run result = %+v", res)
	}

	out, err = execute(t, "seeds", "-c", cfg, "--json")
	if err != nil {
		t.Fatalf("seeds error = %v\n%s", err, out)
	}
	var seeds []struct {
		CycleID  int    `json:"cycle_id"`
		Seed     int64  `json:"seed"`
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal([]byte(out), &seeds); err != nil {
		t.Fatalf("seeds output: %v\n%s", err, out)
	}
	if len(seeds) != 1 || seeds[0].CycleID != 12 || seeds[0].Seed != 12 || seeds[0].Checksum == "" {
		t.Errorf("seeds = %+v", seeds)
	}

	out, err = execute(t, "runs", "-c", cfg, "--json")
	if err != nil {
		t.Fatalf("runs error = %v\n%s", err, out)
	}
	var runs []struct {
		CycleID int    `json:"cycle_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("runs output: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].CycleID != 12 || runs[0].Status != "succeeded" {
		t.Errorf("runs = %+v", runs)
	}

	out, err = execute(t, "seeds", "-c", cfg)
	if err != nil {
		t.Fatalf("seeds error = %v", err)
	}
	if !strings.Contains(out, "CYCLE") || !strings.Contains(out, "12") {
		t.Errorf("seeds table missing the cycle:\n%s", out)
	}
}

func TestReplayMatchesRecordedRun(t *testing.T) {
	cfg, inputs := workspace(t)

	if out, err := execute(t, "run", "-c", cfg, "-i", inputs); err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	out, err := execute(t, "replay", "12", "-c", cfg, "-i", inputs, "--json", "--fail-on-mismatch")
	if err != nil {
		t.Fatalf("replay error = %v\n%s", err, out)
	}
	res := decodeResult(t, out)
	if res.Replay == nil || !res.Replay.Match {
		t.Errorf("replay = %+v, want a match", res.Replay)
	}
	if res.Stats != nil && res.Stats.Calls != 0 {
		t.Errorf("replay made %d ledger calls", res.Stats.Calls)
	}

	// Replay leaves no run record.
	out, err = execute(t, "runs", "-c", cfg, "--json")
	if err != nil {
		t.Fatalf("runs error = %v", err)
	}
	var runs []json.RawMessage
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runs))
	}
}

func TestReplayWithoutRecordFailsOnMismatch(t *testing.T) {
	cfg, inputs := workspace(t)

	_, err := execute(t, "replay", "12", "-c", cfg, "-i", inputs, "--fail-on-mismatch")
	if err == nil {
		t.Fatal("replay without a seed record should fail with --fail-on-mismatch")
	}
}

func TestReplayRejectsBadCycleID(t *testing.T) {
	cfg, _ := workspace(t)

	for _, arg := range []string{"zero", "0", "-3"} {
		t.Run(arg, func(t *testing.T) {
			if _, err := execute(t, "replay", "-c", cfg, "--", arg); err == nil {
				t.Errorf("replay %q should fail", arg)
			}
		})
	}
}

func TestRunRequiresInputsOrCycle(t *testing.T) {
	cfg, _ := workspace(t)

	_, err := execute(t, "run", "-c", cfg)
	if err == nil || !strings.Contains(err.Error(), "--inputs or --cycle") {
		t.Errorf("run error = %v", err)
	}
}

func TestRunMemoryStore(t *testing.T) {
	out, err := execute(t, "run", "--cycle", "7", "--store", "memory", "--json")
	if err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}
	res := decodeResult(t, out)
	if res.CycleID != 7 || res.Seed != 7 {
		t.Errorf("cycle/seed = %d/%d, want 7/7", res.CycleID, res.Seed)
	}
}

func TestValidate(t *testing.T) {
	cfg, inputs := workspace(t)
	bad := filepath.Join(filepath.Dir(cfg), "bad.yaml")
	if err := os.WriteFile(bad, []byte("store:\n  driver: postgres\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	badInputs := filepath.Join(filepath.Dir(cfg), "bad-inputs.yaml")
	if err := os.WriteFile(badInputs, []byte("cycle_id: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "good config", args: []string{"validate", cfg}},
		{name: "good config and inputs", args: []string{"validate", cfg, "-i", inputs}},
		{name: "defaults", args: []string{"validate"}},
		{name: "bad config", args: []string{"validate", bad}, wantErr: "config is invalid"},
		{name: "bad inputs", args: []string{"validate", cfg, "-i", badInputs}, wantErr: "inputs are invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate error = %v\n%s", err, out)
				}
				if !strings.Contains(out, "ok") {
					t.Errorf("output missing ok:\n%s", out)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	cfg, inputs := workspace(t)
	if out, err := execute(t, "run", "-c", cfg, "-i", inputs); err != nil {
		t.Fatalf("run error = %v\n%s", err, out)
	}

	out, err := execute(t, "status", "-c", cfg)
	if err != nil {
		t.Fatalf("status error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Recovery") || !strings.Contains(out, "tables") {
		t.Errorf("status output incomplete:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "cyclectl test (commit: none, built: today") {
		t.Errorf("version output = %q", out)
	}

	out, err = execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatal(err)
	}
	if v["version"] != "test" || v["commit"] != "none" {
		t.Errorf("version json = %v", v)
	}
}
