package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/policy"
	"github.com/citysim/cyclekernel/pkg/recovery"
	"github.com/citysim/cyclekernel/pkg/replay"
	"github.com/citysim/cyclekernel/pkg/signals"
	"github.com/citysim/cyclekernel/pkg/stores"
)

func ptr[T any](v T) *T { return &v }

// quietSuite generates no events, so scores depend on inputs alone.
func quietSuite() *signals.Suite {
	cfg := signals.DefaultGeneratorConfig()
	cfg.MinEvents, cfg.MaxEvents = 0, 0
	return signals.NewSuite(cfg)
}

func baseline(cycle int) engine.Inputs {
	return engine.Inputs{
		CycleID:   cycle,
		Seed:      ptr(int64(cycle)),
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func overloaded(cycle int) engine.Inputs {
	in := baseline(cycle)
	in.ShockFlag = "shock-flag"
	for i := 0; i < 12; i++ {
		in.WorldEvents = append(in.WorldEvents, engine.Event{
			Cycle: cycle, Domain: engine.DomainCrime, Severity: engine.SeverityHigh, Neighborhood: "Harbor",
		})
	}
	for i := 0; i < 9; i++ {
		in.StoryHooks = append(in.StoryHooks, engine.StoryHook{Cycle: cycle})
	}
	for i := 0; i < 8; i++ {
		in.TextureTriggers = append(in.TextureTriggers, engine.TextureTrigger{Cycle: cycle})
	}
	return in
}

func ops(store *stores.MemoryStore) []string {
	var out []string
	for _, c := range store.Calls() {
		out = append(out, c.Op+":"+c.Table)
	}
	return out
}

func TestRunCycleScenarioA(t *testing.T) {
	store := stores.NewMemoryStore()
	res, err := NewRunner(store, WithSuite(quietSuite())).
		RunCycle(context.Background(), baseline(42), engine.Mode{})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if res.Summary.CivicLoad.Flag != engine.FlagStable || res.Summary.CivicLoad.Value != 0 {
		t.Errorf("civic load = %d %s, want 0 stable", res.Summary.CivicLoad.Value, res.Summary.CivicLoad.Flag)
	}
	if res.Summary.Recovery.Level != engine.RecoveryNone {
		t.Errorf("recovery = %s, want none", res.Summary.Recovery.Level)
	}
	if res.Status != engine.CycleStatusSucceeded {
		t.Errorf("status = %s", res.Status)
	}

	want := []string{
		"replace_table:Recovery_State",
		"replace_table:Cycle_Seeds",
		"replace_table:Cycle_Log",
		"replace_table:World_Events",
		"replace_table:Dashboard",
		"replace_table:Neighborhood_Dynamics",
		"set_range:Dashboard",
		"append_rows:Recovery_State",
		"append_rows:Cycle_Seeds",
		"append_rows:Cycle_Log",
	}
	if diff := cmp.Diff(want, ops(store)); diff != "" {
		t.Errorf("ledger calls mismatch (-want +got):\n%s", diff)
	}
	if res.Context.Intents.Len() != 0 {
		t.Error("queue not cleared after a real run")
	}
	if !res.SeedQueued || res.SeedRecord == nil || res.SeedRecord.Checksum != res.Summary.Checksum {
		t.Errorf("seed record = %+v queued=%v", res.SeedRecord, res.SeedQueued)
	}

	run, err := store.GetRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != stores.RunStatusSucceeded || run.Checksum != res.Summary.Checksum {
		t.Errorf("run = %+v", run)
	}
}

func TestRunCycleScenarioBAndDecay(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	runner := NewRunner(store, WithSuite(quietSuite()))

	res, err := runner.RunCycle(ctx, overloaded(20), engine.Mode{})
	if err != nil {
		t.Fatalf("cycle 20: %v", err)
	}
	out := res.Summary.Recovery
	if res.Summary.CivicLoad.Flag != engine.FlagLoadStrain {
		t.Errorf("civic flag = %s, want load-strain", res.Summary.CivicLoad.Flag)
	}
	if out.Level != engine.RecoveryHeavy || out.Persisted.Window != 3 || out.Multipliers.Event != 0.5 {
		t.Errorf("cycle 20 recovery = %+v", out)
	}

	tests := []struct {
		cycle    int
		level    engine.RecoveryLevel
		duration int
	}{
		{21, engine.RecoveryModerate, 1},
		{22, engine.RecoveryLight, 2},
		{23, engine.RecoveryNone, 0},
	}
	for _, tt := range tests {
		res, err := runner.RunCycle(ctx, baseline(tt.cycle), engine.Mode{})
		if err != nil {
			t.Fatalf("cycle %d: %v", tt.cycle, err)
		}
		got := res.Summary.Recovery.Persisted
		if got.Level != tt.level || got.Duration != tt.duration {
			t.Errorf("cycle %d: persisted = %+v, want %s duration %d", tt.cycle, got, tt.level, tt.duration)
		}
	}

	state, err := recovery.LoadState(ctx, store)
	if err != nil || state.Active() {
		t.Errorf("window still open after decay: %+v err=%v", state, err)
	}
}

func TestRunCycleDryRunTouchesNothing(t *testing.T) {
	store := stores.NewMemoryStore()
	res, err := NewRunner(store).RunCycle(context.Background(), overloaded(5), engine.Mode{DryRun: true, Profile: true})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if calls := store.Calls(); len(calls) != 0 {
		t.Errorf("dry run made %d ledger calls", len(calls))
	}
	if res.Stats.Skipped != res.Queue.Total || res.Stats.Executed != 0 {
		t.Errorf("stats = %+v, queue total %d", res.Stats, res.Queue.Total)
	}
	if res.Context.Intents.Len() != res.Queue.Total {
		t.Errorf("queue holds %d intents after dry run, want %d", res.Context.Intents.Len(), res.Queue.Total)
	}
	if runs, _ := store.ListRuns(context.Background(), 10, 0); len(runs) != 0 {
		t.Errorf("dry run recorded %d runs", len(runs))
	}

	var phases []string
	for _, p := range res.Phases {
		phases = append(phases, p.Phase)
	}
	want := []string{
		PhaseHealth, PhaseLoadState, PhaseGenerate, PhaseScore,
		PhaseRecovery, PhaseSeed, PhaseQueue, PhaseExecute,
	}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("profiled phases mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCycleDeterministic(t *testing.T) {
	run := func() *Result {
		res, err := NewRunner(stores.NewMemoryStore()).
			RunCycle(context.Background(), baseline(9), engine.Mode{DryRun: true})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a, b := run(), run()
	if diff := cmp.Diff(a.Summary, b.Summary); diff != "" {
		t.Errorf("summaries differ (-first +second):\n%s", diff)
	}
	if len(a.Summary.GeneratedEvents) == 0 {
		t.Error("stock generator produced no events")
	}
}

func TestRunCycleReplay(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	runner := NewRunner(store)

	in := baseline(7)
	in.Seed = ptr(int64(99))
	in.StorySeeds = []string{"ferry strike", "bakery feud"}
	orig, err := runner.RunCycle(ctx, in, engine.Mode{})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	store.ResetCalls()

	in.Seed = nil
	res, err := runner.RunCycle(ctx, in, engine.Mode{Replay: true})
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if res.Seed != 99 {
		t.Errorf("replay seed = %d, want 99", res.Seed)
	}
	if !res.Matched() || res.Replay.OriginalChecksum != orig.Summary.Checksum {
		t.Errorf("replay = %+v, original checksum %s", res.Replay, orig.Summary.Checksum)
	}
	if diff := cmp.Diff(orig.Summary.GeneratedEvents, res.Summary.GeneratedEvents); diff != "" {
		t.Errorf("replayed events differ (-original +replay):\n%s", diff)
	}
	if calls := store.Calls(); len(calls) != 0 {
		t.Errorf("replay made %d ledger calls", len(calls))
	}

	in.StorySeeds = append(in.StorySeeds, "new mayor")
	res, err = runner.RunCycle(ctx, in, engine.Mode{Replay: true})
	if err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if res.Matched() {
		t.Fatal("replay with changed inputs matched")
	}
	if len(res.Replay.Differences) != 1 || res.Replay.Differences[0].Field != "storySeeds" {
		t.Errorf("differences = %+v", res.Replay.Differences)
	}
}

func TestRunCycleReplayAfterRecovery(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore()
	runner := NewRunner(store)

	first, err := runner.RunCycle(ctx, overloaded(1), engine.Mode{})
	if err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if first.Summary.Recovery.Level != engine.RecoveryHeavy {
		t.Fatalf("cycle 1 recovery = %s, want heavy", first.Summary.Recovery.Level)
	}
	second, err := runner.RunCycle(ctx, baseline(2), engine.Mode{})
	if err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if second.Context.PriorRecovery.Level != engine.RecoveryHeavy {
		t.Fatalf("cycle 2 prior = %s, want heavy", second.Context.PriorRecovery.Level)
	}

	tests := []struct {
		cycle     int
		in        engine.Inputs
		original  *Result
		wantPrior engine.RecoveryLevel
	}{
		{2, baseline(2), second, engine.RecoveryHeavy},
		{1, overloaded(1), first, engine.RecoveryNone},
	}
	for _, tt := range tests {
		in := tt.in
		in.Seed = nil
		res, err := runner.RunCycle(ctx, in, engine.Mode{Replay: true})
		if err != nil {
			t.Fatalf("replay %d: %v", tt.cycle, err)
		}
		if got := res.Context.PriorRecovery.Level; got != tt.wantPrior {
			t.Errorf("replay %d prior = %s, want %s", tt.cycle, got, tt.wantPrior)
		}
		if !res.Matched() {
			t.Errorf("replay %d differences = %+v", tt.cycle, res.Replay.Differences)
		}
		if diff := cmp.Diff(tt.original.Summary.GeneratedEvents, res.Summary.GeneratedEvents); diff != "" {
			t.Errorf("replay %d events differ (-original +replay):\n%s", tt.cycle, diff)
		}
	}

	// A real re-run of cycle 2 starts from the same prior state.
	again, err := runner.RunCycle(ctx, baseline(2), engine.Mode{})
	if err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if again.Context.PriorRecovery.Level != engine.RecoveryHeavy || again.Summary.Checksum != second.Summary.Checksum {
		t.Errorf("re-run prior = %s checksum %s, want heavy %s",
			again.Context.PriorRecovery.Level, again.Summary.Checksum, second.Summary.Checksum)
	}
}

func TestRunCycleReplayWithoutRecord(t *testing.T) {
	res, err := NewRunner(stores.NewMemoryStore()).
		RunCycle(context.Background(), baseline(3), engine.Mode{Replay: true, ReplayCycleID: ptr(11)})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.CycleID != 11 || res.Seed != 11 {
		t.Errorf("cycle=%d seed=%d, want 11/11", res.CycleID, res.Seed)
	}
	if res.Matched() || res.Replay.Differences[0].Field != "record" {
		t.Errorf("replay = %+v", res.Replay)
	}
}

func TestRunCycleStoreUnavailable(t *testing.T) {
	store := stores.NewMemoryStore()
	store.Unavailable = errors.New("connection refused")

	res, err := NewRunner(store).RunCycle(context.Background(), baseline(1), engine.Mode{})
	if !engine.IsUnavailable(err) {
		t.Fatalf("error = %v, want unavailable", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if len(store.Calls()) != 0 {
		t.Error("aborted cycle touched the ledger")
	}
}

func TestRunCycleWriteFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	tests := []struct {
		name       string
		strict     bool
		wantStatus engine.CycleStatus
		wantErr    bool
		wantQueued bool
	}{
		{"collects", false, engine.CycleStatusPartial, false, false},
		{"strict halts", true, engine.CycleStatusFailed, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := stores.NewMemoryStore()
			if _, err := Schema().Bootstrap(ctx, store); err != nil {
				t.Fatal(err)
			}
			store.FailOn[LogTable] = boom

			res, err := NewRunner(store, WithSuite(quietSuite())).
				RunCycle(ctx, baseline(4), engine.Mode{Strict: tt.strict})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
			if len(res.Stats.Errors) != 1 || !errors.Is(res.Stats.Errors[0], boom) {
				t.Errorf("errors = %v", res.Stats.Errors)
			}
			if queued := res.Context.Intents.Len() > 0; queued != tt.wantQueued {
				t.Errorf("intents left queued = %v, want %v", queued, tt.wantQueued)
			}

			run, err := store.GetRun(ctx, res.RunID)
			if err != nil {
				t.Fatal(err)
			}
			if run.Status != stores.RunStatus(tt.wantStatus) || run.Error == nil {
				t.Errorf("run = %+v", run)
			}
		})
	}
}

func TestRunCycleWithPolicyGuard(t *testing.T) {
	ctx := context.Background()
	cfg := policy.DefaultConfig()
	cfg.ProtectedTables = append(cfg.ProtectedTables, DashboardTable)
	guard, err := policy.NewGuard(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	store := stores.NewMemoryStore()
	res, err := NewRunner(store, WithSuite(quietSuite()), WithGuard(guard)).
		RunCycle(ctx, baseline(6), engine.Mode{})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.Status != engine.CycleStatusPartial || len(res.Stats.Errors) != 1 {
		t.Fatalf("status = %s errors = %v", res.Status, res.Stats.Errors)
	}
	if code := engine.ErrorCode(res.Stats.Errors[0]); code != engine.ErrCodePolicyDenied {
		t.Errorf("code = %s, want %s", code, engine.ErrCodePolicyDenied)
	}
	for _, c := range store.Calls() {
		if c.Op == "set_range" {
			t.Errorf("denied dashboard write reached the store")
		}
	}

	seeds, err := replay.ListCycleSeeds(ctx, store)
	if err != nil || len(seeds) != 1 {
		t.Errorf("seed ledger = %v err=%v", seeds, err)
	}
}

func TestSchemaDeclaresEveryTable(t *testing.T) {
	want := []string{
		recovery.StateTable, replay.SeedTable, LogTable, EventsTable, DashboardTable, DynamicsTable,
	}
	if diff := cmp.Diff(want, Schema().TableNames()); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}
