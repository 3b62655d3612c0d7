package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/recovery"
	"github.com/citysim/cyclekernel/pkg/replay"
	"github.com/citysim/cyclekernel/pkg/signals"
	"github.com/citysim/cyclekernel/pkg/stores"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// Runner runs one cycle at a time against a ledger store. A Runner holds no
// per-cycle state; every call to RunCycle builds a fresh context.
type Runner struct {
	store   engine.LedgerStore
	schema  *stores.Schema
	suite   *signals.Suite
	machine *recovery.Machine
	guard   engine.IntentGuard
	tel     *telemetry.Telemetry
	logger  *telemetry.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSuite replaces the stock signal modules.
func WithSuite(suite *signals.Suite) Option {
	return func(r *Runner) { r.suite = suite }
}

// WithMachine replaces the stock recovery state machine.
func WithMachine(m *recovery.Machine) Option {
	return func(r *Runner) { r.machine = m }
}

// WithGuard vets every write before the executor applies it.
func WithGuard(guard engine.IntentGuard) Option {
	return func(r *Runner) { r.guard = guard }
}

// WithSchema replaces the ledger table registry.
func WithSchema(schema *stores.Schema) Option {
	return func(r *Runner) { r.schema = schema }
}

// WithTelemetry sets the logger, tracer and metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(r *Runner) { r.tel = tel }
}

// NewRunner creates a runner writing to store.
func NewRunner(store engine.LedgerStore, opts ...Option) *Runner {
	r := &Runner{store: store}
	for _, opt := range opts {
		opt(r)
	}
	if r.tel == nil {
		r.tel = telemetry.NopTelemetry()
	}
	if r.schema == nil {
		r.schema = Schema()
	}
	if r.suite == nil {
		r.suite = signals.NewSuite(signals.DefaultGeneratorConfig())
	}
	if r.machine == nil {
		r.machine = recovery.NewMachine(recovery.DefaultConfig(),
			recovery.WithLogger(r.tel.Logger),
			recovery.WithMetrics(r.tel.Metrics))
	}
	r.logger = r.tel.Logger.NewComponentLogger("runner")
	return r
}

// RunCycle runs the fixed phase sequence for one cycle:
//
//	health, bootstrap, load_state, replay_init, generate, score,
//	recovery, seed, queue, execute, compare
//
// Only an unavailable store aborts the cycle, and it does so before any
// other phase runs. Every other failure degrades: the phase logs it and the
// cycle carries on with defaults. A strict-mode halt returns both the result
// and the error that stopped execution.
func (r *Runner) RunCycle(ctx context.Context, in engine.Inputs, mode engine.Mode) (*Result, error) {
	if mode.Replay {
		target := in.CycleID
		if mode.ReplayCycleID != nil {
			target = *mode.ReplayCycleID
		}
		in.CycleID = target
		mode.ReplayCycleID = &target
	}

	res := &Result{
		RunID:     uuid.New().String(),
		CycleID:   in.CycleID,
		Mode:      mode,
		StartTime: time.Now(),
	}
	logger := r.logger.WithCycleID(in.CycleID).WithRunID(res.RunID)

	ctx = r.tel.WithContext(ctx)
	ctx, span := r.tel.Tracer.StartCycleSpan(ctx, in.CycleID, mode.String())
	defer span.End()
	r.tel.Metrics.RecordCycleStarted(mode.String())

	p := &phases{tel: r.tel, profile: mode.Profile, res: res}

	if err := p.run(ctx, PhaseHealth, func(ctx context.Context, _ *telemetry.Logger) error {
		return r.checkHealth(ctx)
	}); err != nil {
		res.Status = engine.CycleStatusFailed
		res.EndTime = time.Now()
		r.tel.Metrics.RecordError(string(engine.ErrorClassUnavailable), engine.ErrorCode(err))
		r.tel.Metrics.RecordCycleCompleted(string(res.Status), res.Duration())
		telemetry.RecordError(span, err)
		logger.Zerolog().Error().Err(err).Msg("Cycle aborted")
		return nil, err
	}

	writing := !mode.Observing()
	recorder, _ := r.store.(stores.RunRecorder)
	if writing && recorder != nil {
		r.createRun(ctx, recorder, res, in, logger)
	}

	if writing {
		_ = p.run(ctx, PhaseBootstrap, func(ctx context.Context, l *telemetry.Logger) error {
			created, err := r.schema.Bootstrap(ctx, r.store)
			res.Created = created
			if err != nil {
				l.Zerolog().Warn().Err(err).Msg("Table bootstrap incomplete")
				return err
			}
			if len(created) > 0 {
				l.Zerolog().Info().Strs("tables", created).Msg("Created ledger tables")
			}
			return nil
		})
	}

	cc := engine.NewCycleContext(in, mode)
	cc.Intents = engine.NewQueue(engine.WithQueueMetrics(r.tel.Metrics))
	res.Context = cc

	_ = p.run(ctx, PhaseLoadState, func(ctx context.Context, l *telemetry.Logger) error {
		prior, err := recovery.LoadStateBefore(ctx, r.store, cc.CycleID)
		if err != nil {
			l.Zerolog().Warn().Err(err).Msg("Recovery state unreadable, assuming none")
			return err
		}
		cc.PriorRecovery = prior
		return nil
	})

	var original *replay.CycleSeedRecord
	if mode.Replay {
		_ = p.run(ctx, PhaseReplay, func(ctx context.Context, l *telemetry.Logger) error {
			rec, err := replay.InitializeReplay(ctx, r.store, cc, *mode.ReplayCycleID)
			if err != nil {
				cc.Reseed(int64(*mode.ReplayCycleID))
				l.Zerolog().Warn().Err(err).Msg("Seed ledger unreadable, replaying with the cycle ID as seed")
				return err
			}
			if rec == nil {
				l.Zerolog().Warn().
					Str("code", engine.ErrCodeSeedNotFound).
					Msg("No seed record for cycle, replaying with the cycle ID as seed")
			}
			original = rec
			return nil
		})
	}
	res.Seed = cc.Seed

	_ = p.run(ctx, PhaseGenerate, func(_ context.Context, l *telemetry.Logger) error {
		events := r.suite.Generator.Generate(cc)
		l.Zerolog().Debug().Int("generated", len(events)).Int("events", len(cc.Events)).Msg("Events generated")
		return nil
	})

	_ = p.run(ctx, PhaseScore, func(_ context.Context, l *telemetry.Logger) error {
		r.suite.Score(cc)
		l.Zerolog().Debug().
			Int("civic_load", cc.Summary.CivicLoad.Value).
			Str("civic_flag", string(cc.Summary.CivicLoad.Flag)).
			Int("cycle_weight", cc.Summary.CycleWeight.Value).
			Str("pattern", string(cc.Summary.Pattern.Flag)).
			Str("migration", string(cc.Summary.Migration.Flag)).
			Msg("Signals scored")
		return nil
	})

	_ = p.run(ctx, PhaseRecovery, func(context.Context, *telemetry.Logger) error {
		r.machine.Evaluate(cc)
		return nil
	})

	_ = p.run(ctx, PhaseSeed, func(ctx context.Context, l *telemetry.Logger) error {
		if mode.Replay {
			replay.Checksum(cc)
			return nil
		}
		rec, queued, err := replay.SaveCycleSeed(ctx, r.store, cc)
		if err != nil {
			replay.Checksum(cc)
			l.Zerolog().Warn().Err(err).Msg("Seed ledger unreadable, seed record not queued")
			return err
		}
		res.SeedRecord, res.SeedQueued = rec, queued
		if !queued {
			l.Zerolog().Debug().Msg("Seed record already present")
		}
		return nil
	})

	_ = p.run(ctx, PhaseQueue, func(_ context.Context, l *telemetry.Logger) error {
		err := errors.Join(
			queueRecords(cc),
			recovery.QueueState(cc.Intents, cc.CycleID, cc.Summary.Recovery),
		)
		if err != nil {
			l.Zerolog().Warn().Err(err).Msg("Some cycle records were rejected")
		}
		return err
	})
	res.Queue = cc.Intents.Summary()
	res.ValidationErrors = cc.Intents.ValidationErrors()
	for _, verr := range res.ValidationErrors {
		r.tel.Metrics.RecordError(verr.ErrorClass(), verr.Code)
	}

	var execErr error
	_ = p.run(ctx, PhaseExecute, func(ctx context.Context, _ *telemetry.Logger) error {
		executor := engine.NewExecutor(r.store,
			engine.WithCatalog(r.schema),
			engine.WithGuard(r.guard),
			engine.WithLogger(r.tel.Logger.WithCycleID(cc.CycleID)),
			engine.WithMetrics(r.tel.Metrics))
		res.Stats, execErr = executor.Execute(ctx, cc.Intents, engine.ExecuteOptions{
			DryRun: mode.DryRun,
			Replay: mode.Replay,
			Strict: mode.Strict,
		})
		return execErr
	})

	if mode.Replay {
		_ = p.run(ctx, PhaseCompare, func(_ context.Context, l *telemetry.Logger) error {
			res.Replay = replay.CompareReplayOutput(cc, original)
			if res.Replay.Match {
				l.Info("Replay matches the recorded cycle")
				return nil
			}
			code := engine.ErrCodeReplayMismatch
			if original == nil {
				code = engine.ErrCodeSeedNotFound
			}
			r.tel.Metrics.RecordReplayMismatch()
			r.tel.Metrics.RecordError(string(engine.ErrorClassReplayMismatch), code)
			l.Zerolog().Warn().Err(res.Replay.Err()).Msg("Replay mismatch")
			return nil
		})
	}

	res.Summary = cc.Summary
	res.Status = statusOf(res.Stats, execErr)
	res.EndTime = time.Now()

	if writing && recorder != nil {
		r.completeRun(ctx, recorder, res, execErr, logger)
	}

	span.SetAttributes(
		telemetry.AttrEvents.Int(len(cc.Events)),
		telemetry.AttrRecovery.String(string(cc.Summary.Recovery.Level)),
		telemetry.AttrIntents.Int(res.Queue.Total),
		telemetry.AttrChecksum.String(cc.Summary.Checksum),
	)
	if execErr != nil {
		telemetry.RecordError(span, execErr)
	} else {
		telemetry.RecordSuccess(span)
	}
	r.tel.Metrics.RecordCycleCompleted(string(res.Status), res.Duration())

	logger.Zerolog().Info().
		Str("mode", mode.String()).
		Str("status", string(res.Status)).
		Str("recovery", string(cc.Summary.Recovery.Level)).
		Str("checksum", cc.Summary.Checksum).
		Int("intents", res.Queue.Total).
		Dur("duration", res.Duration()).
		Msg("Cycle complete")

	return res, execErr
}

func (r *Runner) checkHealth(ctx context.Context) error {
	hc, ok := r.store.(engine.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return engine.NewUnavailableError("ledger store unavailable", err)
	}
	return nil
}

type runMetadata struct {
	Seed   string `json:"seed"`
	Strict bool   `json:"strict"`
	Events int    `json:"input_events"`
}

func (r *Runner) createRun(ctx context.Context, rec stores.RunRecorder, res *Result, in engine.Inputs, logger *telemetry.Logger) {
	seed := int64(in.CycleID)
	if in.Seed != nil {
		seed = *in.Seed
	}
	meta, _ := json.Marshal(runMetadata{
		Seed:   fmt.Sprintf("%d", seed),
		Strict: res.Mode.Strict,
		Events: len(in.WorldEvents),
	})
	err := rec.CreateRun(ctx, &stores.Run{
		ID:        res.RunID,
		CycleID:   res.CycleID,
		Mode:      res.Mode.String(),
		Status:    stores.RunStatusRunning,
		StartedAt: res.StartTime,
		Metadata:  string(meta),
	})
	if err != nil {
		logger.Zerolog().Warn().Err(err).Msg("Failed to record run")
	}
}

func (r *Runner) completeRun(ctx context.Context, rec stores.RunRecorder, res *Result, execErr error, logger *telemetry.Logger) {
	var errMsg *string
	if execErr != nil {
		msg := execErr.Error()
		errMsg = &msg
	} else if res.Stats != nil && len(res.Stats.Errors) > 0 {
		msg := fmt.Sprintf("%d write errors", len(res.Stats.Errors))
		errMsg = &msg
	}
	if err := rec.CompleteRun(ctx, res.RunID, stores.RunStatus(res.Status), res.Summary.Checksum, errMsg); err != nil {
		logger.Zerolog().Warn().Err(err).Msg("Failed to complete run record")
	}
}

// phases instruments each phase with a span, a phase logger and, in profile
// mode, a timing entry on the result.
type phases struct {
	tel     *telemetry.Telemetry
	profile bool
	res     *Result
}

func (p *phases) run(ctx context.Context, name string, fn func(ctx context.Context, l *telemetry.Logger) error) error {
	op := p.tel.StartPhase(ctx, name)
	err := fn(op.Ctx, op.Logger.WithCycleID(p.res.CycleID))
	op.End(err)
	if p.profile {
		p.res.Phases = append(p.res.Phases, PhaseTiming{Phase: name, Duration: op.Timer.Duration()})
	}
	return err
}
