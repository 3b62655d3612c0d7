package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/citysim/cyclekernel/pkg/config"
	"github.com/citysim/cyclekernel/pkg/cycle"
	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/policy"
	"github.com/citysim/cyclekernel/pkg/recovery"
	"github.com/citysim/cyclekernel/pkg/stores"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

// env is everything a command needs to run cycles.
type env struct {
	loader *config.Loader
	cfg    *config.Config
	tel    *telemetry.Telemetry
	store  stores.Store
	guard  *policy.Guard
	runner *cycle.Runner
}

// loadConfig reads --config, or the defaults when it is not set, and applies --store.
func loadConfig(ctx context.Context, loader *config.Loader) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = loader.Load(ctx, configPath); err != nil {
			return nil, err
		}
	}

	switch storeFlag {
	case "":
	case "memory":
		cfg.Store.Driver = "memory"
	default:
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = storeFlag
	}
	return cfg, nil
}

// setup loads the config and wires the store, telemetry, guard and runner.
func setup(ctx context.Context) (*env, error) {
	e := &env{loader: config.NewLoader()}

	cfg, err := loadConfig(ctx, e.loader)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg

	tcfg := cfg.Telemetry
	e.tel, err = telemetry.NewTelemetry(&tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	e.store, err = openStore(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	if err := e.build(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// build creates the guard and the runner from the current config.
func (e *env) build(ctx context.Context) error {
	suite, err := e.cfg.BuildSuite(e.tel.Logger)
	if err != nil {
		return err
	}

	guard, err := policy.NewGuard(ctx, e.cfg.PolicyConfig(), *e.tel.Logger.Zerolog())
	if err != nil {
		return err
	}
	e.guard = guard

	machine := recovery.NewMachine(e.cfg.Recovery,
		recovery.WithLogger(e.tel.Logger),
		recovery.WithMetrics(e.tel.Metrics))

	e.runner = cycle.NewRunner(e.store,
		cycle.WithSuite(suite),
		cycle.WithMachine(machine),
		cycle.WithGuard(guard),
		cycle.WithTelemetry(e.tel))
	return nil
}

// mode applies the config's mode defaults to the flags given.
func (e *env) mode(m engine.Mode) engine.Mode {
	return e.cfg.Mode.Apply(m)
}

// inputs loads an inputs file, or builds bare inputs for cycleID.
func (e *env) inputs(ctx context.Context, path string, cycleID int) (engine.Inputs, error) {
	if path == "" {
		if cycleID <= 0 {
			return engine.Inputs{}, fmt.Errorf("either --inputs or --cycle is required")
		}
		return engine.Inputs{CycleID: cycleID}, nil
	}
	in, err := e.loader.LoadInputs(ctx, path)
	if err != nil {
		return engine.Inputs{}, err
	}
	if cycleID > 0 {
		in.CycleID = cycleID
	}
	return *in, nil
}

// Close shuts down telemetry and the store.
func (e *env) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e.tel != nil {
		if err := e.tel.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (stores.Store, error) {
	if cfg.Store.Driver == "memory" {
		return stores.NewMemoryStore(), nil
	}

	scfg := cfg.Store.SQLite()
	if scfg.Path != ":memory:" {
		scfg.Path = cfg.Resolve(scfg.Path)
	}
	store, err := stores.NewSQLiteStore(scfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Debug().Str("path", scfg.Path).Msg("Opened ledger")
	return store, nil
}
