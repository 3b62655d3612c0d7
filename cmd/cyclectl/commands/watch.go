package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/citysim/cyclekernel/pkg/config"
	"github.com/citysim/cyclekernel/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	var (
		inputsPath string
		metrics    bool
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload config, rules and policies on change and dry-run the inputs",
		Long: `Watch the config file, the rule scripts and the policy files it references,
and the inputs file. After every change the affected parts are reloaded and
the inputs are dry-run again, so the effect of a rule or policy edit shows up
immediately. The ledger is never written.

With --metrics the Prometheus endpoint from the telemetry config is served
while watching.`,
		Example: `  # Iterate on scoring rules against one cycle's inputs
  cyclectl watch -c city.cue --inputs cycle-42.yaml

  # Also expose metrics
  cyclectl watch -c city.cue --inputs cycle-42.yaml --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if metrics {
				srv := e.tel.Metrics.StartMetricsServer()
				if srv == nil {
					return fmt.Errorf("metrics are disabled in the telemetry config")
				}
				log.Info().Str("address", srv.Addr).Msg("Serving metrics")
				defer shutdownServer(srv)
			}

			w, err := config.NewWatcher(e.tel.Logger, config.WithDebounce(debounce))
			if err != nil {
				return err
			}
			defer w.Close()

			watched := e.cfg.WatchPaths()
			if configPath != "" {
				watched = append(watched, configPath)
			}
			if inputsPath != "" {
				watched = append(watched, inputsPath)
			}
			if err := w.Add(watched...); err != nil {
				return err
			}

			dryRun := func() {
				if inputsPath == "" {
					return
				}
				in, err := e.inputs(ctx, inputsPath, 0)
				if err != nil {
					log.Error().Err(err).Msg("Inputs are invalid")
					return
				}
				res, err := e.runner.RunCycle(ctx, in, e.mode(engine.Mode{DryRun: true}))
				if err != nil {
					log.Error().Err(err).Msg("Dry run failed")
					return
				}
				if err := printResult(cmd, res); err != nil {
					log.Error().Err(err).Msg("Failed to print result")
				}
			}

			dryRun()
			log.Info().Strs("paths", watched).Msg("Watching for changes")

			return w.Run(ctx, func(changed []string) {
				log.Info().Strs("changed", changed).Msg("Reloading")
				if err := e.reload(ctx, changed); err != nil {
					log.Error().Err(err).Msg("Reload failed, keeping the previous setup")
					return
				}
				if err := w.Add(e.cfg.WatchPaths()...); err != nil {
					log.Warn().Err(err).Msg("Failed to watch new rule or policy files")
				}
				dryRun()
			})
		},
	}

	cmd.Flags().StringVarP(&inputsPath, "inputs", "i", "", "inputs file to dry-run after each change")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics while watching")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before reloading")

	return cmd
}

// reload applies a batch of changed files. A config change rebuilds the
// suite, guard and runner; policy-only changes just recompile the policies.
// Store and telemetry settings take effect on the next start.
func (e *env) reload(ctx context.Context, changed []string) error {
	if configPath != "" && contains(changed, configPath) {
		cfg, err := loadConfig(ctx, e.loader)
		if err != nil {
			return err
		}
		prev := e.cfg
		e.cfg = cfg
		if err := e.build(ctx); err != nil {
			e.cfg = prev
			return err
		}
		return nil
	}

	var rules []string
	for _, r := range e.cfg.Rules {
		if r.File != "" {
			rules = append(rules, e.cfg.Resolve(r.File))
		}
	}
	for _, p := range changed {
		if contains(rules, p) {
			return e.build(ctx)
		}
	}
	return e.guard.Reload(ctx)
}

func contains(paths []string, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, p := range paths {
		if pa, err := filepath.Abs(p); err == nil && pa == abs {
			return true
		}
	}
	return false
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}
