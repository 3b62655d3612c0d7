package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	storeFlag  string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cyclectl",
		Short: "Cycle kernel - advance the simulated city one cycle at a time",
		Long: `cyclectl runs the cycle simulation kernel.

Each cycle fuses the signals handed in by collaborators into one context,
scores civic load, cycle weight, patterns and migration drift, carries the
recovery state forward and stages every ledger write as an intent. Writes
are flushed once at the end, or not at all in dry-run and replay mode.

Features:
  - Deterministic seeded generation with replay verification
  - Config in CUE, YAML, JSON or Starlark
  - Starlark scoring rules
  - OPA policies guarding ledger writes
  - SQLite or in-memory ledger`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (.cue, .yaml, .json or .star)")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", `ledger store override: "memory" or a SQLite file path`)
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newSeedsCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
