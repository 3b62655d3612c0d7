package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/citysim/cyclekernel/pkg/cycle"
	"github.com/citysim/cyclekernel/pkg/engine"
)

func newRunCommand() *cobra.Command {
	var (
		inputsPath string
		cycleID    int
		dryRun     bool
		strict     bool
		profile    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one cycle",
		Long: `Run one cycle of the simulation kernel.

The cycle reads the inputs handed over by collaborators (calendar, weather,
world events, story hooks, neighborhoods), scores them, carries the recovery
state forward and flushes every staged write to the ledger.

With --dry-run nothing is written; the summary shows what would have been.`,
		Example: `  # Run the cycle described by an inputs file
  cyclectl run --inputs cycle-42.yaml

  # Preview a cycle without touching the ledger
  cyclectl run --inputs cycle-42.yaml --dry-run

  # Halt at the first failed write and print phase timings
  cyclectl run --inputs cycle-42.yaml --strict --profile

  # Run a bare cycle against a throwaway ledger
  cyclectl run --cycle 7 --store memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			in, err := e.inputs(ctx, inputsPath, cycleID)
			if err != nil {
				return err
			}
			mode := e.mode(engine.Mode{DryRun: dryRun, Strict: strict, Profile: profile})

			log.Info().
				Int("cycle", in.CycleID).
				Str("mode", mode.String()).
				Bool("strict", mode.Strict).
				Msg("Running cycle")

			res, err := e.runner.RunCycle(ctx, in, mode)
			if res != nil {
				if perr := printResult(cmd, res); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&inputsPath, "inputs", "i", "", "inputs file (.yaml, .json or .cue)")
	cmd.Flags().IntVar(&cycleID, "cycle", 0, "cycle ID (overrides the inputs file)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute everything, write nothing")
	cmd.Flags().BoolVar(&strict, "strict", false, "halt at the first failed write")
	cmd.Flags().BoolVar(&profile, "profile", false, "report per-phase timings")

	return cmd
}

func printResult(cmd *cobra.Command, res *cycle.Result) error {
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
	return err
}
