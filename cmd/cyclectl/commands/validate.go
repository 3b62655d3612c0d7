package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/citysim/cyclekernel/pkg/config"
	"github.com/citysim/cyclekernel/pkg/policy"
	"github.com/citysim/cyclekernel/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var inputs []string

	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a config file, its rules and policies, and inputs files",
		Long: `Validate checks a configuration without running a cycle:
  - CUE schema conformance of the config document
  - struct validation of every section
  - Starlark rule scripts compile and attach to a known module
  - Rego policies compile
  - inputs files conform to the inputs schema`,
		Example: `  # Validate the config given with --config
  cyclectl validate -c city.cue

  # Validate a config and two inputs files
  cyclectl validate city.yaml --inputs cycle-41.yaml --inputs cycle-42.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) > 0 {
				configPath = args[0]
			}

			loader := config.NewLoader()
			cfg, err := loadConfig(ctx, loader)
			if err != nil {
				printValidationErrors(cmd, err)
				return fmt.Errorf("config is invalid")
			}

			logger := telemetry.NewFromZerolog(log.Logger)
			if _, err := cfg.BuildSuite(logger); err != nil {
				return fmt.Errorf("rules: %w", err)
			}
			guard, err := policy.NewGuard(ctx, cfg.PolicyConfig(), log.Logger)
			if err != nil {
				return fmt.Errorf("policies: %w", err)
			}

			out := cmd.OutOrStdout()
			name := configPath
			if name == "" {
				name = "(defaults)"
			}
			fmt.Fprintln(out, row("config", okStyle.Render("ok")+" "+name))
			fmt.Fprintln(out, row("rules", len(cfg.Rules)))
			fmt.Fprintln(out, row("policies", len(guard.Policies())))

			failed := false
			for _, path := range inputs {
				in, err := loader.LoadInputs(ctx, path)
				if err != nil {
					failed = true
					fmt.Fprintln(out, row("inputs", errStyle.Render("invalid")+" "+path))
					printValidationErrors(cmd, err)
					continue
				}
				fmt.Fprintln(out, row("inputs", okStyle.Render("ok")+fmt.Sprintf(" %s (cycle %d)", path, in.CycleID)))
			}
			if failed {
				return fmt.Errorf("inputs are invalid")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "inputs", "i", nil, "inputs files to validate")

	return cmd
}

func printValidationErrors(cmd *cobra.Command, err error) {
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		fmt.Fprintln(cmd.ErrOrStderr(), detailStyle.Render(err.Error()))
		return
	}
	for _, v := range verrs {
		fmt.Fprintln(cmd.ErrOrStderr(), detailStyle.Render(v.String()))
	}
}
