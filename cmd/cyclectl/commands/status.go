package commands

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/citysim/cyclekernel/pkg/engine"
	"github.com/citysim/cyclekernel/pkg/recovery"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recovery state the next cycle will start from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.HealthCheck(ctx); err != nil {
				return err
			}
			state, err := recovery.LoadState(ctx, e.store)
			if err != nil {
				return err
			}
			tables, err := e.store.Tables(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"recovery": state,
					"tables":   tables,
				})
			}

			mult := engine.SuppressionFor(state.Level)
			out := lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("Recovery"),
				row("level", levelStyle(state.Level).Render(string(state.Level))),
				row("started", state.StartCycle),
				row("window", state.Window),
				row("duration", state.Duration),
				row("suppression", fmt.Sprintf("events %.2f, hooks %.2f, textures %.2f", mult.Event, mult.Hook, mult.Texture)),
				sectionStyle.Render(titleStyle.Render("Ledger")),
				row("tables", len(tables)),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	return cmd
}
