package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent cycle runs",
		Long: `List the run history kept by the ledger store. Only real runs are
recorded; dry runs and replays leave no trace.`,
		Example: `  # Show the last 20 runs
  cyclectl runs --limit 20 --store ./city.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				took := "-"
				if r.CompletedAt != nil {
					took = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				errMsg := ""
				if r.Error != nil {
					errMsg = *r.Error
				}
				rows[i] = []string{
					short(r.ID, 8),
					strconv.Itoa(r.CycleID),
					r.Mode,
					string(r.Status),
					r.StartedAt.Format(time.RFC3339),
					took,
					errMsg,
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"RUN", "CYCLE", "MODE", "STATUS", "STARTED", "TOOK", "ERROR"}, rows))
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}
