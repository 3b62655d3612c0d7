package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/citysim/cyclekernel/pkg/replay"
)

func newSeedsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "List the recorded cycle seeds",
		Long: `List the seed ledger: one record per cycle with its seed, checksum and
the fields the checksum was computed over.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			records, err := replay.ListCycleSeeds(ctx, e.store)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No cycle seeds recorded.")
				return err
			}

			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{
					strconv.Itoa(r.CycleID),
					strconv.FormatInt(r.Seed, 10),
					r.Timestamp.Format(time.RFC3339),
					r.Fingerprint.String(),
					short(r.Checksum, 12),
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"CYCLE", "SEED", "TIMESTAMP", "FINGERPRINT", "CHECKSUM"}, rows))
			return err
		},
	}
	return cmd
}
