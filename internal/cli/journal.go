package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/journal"
)

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "journal <run-id>",
		Short: "List the CRM mutations recorded for a run",
		Long: `List every create and update a run attempted, in order.

Only JOURNAL_DSN (or DATABASE_URL) needs to be set.

Example:
  servicesync journal 0190f3a4-7c1e-7d2a-9b61-3f2a8c0d4e11 --format json`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var jc config.JournalConfig
			if err := config.LoadSection(&jc); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if jc.DSN == "" {
				return NewExitError(ExitCommandError, "JOURNAL_DSN is not set")
			}

			ctx := cmd.Context()
			j, err := journal.Open(ctx, jc.DSN)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open journal", err)
			}
			defer j.Close()

			entries, err := j.List(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list journal", err)
			}
			if entries == nil {
				entries = []journal.Entry{}
			}

			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, entries, func(w io.Writer) {
				printEntries(w, entries)
			})
		},
	}
}

func printEntries(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOBJECT\tRECORD\tRESULT\tOPERATION")
	for _, e := range entries {
		result := "ok"
		if !e.Success {
			result = "FAILED: " + e.Detail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Object, e.RecordID, result, e.Operation)
	}
	tw.Flush()
}
