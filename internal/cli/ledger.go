package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/engine"
)

// LedgerResult is the JSON payload of the ledger command.
type LedgerResult struct {
	Count   int            `json:"count"`
	Entries []engine.Entry `json:"entries"`
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List routing ledger entries",
		Long: `List every routing ledger entry in append order.

Each entry records the content key of the routed row, the routing time,
the destination table, and the staging row index.

Example:
  switchyard ledger --store sqlite --db ./doc.db
  switchyard ledger --store sqlite --db ./doc.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(rootOpts, cmd)
		},
	}

	return cmd
}

func runLedger(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	entries, err := newEngine(opts.cfg, st).Ledger().Entries(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}

	if formatter.Format == "json" {
		if entries == nil {
			entries = []engine.Entry{}
		}
		return formatter.Success(LedgerResult{Count: len(entries), Entries: entries})
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "ledger is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "row %d -> %s  %s  %s\n", e.SourceRow, e.Destination, e.When, e.ContentKey)
	}
	fmt.Fprintf(formatter.Writer, "%d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
