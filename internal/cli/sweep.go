package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/dispatch"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-scan the whole staging table",
		Long: `Attempt every staging row once.

A sweep catches rows that became complete while no edit events were being
delivered. Already-routed rows are skipped via the ledger, so sweeping is
safe to repeat.

Example:
  switchyard sweep --store sqlite --db ./doc.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(rootOpts, cmd)
		},
	}

	return cmd
}

func runSweep(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	summary, err := dispatch.New(newEngine(opts.cfg, st)).Sweep(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep failed", err)
	}

	return outputSummary(formatter, summary)
}

// outputSummary renders per-row outcome counts. Row failures surface as a
// non-zero exit after the counts are printed.
func outputSummary(f *OutputFormatter, s dispatch.Summary) error {
	if f.Format == "json" {
		if err := f.Success(s); err != nil {
			return err
		}
	} else {
		glyph := "✓"
		if s.Failed > 0 {
			glyph = "✗"
		}
		fmt.Fprintf(f.Writer, "%s %d routed, %d not ready, %d already routed, %d failed (%d rows)\n",
			glyph, s.Routed, s.NotReady, s.AlreadyRouted, s.Failed, s.Rows())
	}

	if s.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) failed to route", s.Failed))
	}
	return nil
}
