package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
)

// RouteOptions holds flags for the route command.
type RouteOptions struct {
	*RootOptions
	Row int
	All bool
}

// NewRouteCommand creates the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RouteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route staged rows to their destinations",
		Long: `Route rows out of the staging table.

With --row N one staging row is attempted. With --all every staging row is
attempted, same as a sweep. Rows already recorded in the ledger and rows
with required fields still missing are left alone.

Example:
  switchyard route --store sqlite --db ./doc.db --row 4
  switchyard route --store sqlite --db ./doc.db --all`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Row, "row", 0, "staging row to route (1-based index)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "route every staging row")

	return cmd
}

func runRoute(opts *RouteOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.All == (opts.Row != 0) {
		return NewExitError(ExitCommandError, "exactly one of --row or --all is required")
	}

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	eng := newEngine(opts.cfg, st)

	if opts.All {
		summary, err := dispatch.New(eng).Sweep(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "sweep failed", err)
		}
		return outputSummary(formatter, summary)
	}

	out, err := eng.RouteRow(cmd.Context(), opts.Row)
	if err != nil {
		return routeError(formatter, err)
	}
	return outputOutcome(formatter, out)
}

// outputOutcome renders one routing outcome.
func outputOutcome(f *OutputFormatter, out engine.Outcome) error {
	if f.Format == "json" {
		return f.Success(out)
	}

	switch out.Status {
	case engine.StatusRouted:
		fmt.Fprintf(f.Writer, "✓ row %d routed to %s (row %d)\n", out.SourceRow, out.Destination, out.DestRow)
	case engine.StatusNotReady:
		fmt.Fprintf(f.Writer, "- row %d not ready: required fields missing\n", out.SourceRow)
	case engine.StatusAlreadyRouted:
		fmt.Fprintf(f.Writer, "- row %d already routed\n", out.SourceRow)
	default:
		fmt.Fprintf(f.Writer, "row %d: %s\n", out.SourceRow, out.Status)
	}
	return nil
}

// routeError reports a failed attempt and maps it to an exit code.
func routeError(f *OutputFormatter, err error) error {
	code := "ROUTE_FAILED"
	var rerr *engine.RuntimeError
	if errors.As(err, &rerr) {
		code = string(rerr.Code)
	}
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, "routing failed", err)
}
