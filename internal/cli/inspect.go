package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Width int
}

// InspectResult is the JSON payload of the inspect command.
type InspectResult struct {
	Table   string  `json:"table"`
	LastRow int     `json:"last_row"`
	Rows    [][]any `json:"rows"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <table>",
		Short: "Dump the contents of one table",
		Long: `Print a table row by row, header included.

The table name is matched the way destination lookups match: ignoring case
and surrounding whitespace.

Example:
  switchyard inspect --store sqlite --db ./doc.db INTAKE
  switchyard inspect --store sqlite --db ./doc.db routed_log --width 4`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Width, "width", record.FieldCount, "columns to read per row")

	return cmd
}

func runInspect(opts *InspectOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Width < 1 {
		return NewExitError(ExitCommandError, "--width must be at least 1")
	}

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	ctx := cmd.Context()
	tab, err := findTable(ctx, st, name)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("table %q not found", name), err)
	}

	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read table", err)
	}

	rows := make([][]any, 0, last)
	for row := 1; row <= last; row++ {
		cells, err := tab.ReadRow(ctx, row, 1, opts.Width)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read row %d", row), err)
		}
		rows = append(rows, cells)
	}

	if formatter.Format == "json" {
		return formatter.Success(InspectResult{Table: tab.Name(), LastRow: last, Rows: rows})
	}

	if last == 0 {
		fmt.Fprintf(formatter.Writer, "table %s is empty\n", tab.Name())
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%s (%d rows)\n", tab.Name(), last)
	for i, cells := range rows {
		vals := make([]string, len(cells))
		for j, c := range cells {
			vals[j] = record.CellString(c)
		}
		fmt.Fprintf(formatter.Writer, "%4d  %s\n", i+1, strings.Join(vals, " | "))
	}
	return nil
}

// findTable resolves a table handle the way destination lookups do:
// case and whitespace insensitive against the listed names.
func findTable(ctx context.Context, st tablestore.Store, name string) (tablestore.Table, error) {
	names, err := st.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if record.SameName(n, name) {
			return st.Table(ctx, n)
		}
	}
	return nil, tablestore.ErrTableNotFound
}
