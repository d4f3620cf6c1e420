package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Header bool
}

// LoadResult is the JSON payload of the load command.
type LoadResult struct {
	File     string           `json:"file"`
	Table    string           `json:"table"`
	Loaded   int              `json:"loaded"`
	FirstRow int              `json:"first_row"`
	Summary  dispatch.Summary `json:"summary"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Bulk-append a CSV file into the staging table",
		Long: `Append CSV records to the staging table and route them.

Records land after the last staged data row, all appended under one hold
of the document lock. Each appended row is then attempted individually,
exactly as if the rows had been pasted in. Short records are padded with
empty cells; those rows stay behind as not ready until completed.

Example:
  switchyard load --store sqlite --db ./doc.db ./incoming.csv
  switchyard load --header=false ./no-header.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Header, "header", true, "treat the first CSV record as a header and skip it")

	return cmd
}

func runLoad(opts *LoadOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	records, err := readCSV(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read CSV", err)
	}
	if opts.Header && len(records) > 0 {
		records = records[1:]
	}
	if len(records) == 0 {
		return formatter.Success("nothing to load")
	}
	formatter.VerboseLog("parsed %d record(s) from %s", len(records), path)

	st, err := openStore(opts.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore(st)

	eng := newEngine(opts.cfg, st)
	ctx := cmd.Context()

	start, err := stageRecords(ctx, st, opts.cfg.Tables.Staging, opts.cfg.Routing.LockTimeout, records)
	if err != nil {
		if errors.Is(err, tablestore.ErrLockTimeout) {
			return WrapExitError(ExitFailure, "document lock busy", err)
		}
		return WrapExitError(ExitFailure, "failed to stage records", err)
	}

	summary := dispatch.New(eng).HandleEdit(ctx, dispatch.EditEvent{
		Table:    opts.cfg.Tables.Staging,
		Row:      start,
		RowCount: len(records),
		Col:      1,
		ColCount: record.FieldCount,
	})

	result := LoadResult{
		File:     path,
		Table:    opts.cfg.Tables.Staging,
		Loaded:   len(records),
		FirstRow: start,
		Summary:  summary,
	}
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✓ loaded %d record(s) into %s starting at row %d\n",
			result.Loaded, result.Table, result.FirstRow)
		fmt.Fprintf(formatter.Writer, "  %d routed, %d not ready, %d already routed, %d failed\n",
			summary.Routed, summary.NotReady, summary.AlreadyRouted, summary.Failed)
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) failed to route", summary.Failed))
	}
	return nil
}

// readCSV parses the whole file, tolerating ragged records.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// stageRecords appends the records to the staging table under one hold of
// the document lock and reports the first written row index. The staging
// table and its header are created when missing.
func stageRecords(ctx context.Context, st tablestore.Store, staging string, timeout time.Duration, records [][]string) (int, error) {
	if err := st.Acquire(ctx, timeout); err != nil {
		return 0, err
	}
	defer func() {
		if err := st.Release(); err != nil {
			slog.Error("failed to release document lock", "error", err)
		}
	}()

	tab, err := st.Table(ctx, staging)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		tab, err = st.CreateTable(ctx, staging)
		if err == nil {
			err = tab.WriteRow(ctx, record.HeaderRow, 1, record.HeaderCells(record.FullHeader))
		}
	}
	if err != nil {
		return 0, fmt.Errorf("staging table %q: %w", staging, err)
	}

	start, err := engine.NextRow(ctx, tab, record.FieldCount)
	if err != nil {
		return 0, err
	}

	for i, rec := range records {
		cells := make([]any, record.FieldCount)
		for j := 0; j < record.FieldCount && j < len(rec); j++ {
			cells[j] = rec[j]
		}
		if err := tab.WriteRow(ctx, start+i, 1, cells); err != nil {
			return 0, fmt.Errorf("write staged row %d: %w", start+i, err)
		}
	}
	return start, nil
}
