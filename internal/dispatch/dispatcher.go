// Package dispatch feeds edit events into the routing engine: once per
// affected staging row, skipping edits that touch other tables or
// columns, and swallowing per-row failures so one bad row never stops
// the rest.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// Summary tallies the outcomes of one dispatch pass.
type Summary struct {
	Routed        int `json:"routed"`
	NotReady      int `json:"not_ready"`
	AlreadyRouted int `json:"already_routed"`
	Failed        int `json:"failed"`
}

// Rows returns the number of routing attempts behind the summary.
func (s Summary) Rows() int {
	return s.Routed + s.NotReady + s.AlreadyRouted + s.Failed
}

// Dispatcher drives the routing engine from edit events.
type Dispatcher struct {
	engine  *engine.Engine
	staging string
}

// New creates a Dispatcher over the given engine.
func New(eng *engine.Engine) *Dispatcher {
	return &Dispatcher{
		engine:  eng,
		staging: eng.Names().Staging,
	}
}

// HandleEdit routes every staged row the event touches.
//
// Edits outside the staging table (name compared case/whitespace-
// insensitively) or entirely outside the record columns are ignored.
// The header row is never routed. Per-row failures are logged to the
// operational channel and swallowed; the loop continues unconditionally
// after each row.
func (d *Dispatcher) HandleEdit(ctx context.Context, ev EditEvent) Summary {
	var s Summary

	if !record.SameName(ev.Table, d.staging) {
		slog.Debug("edit ignored: not the staging table", "table", ev.Table)
		return s
	}

	lastCol := ev.Col + ev.ColCount - 1
	if ev.Col > record.FieldCount || lastCol < 1 {
		slog.Debug("edit ignored: outside record columns",
			"col", ev.Col,
			"col_count", ev.ColCount,
		)
		return s
	}

	first := max(ev.Row, record.FirstDataRow)
	last := ev.Row + ev.RowCount - 1
	for row := first; row <= last; row++ {
		d.routeOne(ctx, row, &s)
	}
	return s
}

// Sweep routes every staged row in order. Used for startup catch-up and
// for explicit re-scans when a row's trigger was missed. A document
// with no staging table yet has nothing to sweep.
func (d *Dispatcher) Sweep(ctx context.Context) (Summary, error) {
	var s Summary

	staging, err := d.engine.Store().Table(ctx, d.staging)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		slog.Debug("sweep: no staging table", "table", d.staging)
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("open staging table: %w", err)
	}

	last, err := staging.LastRowIndex(ctx)
	if err != nil {
		return s, fmt.Errorf("last staged row: %w", err)
	}

	for row := record.FirstDataRow; row <= last; row++ {
		d.routeOne(ctx, row, &s)
	}

	slog.Info("sweep complete",
		"rows", s.Rows(),
		"routed", s.Routed,
		"not_ready", s.NotReady,
		"already_routed", s.AlreadyRouted,
		"failed", s.Failed,
	)
	return s, nil
}

// routeOne runs a single routing attempt and folds its outcome into the
// summary. Errors stop here: they are operational events, not caller
// failures.
func (d *Dispatcher) routeOne(ctx context.Context, row int, s *Summary) {
	out, err := d.engine.RouteRow(ctx, row)
	if err != nil {
		s.Failed++
		logRouteError(row, err)
		return
	}

	switch out.Status {
	case engine.StatusRouted:
		s.Routed++
	case engine.StatusNotReady:
		s.NotReady++
	case engine.StatusAlreadyRouted:
		s.AlreadyRouted++
	}
}

// logRouteError logs one failed routing attempt with enough context for
// manual follow-up. Lock timeouts and unresolvable rows are expected
// operational noise; store faults are not.
func logRouteError(row int, err error) {
	switch {
	case engine.IsLockTimeout(err):
		slog.Warn("routing attempt abandoned: document lock busy",
			"source_row", row,
			"error", err,
		)
	case engine.IsResolveFailed(err):
		slog.Warn("row not routable: no destination",
			"source_row", row,
			"error", err,
		)
	default:
		slog.Error("routing attempt failed",
			"source_row", row,
			"error", err,
		)
	}
}
