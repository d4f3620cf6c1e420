package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// Seed rewrites the configuration table with the given rules, in order.
// The table is created when missing; leftover rows from a previous, longer
// configuration are blanked so resolution cannot see stale rules. Callers
// hold the document lock around Seed the same way routing attempts do.
func Seed(ctx context.Context, store tablestore.Store, configTable string, ruleset []Rule) error {
	tab, err := store.Table(ctx, configTable)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		tab, err = store.CreateTable(ctx, configTable)
	}
	if err != nil {
		return fmt.Errorf("seed config table %q: %w", configTable, err)
	}

	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		return fmt.Errorf("seed config table %q: %w", configTable, err)
	}

	if err := tab.WriteRow(ctx, 1, 1, record.HeaderCells(ConfigHeader)); err != nil {
		return fmt.Errorf("seed config table %q: header: %w", configTable, err)
	}

	for i, rule := range ruleset {
		if err := tab.WriteRow(ctx, i+2, 1, rule.Cells()); err != nil {
			return fmt.Errorf("seed config table %q: rule %d: %w", configTable, i, err)
		}
	}

	blank := []any{"", "", ""}
	for row := len(ruleset) + 2; row <= last; row++ {
		if err := tab.WriteRow(ctx, row, 1, blank); err != nil {
			return fmt.Errorf("seed config table %q: blank row %d: %w", configTable, row, err)
		}
	}
	return nil
}
