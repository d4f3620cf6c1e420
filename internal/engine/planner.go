package engine

import (
	"context"
	"fmt"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// NextRow computes the first writable row of a destination table: the
// first row below the header whose first width columns are entirely
// empty, immediately following the last row that has any data in those
// columns.
//
// The table's reported last row is only a starting point. Trailing rows
// that are blank in the checked columns do not count as occupied, even
// when stray values sit in columns beyond width, so the scan walks
// backward from the last reported row until it finds data. A table with
// only a header, or with no data at all in the checked columns, yields
// the first data row.
//
// NextRow is read-only and does not reserve the row. The caller must
// write it promptly inside the same critical section.
func NextRow(ctx context.Context, t tablestore.Table, width int) (int, error) {
	if width < 1 {
		return 0, fmt.Errorf("next row of %s: width %d out of range", t.Name(), width)
	}

	last, err := t.LastRowIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("last row of %s: %w", t.Name(), err)
	}

	for row := last; row >= record.FirstDataRow; row-- {
		cells, err := t.ReadRow(ctx, row, 1, width)
		if err != nil {
			return 0, fmt.Errorf("read row %d of %s: %w", row, t.Name(), err)
		}
		if rowHasData(cells) {
			return row + 1, nil
		}
	}

	// Header-only, or no data at all in the checked columns.
	return record.FirstDataRow, nil
}

// rowHasData reports whether any cell in the window holds a value.
// Blank strings do not count.
func rowHasData(cells []any) bool {
	for _, c := range cells {
		if !record.CellEmpty(c) {
			return true
		}
	}
	return false
}
