package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// AssertionError is returned when an assertion fails. It carries the
// executed steps so a failure report shows how the document got into
// its final state.
type AssertionError struct {
	Type     string       // assertion type for categorization
	Expected string       // human-readable expected outcome
	Actual   string       // human-readable actual outcome
	Steps    []TraceEvent // executed flow steps for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nExecuted steps:\n")
	for _, ev := range e.Steps {
		switch {
		case ev.Error != "":
			fmt.Fprintf(&buf, "  [%d] %s row=%d error=%s\n", ev.Step, ev.Do, ev.Row, ev.Error)
		case ev.Summary != nil:
			fmt.Fprintf(&buf, "  [%d] %s routed=%d not_ready=%d already_routed=%d failed=%d\n",
				ev.Step, ev.Do, ev.Summary.Routed, ev.Summary.NotReady,
				ev.Summary.AlreadyRouted, ev.Summary.Failed)
		case ev.Do == StepSet:
			fmt.Fprintf(&buf, "  [%d] set %s[%d,%d]=%q\n", ev.Step, ev.Table, ev.Row, ev.Col, ev.Value)
		default:
			fmt.Fprintf(&buf, "  [%d] %s row=%d status=%s destination=%s\n",
				ev.Step, ev.Do, ev.Row, ev.Status, ev.Destination)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the final document
// and returns one message per failure.
func EvaluateAssertions(ctx context.Context, eng *engine.Engine, assertions []Assertion, steps []TraceEvent) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLedgerCount:
			err = assertLedgerCount(ctx, eng, assertion, steps)
		case AssertRouted:
			err = assertRouted(ctx, eng, assertion, steps)
		case AssertNotRouted:
			err = assertNotRouted(ctx, eng, assertion, steps)
		case AssertCell:
			err = assertCell(ctx, eng, assertion, steps)
		case AssertTableExists, AssertNoTable:
			err = assertTablePresence(ctx, eng, assertion, steps)
		case AssertHeader:
			err = assertHeader(ctx, eng, assertion, steps)
		case AssertDestinationCount:
			err = assertDestinationCount(ctx, eng, assertion, steps)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// assertLedgerCount checks the total number of ledger entries.
func assertLedgerCount(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	entries, err := eng.Ledger().Entries(ctx)
	if err != nil {
		return fmt.Errorf("ledger_count: read ledger: %w", err)
	}
	if len(entries) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertLedgerCount,
		Expected: fmt.Sprintf("%d ledger entries", a.Count),
		Actual:   describeEntries(entries),
		Steps:    steps,
	}
}

// assertRouted checks that a source row appears in the ledger, bound to
// the given destination when one is named.
func assertRouted(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	entries, err := eng.Ledger().Entries(ctx)
	if err != nil {
		return fmt.Errorf("routed: read ledger: %w", err)
	}

	for _, entry := range entries {
		if entry.SourceRow != a.Row {
			continue
		}
		if a.Destination == "" || record.SameName(entry.Destination, a.Destination) {
			return nil
		}
		return &AssertionError{
			Type:     AssertRouted,
			Expected: fmt.Sprintf("row %d routed to %s", a.Row, a.Destination),
			Actual:   fmt.Sprintf("row %d routed to %s", a.Row, entry.Destination),
			Steps:    steps,
		}
	}

	expected := fmt.Sprintf("row %d in the ledger", a.Row)
	if a.Destination != "" {
		expected = fmt.Sprintf("row %d routed to %s", a.Row, a.Destination)
	}
	return &AssertionError{
		Type:     AssertRouted,
		Expected: expected,
		Actual:   describeEntries(entries),
		Steps:    steps,
	}
}

// assertNotRouted checks that a source row is absent from the ledger.
func assertNotRouted(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	entries, err := eng.Ledger().Entries(ctx)
	if err != nil {
		return fmt.Errorf("not_routed: read ledger: %w", err)
	}
	for _, entry := range entries {
		if entry.SourceRow == a.Row {
			return &AssertionError{
				Type:     AssertNotRouted,
				Expected: fmt.Sprintf("row %d absent from the ledger", a.Row),
				Actual:   fmt.Sprintf("row %d routed to %s", a.Row, entry.Destination),
				Steps:    steps,
			}
		}
	}
	return nil
}

// assertCell checks one cell against an exact string value.
func assertCell(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	tab, err := findTable(ctx, eng.Store(), a.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertCell,
			Expected: fmt.Sprintf("%s[%d,%d] = %q", a.Table, a.Row, a.Col, a.Value),
			Actual:   fmt.Sprintf("table %s not found", a.Table),
			Steps:    steps,
		}
	}

	cells, err := tab.ReadRow(ctx, a.Row, a.Col, 1)
	if err != nil {
		return fmt.Errorf("cell: read %s[%d,%d]: %w", a.Table, a.Row, a.Col, err)
	}
	got := record.CellString(cells[0])
	if got == a.Value {
		return nil
	}
	return &AssertionError{
		Type:     AssertCell,
		Expected: fmt.Sprintf("%s[%d,%d] = %q", a.Table, a.Row, a.Col, a.Value),
		Actual:   fmt.Sprintf("%s[%d,%d] = %q", a.Table, a.Row, a.Col, got),
		Steps:    steps,
	}
}

// assertTablePresence handles table_exists and no_table.
func assertTablePresence(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	names, err := eng.Store().TableNames(ctx)
	if err != nil {
		return fmt.Errorf("%s: list tables: %w", a.Type, err)
	}

	found := ""
	for _, name := range names {
		if record.SameName(name, a.Table) {
			found = name
			break
		}
	}

	switch {
	case a.Type == AssertTableExists && found == "":
		return &AssertionError{
			Type:     AssertTableExists,
			Expected: fmt.Sprintf("table %s present", a.Table),
			Actual:   fmt.Sprintf("tables: %s", strings.Join(names, ", ")),
			Steps:    steps,
		}
	case a.Type == AssertNoTable && found != "":
		return &AssertionError{
			Type:     AssertNoTable,
			Expected: fmt.Sprintf("table %s absent", a.Table),
			Actual:   fmt.Sprintf("table %s present", found),
			Steps:    steps,
		}
	}
	return nil
}

// assertHeader checks a table's header row against a named layout.
func assertHeader(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	layout := layoutCells(a.Layout)

	tab, err := findTable(ctx, eng.Store(), a.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertHeader,
			Expected: fmt.Sprintf("table %s with %s header", a.Table, a.Layout),
			Actual:   fmt.Sprintf("table %s not found", a.Table),
			Steps:    steps,
		}
	}

	cells, err := tab.ReadRow(ctx, record.HeaderRow, 1, len(layout))
	if err != nil {
		return fmt.Errorf("header: read header of %s: %w", a.Table, err)
	}
	if record.HeaderMatches(cells, layout) {
		return nil
	}

	got := make([]string, len(cells))
	for i, cell := range cells {
		got[i] = record.CellString(cell)
	}
	return &AssertionError{
		Type:     AssertHeader,
		Expected: fmt.Sprintf("%s header %v on %s", a.Layout, layout, a.Table),
		Actual:   fmt.Sprintf("header %v", got),
		Steps:    steps,
	}
}

// assertDestinationCount checks the number of non-blank data rows below
// a table's header.
func assertDestinationCount(ctx context.Context, eng *engine.Engine, a Assertion, steps []TraceEvent) error {
	tab, err := findTable(ctx, eng.Store(), a.Table)
	if err != nil {
		return &AssertionError{
			Type:     AssertDestinationCount,
			Expected: fmt.Sprintf("table %s with %d data rows", a.Table, a.Count),
			Actual:   fmt.Sprintf("table %s not found", a.Table),
			Steps:    steps,
		}
	}

	count, err := countDataRows(ctx, tab)
	if err != nil {
		return fmt.Errorf("destination_count: scan %s: %w", a.Table, err)
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertDestinationCount,
		Expected: fmt.Sprintf("%d data rows in %s", a.Count, a.Table),
		Actual:   fmt.Sprintf("%d data rows", count),
		Steps:    steps,
	}
}

// layoutCells maps a layout name to its header cells. Validation has
// already rejected unknown names.
func layoutCells(layout string) []string {
	switch layout {
	case LayoutFull:
		return record.FullHeader
	case LayoutCompact:
		return record.CompactHeader
	case LayoutLedger:
		return record.LedgerHeader
	}
	return nil
}

// countDataRows counts rows below the header with at least one
// non-blank cell in the record columns.
func countDataRows(ctx context.Context, tab tablestore.Table) (int, error) {
	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for row := record.FirstDataRow; row <= last; row++ {
		cells, err := tab.ReadRow(ctx, row, 1, record.FieldCount)
		if err != nil {
			return 0, err
		}
		for _, cell := range cells {
			if !record.CellEmpty(cell) {
				count++
				break
			}
		}
	}
	return count, nil
}

// describeEntries renders ledger entries for failure messages.
func describeEntries(entries []engine.Entry) string {
	if len(entries) == 0 {
		return "empty ledger"
	}
	parts := make([]string, len(entries))
	for i, entry := range entries {
		parts[i] = fmt.Sprintf("row %d to %s", entry.SourceRow, entry.Destination)
	}
	return fmt.Sprintf("%d entries: %s", len(entries), strings.Join(parts, "; "))
}
