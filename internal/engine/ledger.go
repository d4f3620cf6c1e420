package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// ledgerRowColumn is the ROW column of the ledger layout.
const ledgerRowColumn = 4

// ledgerTimeFormat is the representation of the WHEN column.
const ledgerTimeFormat = time.RFC3339

// Entry is one routing event as stored in the ledger.
type Entry struct {
	ContentKey  string `json:"key"`
	When        string `json:"when"`
	Destination string `json:"dest"`
	SourceRow   int    `json:"row"`
}

// Ledger is the append-only routing-event log. It is both the audit
// trail and the source of truth for "already routed": a source row
// index present in the ledger is never routed again.
//
// Entries are never updated or deleted. Duplicate content keys across
// different source rows are permitted; only the source row index gates
// routing.
//
// Routed row indices are cached in memory so repeated WasRouted checks
// against a long ledger stay cheap. The cache holds positive answers
// only: a row's absence may change the moment it is routed, but once
// present in the append-only ledger it stays present, so positives
// never go stale.
type Ledger struct {
	store tablestore.Store
	table string

	mu     sync.Mutex
	routed map[int]bool
}

// NewLedger creates a Ledger over the named table. The table itself is
// created lazily on first Append.
func NewLedger(store tablestore.Store, table string) *Ledger {
	return &Ledger{
		store:  store,
		table:  table,
		routed: make(map[int]bool),
	}
}

// Table returns the ledger's table name.
func (l *Ledger) Table() string {
	return l.table
}

// WasRouted reports whether any ledger entry records the given source
// row index. The stored representation is not trusted: comparison is
// numeric whatever the cell type. A missing ledger table means nothing
// has been routed.
func (l *Ledger) WasRouted(ctx context.Context, sourceRow int) (bool, error) {
	l.mu.Lock()
	cached := l.routed[sourceRow]
	l.mu.Unlock()
	if cached {
		return true, nil
	}

	t, err := l.store.Table(ctx, l.table)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open ledger %s: %w", l.table, err)
	}

	last, err := t.LastRowIndex(ctx)
	if err != nil {
		return false, fmt.Errorf("last row of ledger %s: %w", l.table, err)
	}

	for row := record.FirstDataRow; row <= last; row++ {
		cells, err := t.ReadRow(ctx, row, ledgerRowColumn, 1)
		if err != nil {
			return false, fmt.Errorf("read ledger %s row %d: %w", l.table, row, err)
		}
		if v, ok := record.CellInt(cells[0]); ok && v == int64(sourceRow) {
			l.remember(sourceRow)
			return true, nil
		}
	}

	return false, nil
}

// Append records one routing event with the given timestamp. The ledger
// table and its header are created on first use. No dedup happens here:
// the caller's own WasRouted pre-check establishes the at-most-once
// property, and duplicate content keys are explicitly permitted.
func (l *Ledger) Append(ctx context.Context, contentKey, destination string, sourceRow int, when time.Time) error {
	t, err := l.ensureTable(ctx)
	if err != nil {
		return err
	}

	entry := []any{contentKey, when.Format(ledgerTimeFormat), destination, sourceRow}
	if err := t.AppendRow(ctx, entry); err != nil {
		return fmt.Errorf("append to ledger %s: %w", l.table, err)
	}

	l.remember(sourceRow)
	return nil
}

// Entries returns every ledger entry in append order. Blank rows are
// skipped.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	t, err := l.store.Table(ctx, l.table)
	if errors.Is(err, tablestore.ErrTableNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", l.table, err)
	}

	last, err := t.LastRowIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("last row of ledger %s: %w", l.table, err)
	}

	var entries []Entry
	for row := record.FirstDataRow; row <= last; row++ {
		cells, err := t.ReadRow(ctx, row, 1, len(record.LedgerHeader))
		if err != nil {
			return nil, fmt.Errorf("read ledger %s row %d: %w", l.table, row, err)
		}
		if !rowHasData(cells) {
			continue
		}

		e := Entry{
			ContentKey:  record.CellString(cells[0]),
			When:        record.CellString(cells[1]),
			Destination: record.CellString(cells[2]),
		}
		if v, ok := record.CellInt(cells[3]); ok {
			e.SourceRow = int(v)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// RebuildIndex discards the routed-row cache and reloads it from the
// ledger. Long-running processes call this on startup so WasRouted
// answers from memory instead of rescanning the table per attempt.
// Returns the number of routed rows found.
func (l *Ledger) RebuildIndex(ctx context.Context) (int, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return 0, err
	}

	routed := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.SourceRow > 0 {
			routed[e.SourceRow] = true
		}
	}

	l.mu.Lock()
	l.routed = routed
	l.mu.Unlock()

	return len(routed), nil
}

// ensureTable returns the ledger table, creating it with its header
// when absent.
func (l *Ledger) ensureTable(ctx context.Context) (tablestore.Table, error) {
	t, err := l.store.Table(ctx, l.table)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, tablestore.ErrTableNotFound) {
		return nil, fmt.Errorf("open ledger %s: %w", l.table, err)
	}

	t, err = l.store.CreateTable(ctx, l.table)
	if err != nil {
		return nil, fmt.Errorf("create ledger %s: %w", l.table, err)
	}
	if err := t.WriteRow(ctx, 1, 1, record.HeaderCells(record.LedgerHeader)); err != nil {
		return nil, fmt.Errorf("write ledger header %s: %w", l.table, err)
	}
	return t, nil
}

func (l *Ledger) remember(sourceRow int) {
	l.mu.Lock()
	l.routed[sourceRow] = true
	l.mu.Unlock()
}
