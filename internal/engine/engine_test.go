package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/rules"
	"github.com/roach88/switchyard/internal/tablestore"
	"github.com/roach88/switchyard/internal/testutil"
)

var testWhen = time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

// completeRow returns one fully populated staged row.
func completeRow(part string) []any {
	return []any{part, "WH1", "ACME", "12.50", "2026-08-01", "GASKET"}
}

// seedStaging creates the staging table with a header and the given data
// rows starting at row 2.
func seedStaging(t *testing.T, store tablestore.Store, rows ...[]any) {
	t.Helper()
	ctx := context.Background()

	tab, err := store.CreateTable(ctx, DefaultStagingTable)
	require.NoError(t, err)
	require.NoError(t, tab.WriteRow(ctx, 1, 1, record.HeaderCells(record.FullHeader)))
	for i, row := range rows {
		require.NoError(t, tab.WriteRow(ctx, 2+i, 1, row))
	}
}

// seedRules creates the rules table with a header and the given rule rows.
func seedRules(t *testing.T, store tablestore.Store, ruleRows ...[]any) {
	t.Helper()
	ctx := context.Background()

	tab, err := store.CreateTable(ctx, DefaultRulesTable)
	require.NoError(t, err)
	require.NoError(t, tab.WriteRow(ctx, 1, 1, record.HeaderCells(rules.ConfigHeader)))
	for i, row := range ruleRows {
		require.NoError(t, tab.WriteRow(ctx, 2+i, 1, row))
	}
}

func TestEngine_RouteRow_RoutesCompleteRow(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	e := New(store, Names{},
		WithClock(testutil.NewFixedClock(testWhen)),
		WithTokens(testutil.NewFixedTokens("attempt-1")),
	)

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, StatusRouted, out.Status)
	assert.Equal(t, 2, out.SourceRow)
	assert.Equal(t, "ORDERS", out.Destination, "no rules table falls back to the hard-coded destination")
	assert.Equal(t, 2, out.DestRow)
	assert.Equal(t, "P-100|WH1|ACME|12.50|2026-08-01|GASKET", out.ContentKey)
	assert.Equal(t, "attempt-1", out.AttemptID)

	// The fallback destination is the default destination, so it gets
	// the full header.
	dest, err := store.Table(ctx, "ORDERS")
	require.NoError(t, err)
	header, err := dest.ReadRow(ctx, 1, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, record.HeaderCells(record.FullHeader), header)

	row, err := dest.ReadRow(ctx, 2, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, completeRow("P-100"), row)

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{
		ContentKey:  "P-100|WH1|ACME|12.50|2026-08-01|GASKET",
		When:        "2026-08-25T09:00:00Z",
		Destination: "ORDERS",
		SourceRow:   2,
	}, entries[0])
}

func TestEngine_RouteRow_Idempotent(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	e := New(store, Names{})

	first, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRouted, first.Status)

	for i := 0; i < 3; i++ {
		again, err := e.RouteRow(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, StatusAlreadyRouted, again.Status)
	}

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "repeated invocations must not add ledger entries")

	dest, err := store.Table(ctx, "ORDERS")
	require.NoError(t, err)
	last, err := dest.LastRowIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, last, "repeated invocations must not append more records")
}

func TestEngine_RouteRow_IncompleteRowNotReady(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	// DESCR still missing.
	seedStaging(t, store, []any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", ""})

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusNotReady, out.Status)

	_, err = store.Table(ctx, "ORDERS")
	assert.ErrorIs(t, err, tablestore.ErrTableNotFound, "a not-ready attempt must not create the destination")

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A later edit completes the record; the next trigger routes it.
	staging, err := store.Table(ctx, DefaultStagingTable)
	require.NoError(t, err)
	require.NoError(t, staging.WriteRow(ctx, 2, 6, []any{"GASKET"}))

	out, err = e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRouted, out.Status)
}

func TestEngine_RouteRow_ExactMatchGetsCompactHeader(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, []any{"P-100", "WH1", " acme ", "12.50", "2026-08-01", "GASKET"})
	seedRules(t, store,
		[]any{"", "ORDERS", "TRUE"},
		[]any{"ACME", "ACME_TAB", ""},
	)

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRouted, out.Status)
	assert.Equal(t, "ACME_TAB", out.Destination)

	dest, err := store.Table(ctx, "ACME_TAB")
	require.NoError(t, err)

	header, err := dest.ReadRow(ctx, 1, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, record.HeaderCells(record.CompactHeader), header[:len(record.CompactHeader)])
	assert.Nil(t, header[4], "secondary header has four columns")
	assert.Nil(t, header[5])

	// The record body is still six columns wide.
	row, err := dest.ReadRow(ctx, 2, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, []any{"P-100", "WH1", " acme ", "12.50", "2026-08-01", "GASKET"}, row)
}

func TestEngine_RouteRow_SecondaryKeepsFullHeaderWhenPresent(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))
	seedRules(t, store, []any{"ACME", "ACME_TAB", ""})

	dest, err := store.CreateTable(ctx, "ACME_TAB")
	require.NoError(t, err)
	require.NoError(t, dest.WriteRow(ctx, 1, 1, record.HeaderCells(record.FullHeader)))

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "ACME_TAB", out.Destination)

	// The compact layout is satisfied by the full header's first four
	// columns, so nothing is rewritten.
	header, err := dest.ReadRow(ctx, 1, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, record.HeaderCells(record.FullHeader), header)
}

func TestEngine_RouteRow_MatchingHeaderLeftUntouched(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	lowercase := []any{"part", "loc", "custm", "price", "date", "descr"}
	dest, err := store.CreateTable(ctx, "ORDERS")
	require.NoError(t, err)
	require.NoError(t, dest.WriteRow(ctx, 1, 1, lowercase))
	require.NoError(t, dest.WriteRow(ctx, 2, 1, completeRow("OLD-1")))

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRouted, out.Status)
	assert.Equal(t, 3, out.DestRow)

	header, err := dest.ReadRow(ctx, 1, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, lowercase, header, "a case-insensitively matching header must be left untouched")
}

func TestEngine_RouteRow_MismatchedHeaderOverwritten(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	dest, err := store.CreateTable(ctx, "ORDERS")
	require.NoError(t, err)
	require.NoError(t, dest.WriteRow(ctx, 1, 1, []any{"WHO", "WHAT"}))

	e := New(store, Names{})

	_, err = e.RouteRow(ctx, 2)
	require.NoError(t, err)

	header, err := dest.ReadRow(ctx, 1, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, record.HeaderCells(record.FullHeader), header)
}

func TestEngine_RouteRow_DestinationLookupIsCaseInsensitive(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	_, err := store.CreateTable(ctx, "orders")
	require.NoError(t, err)

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "orders", out.Destination, "an existing table wins over creating the exact resolved name")

	names, err := store.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultStagingTable, "orders"}, names)

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders", entries[0].Destination)
}

func TestEngine_RouteRow_AppendsAfterExistingData(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	dest, err := store.CreateTable(ctx, "ORDERS")
	require.NoError(t, err)
	require.NoError(t, dest.WriteRow(ctx, 1, 1, record.HeaderCells(record.FullHeader)))
	for r := 2; r <= 5; r++ {
		require.NoError(t, dest.WriteRow(ctx, r, 1, completeRow(fmt.Sprintf("OLD-%d", r))))
	}
	require.NoError(t, dest.WriteRow(ctx, 6, 7, []any{"stray"}))

	e := New(store, Names{})

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, out.DestRow, "the record lands on the first row that is empty in the checked columns")

	row, err := dest.ReadRow(ctx, 6, 1, record.FieldCount)
	require.NoError(t, err)
	assert.Equal(t, completeRow("P-100"), row)
}

func TestEngine_RouteRow_LockTimeout(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	e := New(store, Names{}, WithLockTimeout(30*time.Millisecond))

	// Another holder keeps the document lock for the whole attempt.
	require.NoError(t, store.Acquire(ctx, time.Second))

	_, err := e.RouteRow(ctx, 2)
	assert.True(t, IsLockTimeout(err), "expected lock timeout, got %v", err)

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "an abandoned attempt leaves no state behind")

	// Once the lock frees up, the same row routes normally.
	require.NoError(t, store.Release())

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusRouted, out.Status)
}

func TestEngine_RouteRow_NoUsableDestination(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	e := New(store, Names{})
	// Strip the hard-coded fallback so resolution can come up empty.
	e.resolver = rules.NewResolver(store, DefaultRulesTable, "")

	_, err := e.RouteRow(ctx, 2)
	assert.True(t, IsResolveFailed(err), "expected resolve failure, got %v", err)

	names, err := store.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultStagingTable}, names, "a failed resolution must not create tables")

	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_RouteRow_BelowFirstDataRow(t *testing.T) {
	store := tablestore.NewMemoryStore()
	e := New(store, Names{})

	_, err := e.RouteRow(context.Background(), 1)
	assert.Error(t, err, "the header row is never routable")

	_, err = e.RouteRow(context.Background(), 0)
	assert.Error(t, err)
}

func TestEngine_RouteRow_EmitsNotification(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()
	seedStaging(t, store, completeRow("P-100"))

	q := NewQueue()
	e := New(store, Names{},
		WithClock(testutil.NewFixedClock(testWhen)),
		WithTokens(testutil.NewFixedTokens("attempt-1", "attempt-2")),
		WithNotifier(q),
	)

	out, err := e.RouteRow(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StatusRouted, out.Status)

	note, ok := q.TryNext()
	require.True(t, ok, "a routed record must be announced")
	assert.Equal(t, Notification{
		AttemptID:   "attempt-1",
		SourceRow:   2,
		ContentKey:  out.ContentKey,
		Destination: "ORDERS",
		DestRow:     2,
		When:        testWhen,
	}, note)

	// The idempotent no-op stays silent.
	_, err = e.RouteRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Len())
}

func TestEngine_RouteRow_ConcurrentPaste(t *testing.T) {
	store := tablestore.NewMemoryStore()
	ctx := context.Background()

	const rows = 50
	staged := make([][]any, rows)
	for i := range staged {
		staged[i] = completeRow(fmt.Sprintf("P-%03d", i))
	}
	seedStaging(t, store, staged...)

	e := New(store, Names{})

	// Two dispatcher invocations per row, all at once: one must route,
	// the other must see the ledger entry and back off.
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, rows*2)
	for i := 0; i < rows; i++ {
		sourceRow := 2 + i
		for c := 0; c < 2; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := e.RouteRow(ctx, sourceRow)
				if err != nil {
					t.Errorf("route row %d: %v", sourceRow, err)
					return
				}
				outcomes <- out
			}()
		}
	}
	wg.Wait()
	close(outcomes)

	routed, alreadyRouted := 0, 0
	for out := range outcomes {
		switch out.Status {
		case StatusRouted:
			routed++
		case StatusAlreadyRouted:
			alreadyRouted++
		default:
			t.Errorf("unexpected status %v for row %d", out.Status, out.SourceRow)
		}
	}
	assert.Equal(t, rows, routed)
	assert.Equal(t, rows, alreadyRouted)

	// Exactly one ledger entry per source row.
	entries, err := e.Ledger().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, rows)

	seenSource := make(map[int]bool, rows)
	for _, entry := range entries {
		assert.False(t, seenSource[entry.SourceRow], "source row %d routed twice", entry.SourceRow)
		seenSource[entry.SourceRow] = true
	}

	// Exactly one destination record per source row, none overwritten.
	dest, err := store.Table(ctx, "ORDERS")
	require.NoError(t, err)
	last, err := dest.LastRowIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1+rows, last)

	seenParts := make(map[string]bool, rows)
	for r := 2; r <= 1+rows; r++ {
		cells, err := dest.ReadRow(ctx, r, 1, record.FieldCount)
		require.NoError(t, err)
		part := record.CellString(cells[0])
		require.NotEmpty(t, part, "destination row %d is empty", r)
		assert.False(t, seenParts[part], "record %s written twice", part)
		seenParts[part] = true
	}
	assert.Len(t, seenParts, rows)
}
