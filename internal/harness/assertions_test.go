package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
	"github.com/roach88/switchyard/internal/testutil"
)

// routedDocument builds a document with one staged row routed to the
// fallback destination, the smallest state every assertion type can be
// exercised against.
func routedDocument(t *testing.T) (*engine.Engine, []TraceEvent) {
	t.Helper()

	st := tablestore.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, engine.Names{},
		engine.WithClock(testutil.NewFixedClock(scenarioEpoch)),
		engine.WithTokens(&sequencedTokens{}),
	)

	ctx := context.Background()
	staging, err := st.CreateTable(ctx, "INTAKE")
	require.NoError(t, err)
	require.NoError(t, staging.WriteRow(ctx, 1, 1, record.HeaderCells(record.FullHeader)))
	require.NoError(t, staging.WriteRow(ctx, 2, 1,
		[]any{"P-100", "WH1", "ACME", "12.50", "2026-08-01", "GASKET"}))

	out, err := eng.RouteRow(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, engine.StatusRouted, out.Status)

	steps := []TraceEvent{{
		Step: 1, Do: StepRoute, Row: 2,
		Status: "routed", Destination: out.Destination,
	}}
	return eng, steps
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantFail  string
	}{
		{"ledger count match", Assertion{Type: AssertLedgerCount, Count: 1}, ""},
		{"ledger count mismatch", Assertion{Type: AssertLedgerCount, Count: 2},
			"Expected: 2 ledger entries"},
		{"routed", Assertion{Type: AssertRouted, Row: 2}, ""},
		{"routed with destination", Assertion{Type: AssertRouted, Row: 2, Destination: "orders "}, ""},
		{"routed to wrong destination", Assertion{Type: AssertRouted, Row: 2, Destination: "OTHER"},
			"row 2 routed to OTHER"},
		{"routed row absent", Assertion{Type: AssertRouted, Row: 3},
			"row 3 in the ledger"},
		{"not routed", Assertion{Type: AssertNotRouted, Row: 3}, ""},
		{"not routed but present", Assertion{Type: AssertNotRouted, Row: 2},
			"row 2 absent from the ledger"},
		{"cell match", Assertion{Type: AssertCell, Table: "ORDERS", Row: 2, Col: 1, Value: "P-100"}, ""},
		{"cell mismatch", Assertion{Type: AssertCell, Table: "ORDERS", Row: 2, Col: 1, Value: "P-999"},
			`"P-100"`},
		{"cell table missing", Assertion{Type: AssertCell, Table: "GHOST", Row: 2, Col: 1, Value: "x"},
			"table GHOST not found"},
		{"table exists case-insensitive", Assertion{Type: AssertTableExists, Table: "orders"}, ""},
		{"table exists missing", Assertion{Type: AssertTableExists, Table: "GHOST"},
			"table GHOST present"},
		{"no table", Assertion{Type: AssertNoTable, Table: "GHOST"}, ""},
		{"no table but present", Assertion{Type: AssertNoTable, Table: "ORDERS"},
			"table ORDERS absent"},
		{"header full", Assertion{Type: AssertHeader, Table: "ORDERS", Layout: LayoutFull}, ""},
		{"header wrong layout", Assertion{Type: AssertHeader, Table: "ORDERS", Layout: LayoutLedger},
			"ledger header"},
		{"header table missing", Assertion{Type: AssertHeader, Table: "GHOST", Layout: LayoutFull},
			"table GHOST not found"},
		{"destination count match", Assertion{Type: AssertDestinationCount, Table: "ORDERS", Count: 1}, ""},
		{"destination count mismatch", Assertion{Type: AssertDestinationCount, Table: "ORDERS", Count: 3},
			"1 data rows"},
	}

	eng, steps := routedDocument(t)
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(ctx, eng, []Assertion{tt.assertion}, steps)
			if tt.wantFail == "" {
				assert.Empty(t, failures)
				return
			}
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], tt.wantFail)
		})
	}
}

func TestEvaluateAssertions_LedgerAbsent(t *testing.T) {
	st := tablestore.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	eng := engine.New(st, engine.Names{})

	ctx := context.Background()
	failures := EvaluateAssertions(ctx, eng, []Assertion{
		{Type: AssertLedgerCount, Count: 0},
		{Type: AssertNotRouted, Row: 2},
	}, nil)
	assert.Empty(t, failures, "a document without a ledger has zero entries")

	failures = EvaluateAssertions(ctx, eng, []Assertion{
		{Type: AssertLedgerCount, Count: 1},
	}, nil)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "empty ledger")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertCell,
		Expected: `ORDERS[2,4] = "8.40"`,
		Actual:   `ORDERS[2,4] = ""`,
		Steps: []TraceEvent{
			{Step: 1, Do: StepRoute, Row: 2, Status: "routed", Destination: "ORDERS"},
			{Step: 2, Do: StepSet, Table: "INTAKE", Row: 2, Col: 4, Value: "8.40"},
			{Step: 3, Do: StepSweep, Summary: &dispatch.Summary{AlreadyRouted: 1}},
			{Step: 4, Do: StepRoute, Row: 5, Error: "LOCK_TIMEOUT"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: cell")
	assert.Contains(t, msg, `Expected: ORDERS[2,4] = "8.40"`)
	assert.Contains(t, msg, `Actual: ORDERS[2,4] = ""`)
	assert.Contains(t, msg, "[1] route row=2 status=routed destination=ORDERS")
	assert.Contains(t, msg, `[2] set INTAKE[2,4]="8.40"`)
	assert.Contains(t, msg, "[3] sweep routed=0 not_ready=0 already_routed=1 failed=0")
	assert.Contains(t, msg, "[4] route row=5 error=LOCK_TIMEOUT")
}
