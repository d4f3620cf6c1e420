package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "ORDERS", Canonical("  orders "))
	assert.Equal(t, "ACME_TAB", Canonical("Acme_Tab"))
	assert.Equal(t, "", Canonical("   "))
}

func TestCanonical_UnicodeNFC(t *testing.T) {
	// "é" composed vs decomposed normalize to the same canonical form.
	composed := "café"
	decomposed := "café"

	assert.Equal(t, Canonical(composed), Canonical(decomposed))
}

func TestSameName(t *testing.T) {
	assert.True(t, SameName("Orders", " ORDERS "))
	assert.True(t, SameName("acme_tab", "ACME_TAB"))
	assert.False(t, SameName("ORDERS", "RETURNS"))
}

func TestHeaderMatches(t *testing.T) {
	header := []any{"part", " Loc ", "CUSTM", "Price", "DATE", "descr"}
	assert.True(t, HeaderMatches(header, FullHeader))

	assert.False(t, HeaderMatches([]any{"PART", "LOC"}, FullHeader), "short row")
	assert.False(t, HeaderMatches([]any{"PART", "LOC", "CUSTM", "TOTAL"}, CompactHeader), "wrong column")
}

func TestHeaderMatches_IgnoresExtraCells(t *testing.T) {
	// A full header satisfies the compact layout; only its width is checked.
	header := []any{"PART", "LOC", "CUSTM", "PRICE", "DATE", "DESCR"}
	assert.True(t, HeaderMatches(header, CompactHeader))
}

func TestHeaderCells(t *testing.T) {
	cells := HeaderCells(LedgerHeader)
	assert.Equal(t, []any{"KEY", "WHEN", "DEST", "ROW"}, cells)
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", CellString(nil))
	assert.Equal(t, "x", CellString("x"))
	assert.Equal(t, "7", CellString(int64(7)))
	assert.Equal(t, "7", CellString(7))
	assert.Equal(t, "12.5", CellString(12.5))
	assert.Equal(t, "3", CellString(3.0))
	assert.Equal(t, "true", CellString(true))
}

func TestCellInt(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{"int", 7, 7, true},
		{"int64", int64(7), 7, true},
		{"float integral", 7.0, 7, true},
		{"float fractional", 7.5, 0, false},
		{"string", "7", 7, true},
		{"string padded", " 7 ", 7, true},
		{"string float", "7.0", 7, true},
		{"string junk", "seven", 0, false},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CellInt(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCellEmpty(t *testing.T) {
	assert.True(t, CellEmpty(nil))
	assert.True(t, CellEmpty(""))
	assert.True(t, CellEmpty("   "))
	assert.False(t, CellEmpty("x"))
	assert.False(t, CellEmpty(0))
}
