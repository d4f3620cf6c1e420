// Package record defines the staged source record, its content identity,
// and the fixed header layouts shared with the external table store.
//
// Rows and columns are 1-based everywhere in this codebase; row 1 is the
// header row, so the first data row is 2.
package record

import "strings"

// HeaderRow is the header row of every table; data rows start at
// FirstDataRow.
const (
	HeaderRow    = 1
	FirstDataRow = 2
)

// Column positions of the six staging fields.
const (
	ColPartID = iota + 1
	ColLocation
	ColCustomerCode
	ColPrice
	ColDate
	ColDescription
)

// FieldCount is the width of the staging layout and of every record body.
const FieldCount = 6

// keySeparator joins canonicalized fields into a content key.
const keySeparator = "|"

// FullHeader is the six-column layout of the staging table and of the
// primary/default destination.
var FullHeader = []string{"PART", "LOC", "CUSTM", "PRICE", "DATE", "DESCR"}

// CompactHeader is the four-column layout of secondary destinations. The
// record body still occupies six columns beneath it.
var CompactHeader = []string{"PART", "LOC", "CUSTM", "PRICE"}

// LedgerHeader is the routing-ledger layout.
var LedgerHeader = []string{"KEY", "WHEN", "DEST", "ROW"}

// SourceRecord is one staged row.
type SourceRecord struct {
	PartID       string
	Location     string
	CustomerCode string
	Price        string
	Date         string
	Description  string
}

// FromRow builds a SourceRecord from the first six cells of a staging row.
// Missing trailing cells read as empty fields.
func FromRow(cells []any) SourceRecord {
	field := func(col int) string {
		if col-1 >= len(cells) {
			return ""
		}
		return CellString(cells[col-1])
	}
	return SourceRecord{
		PartID:       field(ColPartID),
		Location:     field(ColLocation),
		CustomerCode: field(ColCustomerCode),
		Price:        field(ColPrice),
		Date:         field(ColDate),
		Description:  field(ColDescription),
	}
}

// Fields returns the six fields in column order.
func (r SourceRecord) Fields() [FieldCount]string {
	return [FieldCount]string{
		r.PartID, r.Location, r.CustomerCode, r.Price, r.Date, r.Description,
	}
}

// Complete reports whether every field is non-empty after trimming.
// Incomplete records are not eligible for routing.
func (r SourceRecord) Complete() bool {
	for _, f := range r.Fields() {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// ContentKey derives the record's content identity: each field canonicalized
// and joined with a fixed separator. Distinct source rows may share a key;
// the ledger never merges them.
func (r SourceRecord) ContentKey() string {
	fields := r.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, Canonical(f))
	}
	return strings.Join(parts, keySeparator)
}

// Cells returns the record body as store cell values, in column order.
func (r SourceRecord) Cells() []any {
	fields := r.Fields()
	cells := make([]any, len(fields))
	for i, f := range fields {
		cells[i] = f
	}
	return cells
}
