package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical normalizes a value for identity comparisons: Unicode NFC,
// surrounding whitespace removed, upper-cased. Table names, destination
// names, and content-key fields all compare through this form.
func Canonical(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFC.String(s)))
}

// SameName reports whether two table names are equal under Canonical.
func SameName(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// HeaderMatches reports whether the given header cells carry the expected
// layout, comparing cell by cell under Canonical. Only the layout's width is
// examined; a matching header is never rewritten by callers.
func HeaderMatches(cells []any, layout []string) bool {
	if len(cells) < len(layout) {
		return false
	}
	for i, want := range layout {
		if Canonical(CellString(cells[i])) != Canonical(want) {
			return false
		}
	}
	return true
}

// HeaderCells renders a layout as store cell values for a header write.
func HeaderCells(layout []string) []any {
	cells := make([]any, len(layout))
	for i, h := range layout {
		cells[i] = h
	}
	return cells
}
