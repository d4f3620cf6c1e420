// Package rules implements destination resolution: the configuration rule
// table, the two-pass resolver, and the CUE rule-file loader used by rule
// seeding.
package rules

import (
	"strings"

	"github.com/roach88/switchyard/internal/record"
)

// defaultFlagLiteral marks a rule as the designated default. The comparison
// is case-insensitive.
const defaultFlagLiteral = "TRUE"

// ConfigHeader is the header row the seeder writes to the configuration
// table. Resolution itself never reads row 1.
var ConfigHeader = []string{"CODE", "DEST", "DEFAULT"}

// Rule is one row of the configuration table: a classification code, the
// destination it routes to, and the default flag.
type Rule struct {
	Code        string `json:"code"`
	Destination string `json:"destination"`
	Default     bool   `json:"default,omitempty"`
}

// FromRow parses one configuration row (code, destination, flag).
// Surrounding whitespace is dropped; the flag matches the literal "TRUE"
// case-insensitively.
func FromRow(cells []any) Rule {
	cell := func(i int) string {
		if i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(record.CellString(cells[i]))
	}
	return Rule{
		Code:        cell(0),
		Destination: cell(1),
		Default:     strings.EqualFold(cell(2), defaultFlagLiteral),
	}
}

// Cells renders a rule as configuration-table cell values.
func (r Rule) Cells() []any {
	flag := "FALSE"
	if r.Default {
		flag = defaultFlagLiteral
	}
	return []any{r.Code, r.Destination, flag}
}

// blank reports whether a parsed row carries no information at all.
// Blank rows in the middle of the configuration are skipped.
func (r Rule) blank() bool {
	return r.Code == "" && r.Destination == "" && !r.Default
}
