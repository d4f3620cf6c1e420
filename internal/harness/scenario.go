package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/rules"
)

// Scenario is one routing contract test: an initial document, a flow of
// steps against it, and assertions on what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Rules is seeded into the configuration table before the flow.
	// Omit it to run against an absent configuration.
	Rules []rules.Rule `yaml:"rules,omitempty"`

	// Staging holds the initial staging rows, in order, starting at the
	// first data row. Each row is at most six cells; missing trailing
	// cells stay empty. Omit the key entirely to run without a staging
	// table; an empty list still creates the table with its header.
	Staging [][]string `yaml:"staging,omitempty"`

	// Flow is the ordered list of steps to execute.
	Flow []Step `yaml:"flow"`

	// Assertions validate the ledger and final document state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one flow action. Do selects the action; the other fields
// apply per action and are validated on load.
type Step struct {
	// Do is the action: route, sweep, edit, or set.
	Do string `yaml:"do"`

	// Table overrides the target table for edit and set steps. Blank
	// means the staging table.
	Table string `yaml:"table,omitempty"`

	// Row is the source row for route, the first row for edit, or the
	// target row for set.
	Row int `yaml:"row,omitempty"`

	// RowCount is the number of rows an edit covers. Defaults to 1.
	RowCount int `yaml:"row_count,omitempty"`

	// Col and ColCount bound the columns an edit touches. They default
	// to the full record width. For set, Col is the target column.
	Col      int `yaml:"col,omitempty"`
	ColCount int `yaml:"col_count,omitempty"`

	// Value is the cell value a set step writes. An empty value blanks
	// the cell.
	Value string `yaml:"value,omitempty"`

	// Expect is a subset match against the step's outcome. Nil skips
	// validation for the step.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step action constants.
const (
	StepRoute = "route"
	StepSweep = "sweep"
	StepEdit  = "edit"
	StepSet   = "set"
)

// Assertion validates one fact about the ledger or the final document.
type Assertion struct {
	// Type selects the assertion; see the package documentation for the
	// full list.
	Type string `yaml:"type"`

	// Table names the target table (cell, table_exists, no_table,
	// header, destination_count).
	Table string `yaml:"table,omitempty"`

	// Row and Col address a cell (cell) or a source row (routed,
	// not_routed).
	Row int `yaml:"row,omitempty"`
	Col int `yaml:"col,omitempty"`

	// Value is the exact expected cell value (cell).
	Value string `yaml:"value,omitempty"`

	// Destination optionally binds a routed assertion to a destination.
	Destination string `yaml:"destination,omitempty"`

	// Layout names a header layout: full, compact, or ledger (header).
	Layout string `yaml:"layout,omitempty"`

	// Count is the expected entry or data-row count (ledger_count,
	// destination_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertLedgerCount      = "ledger_count"
	AssertRouted           = "routed"
	AssertNotRouted        = "not_routed"
	AssertCell             = "cell"
	AssertTableExists      = "table_exists"
	AssertNoTable          = "no_table"
	AssertHeader           = "header"
	AssertDestinationCount = "destination_count"
)

// Header layout names accepted by the header assertion.
const (
	LayoutFull    = "full"
	LayoutCompact = "compact"
	LayoutLedger  = "ledger"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected, so a typo like "assertion:" fails loudly instead of
// silently skipping checks.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and per-step shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, row := range s.Staging {
		if len(row) > record.FieldCount {
			return fmt.Errorf("staging[%d]: %d cells exceeds the record width %d",
				i, len(row), record.FieldCount)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single flow step based on its action.
func validateStep(index int, st *Step) error {
	switch st.Do {
	case StepRoute:
		if st.Row < record.FirstDataRow {
			return fmt.Errorf("flow[%d]: route row must be at least %d",
				index, record.FirstDataRow)
		}
	case StepSweep:
		if st.Row != 0 || st.Table != "" {
			return fmt.Errorf("flow[%d]: sweep takes no row or table", index)
		}
	case StepEdit:
		if st.Row < 1 {
			return fmt.Errorf("flow[%d]: edit row must be at least 1", index)
		}
		if st.RowCount < 0 || st.ColCount < 0 {
			return fmt.Errorf("flow[%d]: edit counts must be non-negative", index)
		}
	case StepSet:
		if st.Row < 1 {
			return fmt.Errorf("flow[%d]: set row must be at least 1", index)
		}
		if st.Col < 1 {
			return fmt.Errorf("flow[%d]: set col must be at least 1", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("flow[%d]: set has no outcome to expect", index)
		}
	case "":
		return fmt.Errorf("flow[%d]: do is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, st.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertLedgerCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s",
				index, a.Type)
		}
	case AssertRouted, AssertNotRouted:
		if a.Row < record.FirstDataRow {
			return fmt.Errorf("assertions[%d]: row must be at least %d for %s",
				index, record.FirstDataRow, a.Type)
		}
	case AssertCell:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
		if a.Row < 1 || a.Col < 1 {
			return fmt.Errorf("assertions[%d]: row and col are required for %s",
				index, a.Type)
		}
	case AssertTableExists, AssertNoTable:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
	case AssertHeader:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
		switch a.Layout {
		case LayoutFull, LayoutCompact, LayoutLedger:
		default:
			return fmt.Errorf("assertions[%d]: unknown layout %q", index, a.Layout)
		}
	case AssertDestinationCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s",
				index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
