package harness

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/tablestore"
)

// Snapshot captures a scenario execution for golden comparison: the
// step trace plus every table of the final document.
type Snapshot struct {
	Scenario string          `json:"scenario"`
	Steps    []TraceEvent    `json:"steps"`
	Tables   []TableSnapshot `json:"tables"`
}

// TableSnapshot is one table of the final document. Rows are rendered
// top to bottom with cells joined by " | " and trailing blanks dropped,
// the same rendering the inspect verb uses.
type TableSnapshot struct {
	Name string   `json:"name"`
	Rows []string `json:"rows"`
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files after an intentional behavior change, run:
//
//	go test ./internal/harness -update
//
// Expect and assertion failures surface through the returned result as
// usual; the golden file pins the byte-exact trace and final document
// on top of that.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	st := tablestore.NewMemoryStore()
	defer st.Close()

	result, err := runOn(st, scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := buildSnapshot(context.Background(), st, scenario.Name, result)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result, nil
}

// buildSnapshot renders the trace and the final document. Tables appear
// in creation order, so destination creation order is part of what a
// golden file pins down.
func buildSnapshot(ctx context.Context, st tablestore.Store, name string, result *Result) (*Snapshot, error) {
	snapshot := &Snapshot{
		Scenario: name,
		Steps:    result.Steps,
		Tables:   []TableSnapshot{},
	}

	names, err := st.TableNames(ctx)
	if err != nil {
		return nil, err
	}

	for _, tableName := range names {
		tab, err := st.Table(ctx, tableName)
		if err != nil {
			return nil, err
		}
		rendered, err := renderTable(ctx, tab)
		if err != nil {
			return nil, err
		}
		snapshot.Tables = append(snapshot.Tables, rendered)
	}
	return snapshot, nil
}

// renderTable reads every row up to the last and renders it as one
// pipe-joined line.
func renderTable(ctx context.Context, tab tablestore.Table) (TableSnapshot, error) {
	snapshot := TableSnapshot{Name: tab.Name(), Rows: []string{}}

	last, err := tab.LastRowIndex(ctx)
	if err != nil {
		return TableSnapshot{}, err
	}

	for row := 1; row <= last; row++ {
		cells, err := tab.ReadRow(ctx, row, 1, record.FieldCount)
		if err != nil {
			return TableSnapshot{}, err
		}
		snapshot.Rows = append(snapshot.Rows, renderRow(cells))
	}
	return snapshot, nil
}

// renderRow joins cell values with " | ", dropping trailing blanks so a
// four-column ledger row does not trail two empty cells.
func renderRow(cells []any) string {
	values := make([]string, len(cells))
	for i, cell := range cells {
		values[i] = record.CellString(cell)
	}
	end := len(values)
	for end > 0 && values[end-1] == "" {
		end--
	}
	return strings.Join(values[:end], " | ")
}
