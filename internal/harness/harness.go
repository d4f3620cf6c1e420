package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
	"github.com/roach88/switchyard/internal/record"
	"github.com/roach88/switchyard/internal/rules"
	"github.com/roach88/switchyard/internal/tablestore"
	"github.com/roach88/switchyard/internal/testutil"
)

// scenarioEpoch is the pinned clock origin. The clock advances one
// second before each flow step, so ledger timestamps encode the step
// number that produced them.
var scenarioEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// sequencedTokens issues attempt-001, attempt-002, ... so attempt
// identifiers are stable across runs. Unlike testutil.FixedTokens it
// never runs out, which matters for sweeps over scenario-sized tables.
type sequencedTokens struct {
	mu sync.Mutex
	n  int
}

func (g *sequencedTokens) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("attempt-%03d", g.n)
}

// Harness executes one scenario against a fresh in-memory document.
type Harness struct {
	store      tablestore.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	clock      *testutil.FixedClock
}

// Run executes a scenario and returns its result.
//
// Each scenario gets a fresh in-memory store, a clock pinned to a fixed
// epoch, and sequenced attempt tokens, so two runs of the same scenario
// produce identical traces and identical final documents.
//
// Expect and assertion failures land in the result; an error return
// means the scenario could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st := tablestore.NewMemoryStore()
	defer st.Close()
	return runOn(st, scenario)
}

// runOn executes a scenario against the given store. Golden runs use it
// directly so the final document is still readable afterwards.
func runOn(st tablestore.Store, scenario *Scenario) (*Result, error) {
	clock := testutil.NewFixedClock(scenarioEpoch)
	eng := engine.New(st, engine.Names{},
		engine.WithClock(clock),
		engine.WithTokens(&sequencedTokens{}),
	)

	h := &Harness{
		store:      st,
		engine:     eng,
		dispatcher: dispatch.New(eng),
		clock:      clock,
	}

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(ctx, h.engine, scenario.Assertions, result.Steps) {
		result.AddError(msg)
	}
	return result, nil
}

// setup seeds the configuration table and writes the staging rows.
// Both run under the document lock, the same way the seed verb and an
// external writer would.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	if len(scenario.Rules) == 0 && scenario.Staging == nil {
		return nil
	}

	if err := h.store.Acquire(ctx, engine.DefaultLockTimeout); err != nil {
		return fmt.Errorf("acquire document lock for setup: %w", err)
	}
	defer h.store.Release()

	if len(scenario.Rules) > 0 {
		if err := rules.Seed(ctx, h.store, h.engine.Names().Rules, scenario.Rules); err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
	}

	if scenario.Staging != nil {
		staging, err := h.store.CreateTable(ctx, h.engine.Names().Staging)
		if err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}
		if err := staging.WriteRow(ctx, record.HeaderRow, 1, record.HeaderCells(record.FullHeader)); err != nil {
			return fmt.Errorf("write staging header: %w", err)
		}
		for i, row := range scenario.Staging {
			cells := make([]any, len(row))
			for j, cell := range row {
				cells[j] = cell
			}
			if err := staging.WriteRow(ctx, record.FirstDataRow+i, 1, cells); err != nil {
				return fmt.Errorf("write staging row %d: %w", record.FirstDataRow+i, err)
			}
		}
	}
	return nil
}

// executeFlow runs the flow steps in order. Step outcomes land in the
// trace; expect mismatches fail the result but never stop the flow.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		h.clock.Advance(time.Second)
		num := i + 1

		var (
			ev  TraceEvent
			err error
		)
		switch step.Do {
		case StepRoute:
			ev = h.runRoute(ctx, num, step)
		case StepSweep:
			ev, err = h.runSweep(ctx, num)
		case StepEdit:
			ev = h.runEdit(ctx, num, step)
		case StepSet:
			ev, err = h.runSet(ctx, num, step)
		default:
			err = fmt.Errorf("unknown action %q", step.Do)
		}
		if err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Do, err)
		}

		result.AddStep(ev)
		checkExpect(num, step, ev, result)
	}
	return nil
}

// runRoute executes one routing attempt. Engine errors become part of
// the trace so scenarios can expect them.
func (h *Harness) runRoute(ctx context.Context, num int, step Step) TraceEvent {
	ev := TraceEvent{Step: num, Do: StepRoute, Row: step.Row}

	out, err := h.engine.RouteRow(ctx, step.Row)
	if err != nil {
		ev.Error = errorCode(err)
		return ev
	}

	ev.Status = out.Status.String()
	ev.Destination = out.Destination
	ev.DestRow = out.DestRow
	ev.ContentKey = out.ContentKey
	ev.Attempt = out.AttemptID
	return ev
}

// runSweep routes every staged row in order.
func (h *Harness) runSweep(ctx context.Context, num int) (TraceEvent, error) {
	summary, err := h.dispatcher.Sweep(ctx)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("sweep: %w", err)
	}
	return TraceEvent{Step: num, Do: StepSweep, Summary: &summary}, nil
}

// runEdit dispatches one edit event. Unset bounds widen to a single row
// across the full record width, the shape most real triggers carry.
func (h *Harness) runEdit(ctx context.Context, num int, step Step) TraceEvent {
	event := dispatch.EditEvent{
		Table:    step.Table,
		Row:      step.Row,
		RowCount: step.RowCount,
		Col:      step.Col,
		ColCount: step.ColCount,
	}
	if event.Table == "" {
		event.Table = h.engine.Names().Staging
	}
	if event.RowCount == 0 {
		event.RowCount = 1
	}
	if event.Col == 0 {
		event.Col = 1
	}
	if event.ColCount == 0 {
		event.ColCount = record.FieldCount
	}

	summary := h.dispatcher.HandleEdit(ctx, event)
	return TraceEvent{Step: num, Do: StepEdit, Row: step.Row, Summary: &summary}
}

// runSet writes one cell under the document lock. The target table must
// already exist; set is for mutating a staged document, not building one.
func (h *Harness) runSet(ctx context.Context, num int, step Step) (TraceEvent, error) {
	name := step.Table
	if name == "" {
		name = h.engine.Names().Staging
	}

	tab, err := findTable(ctx, h.store, name)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("set %s[%d,%d]: %w", name, step.Row, step.Col, err)
	}

	if err := h.store.Acquire(ctx, engine.DefaultLockTimeout); err != nil {
		return TraceEvent{}, fmt.Errorf("acquire document lock for set: %w", err)
	}
	defer h.store.Release()

	if err := tab.WriteRow(ctx, step.Row, step.Col, []any{step.Value}); err != nil {
		return TraceEvent{}, fmt.Errorf("set %s[%d,%d]: %w", name, step.Row, step.Col, err)
	}

	return TraceEvent{
		Step:  num,
		Do:    StepSet,
		Table: tab.Name(),
		Row:   step.Row,
		Col:   step.Col,
		Value: step.Value,
	}, nil
}

// checkExpect matches a step's expect clause against its trace event.
func checkExpect(num int, step Step, ev TraceEvent, result *Result) {
	if step.Expect == nil {
		return
	}

	actual := map[string]any{}
	switch {
	case ev.Error != "":
		actual["error"] = ev.Error
	case ev.Summary != nil:
		actual["routed"] = ev.Summary.Routed
		actual["not_ready"] = ev.Summary.NotReady
		actual["already_routed"] = ev.Summary.AlreadyRouted
		actual["failed"] = ev.Summary.Failed
	default:
		actual["status"] = ev.Status
		actual["source_row"] = ev.Row
		actual["destination"] = ev.Destination
		actual["dest_row"] = ev.DestRow
		actual["content_key"] = ev.ContentKey
		actual["attempt"] = ev.Attempt
	}

	for key, want := range step.Expect {
		got, ok := actual[key]
		if !ok {
			result.AddError(fmt.Sprintf(
				"step %d (%s): expect key %q not present in outcome %v",
				num, step.Do, key, actual))
			continue
		}
		if !looseEqual(want, got) {
			result.AddError(fmt.Sprintf(
				"step %d (%s): expected %s=%v, got %v",
				num, step.Do, key, want, got))
		}
	}
}

// errorCode maps an engine error to its code for expect matching.
func errorCode(err error) string {
	var rerr *engine.RuntimeError
	if errors.As(err, &rerr) {
		return string(rerr.Code)
	}
	return err.Error()
}

// findTable resolves a table name case/whitespace-insensitively, the
// same way destinations are looked up during routing.
func findTable(ctx context.Context, st tablestore.Store, name string) (tablestore.Table, error) {
	names, err := st.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, existing := range names {
		if record.SameName(existing, name) {
			return st.Table(ctx, existing)
		}
	}
	return nil, tablestore.ErrTableNotFound
}

// looseEqual compares a YAML-decoded expected value with an outcome
// value. YAML hands back int and string; outcomes carry int, string,
// and bool. Everything else falls through to exact interface equality.
func looseEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}

	switch exp := expected.(type) {
	case int:
		switch act := actual.(type) {
		case int:
			return exp == act
		case int64:
			return int64(exp) == act
		case float64:
			return float64(exp) == act
		}
		return false
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case bool:
		act, ok := actual.(bool)
		return ok && exp == act
	}
	return expected == actual
}
