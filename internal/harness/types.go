package harness

import "github.com/roach88/switchyard/internal/dispatch"

// TraceEvent records one executed flow step and its outcome. Route
// steps carry the outcome fields; sweep and edit steps carry the
// summary counters; failed steps carry the error code.
type TraceEvent struct {
	Step        int               `json:"step"`
	Do          string            `json:"do"`
	Table       string            `json:"table,omitempty"`
	Row         int               `json:"row,omitempty"`
	Col         int               `json:"col,omitempty"`
	Value       string            `json:"value,omitempty"`
	Status      string            `json:"status,omitempty"`
	Destination string            `json:"destination,omitempty"`
	DestRow     int               `json:"dest_row,omitempty"`
	ContentKey  string            `json:"content_key,omitempty"`
	Attempt     string            `json:"attempt,omitempty"`
	Summary     *dispatch.Summary `json:"summary,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps contains one trace event per executed flow step, in order.
	Steps []TraceEvent `json:"steps"`

	// Errors lists expect and assertion failures. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Steps: []TraceEvent{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// AddStep appends one trace event.
func (r *Result) AddStep(ev TraceEvent) {
	r.Steps = append(r.Steps, ev)
}
