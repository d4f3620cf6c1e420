package dispatch

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed event_schema.json
var eventSchemaJSON []byte

// EditEvent describes one rectangular edit applied to a document table:
// starting at (Row, Col), RowCount rows by ColCount columns were
// written. Counts default to 1.
//
// Producers are the external edit triggers: the webhook endpoint and
// the spool watcher both decode their payloads into this shape.
type EditEvent struct {
	Table    string `json:"table"`
	Row      int    `json:"row"`
	RowCount int    `json:"row_count,omitempty"`
	Col      int    `json:"col"`
	ColCount int    `json:"col_count,omitempty"`
}

var (
	eventSchemaOnce sync.Once
	eventSchema     *jsonschema.Schema
	eventSchemaErr  error
)

// compiledEventSchema compiles the embedded event schema once.
func compiledEventSchema() (*jsonschema.Schema, error) {
	eventSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(eventSchemaJSON))
		if err != nil {
			eventSchemaErr = fmt.Errorf("parse event schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("edit-event.json", doc); err != nil {
			eventSchemaErr = fmt.Errorf("add event schema: %w", err)
			return
		}
		eventSchema, eventSchemaErr = c.Compile("edit-event.json")
	})
	return eventSchema, eventSchemaErr
}

// DecodeEvent validates raw JSON against the edit-event schema and
// decodes it. Unknown fields, missing required fields, and out-of-range
// positions are all rejected before any decoding happens.
func DecodeEvent(data []byte) (EditEvent, error) {
	sch, err := compiledEventSchema()
	if err != nil {
		return EditEvent{}, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return EditEvent{}, fmt.Errorf("parse event: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return EditEvent{}, fmt.Errorf("invalid event: %w", err)
	}

	var ev EditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return EditEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.RowCount == 0 {
		ev.RowCount = 1
	}
	if ev.ColCount == 0 {
		ev.ColCount = 1
	}
	return ev, nil
}
