package harness

import "github.com/roach88/entitydb/internal/value"

// Trace event types.
const (
	// EventStep records one executed scenario step.
	EventStep = "step"

	// EventChange records one entity change reported by a table observer.
	EventChange = "change"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	// Seq is the 1-based position in the trace.
	Seq int64 `json:"seq"`

	// Type is EventStep or EventChange.
	Type string `json:"type"`

	// Op is the step op, or the change kind ("inserted", "updated",
	// "deleted").
	Op string `json:"op"`

	// Table names the affected table. Empty for transaction steps.
	Table string `json:"table,omitempty"`

	// ID is the affected identity, rendered as text.
	ID string `json:"id,omitempty"`

	// Count is the count, or number of deleted entities, of a step.
	Count *int `json:"count,omitempty"`

	// Rows are query results, or the entity returned by get, including
	// their identity field.
	Rows []value.Object `json:"rows,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// canonical returns the event as a map for canonical JSON serialization.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"type": e.Type,
		"op":   e.Op,
	}
	if e.Table != "" {
		m["table"] = e.Table
	}
	if e.ID != "" {
		m["id"] = e.ID
	}
	if e.Count != nil {
		m["count"] = *e.Count
	}
	if e.Rows != nil {
		m["rows"] = e.Rows
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every step and change event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends an event, assigning its sequence number.
func (r *Result) record(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
