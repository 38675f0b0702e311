package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/entitydb/internal/entitydb"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Type, event.Op)
			if event.Table != "" {
				fmt.Fprintf(&buf, " %s", event.Table)
			}
			if event.ID != "" {
				fmt.Fprintf(&buf, " id=%s", event.ID)
			}
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

func eventMatches(event TraceEvent, a Assertion) bool {
	if event.Op != a.Op {
		return false
	}
	if a.Table != "" && event.Table != a.Table {
		return false
	}
	return a.ID == nil || event.ID == fmt.Sprint(a.ID)
}

// assertTraceContains checks that the trace holds at least one event with
// the op, and the table and id when given.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if eventMatches(event, a) {
			return nil
		}
	}
	expected := "op " + a.Op
	if a.Table != "" {
		expected += " on " + a.Table
	}
	if a.ID != nil {
		expected += fmt.Sprintf(" id=%v", a.ID)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops first appear in the specified order.
// Ops don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if slices.Contains(a.Ops, event.Op) && positions[event.Op] == 0 {
			if a.Table == "" || a.Table == event.Table {
				positions[event.Op] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the op appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if eventMatches(event, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("op %s appears %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("appears %d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertRowCount counts the rows of a table matching the filter.
func assertRowCount(ctx context.Context, db *entitydb.Database, a Assertion) error {
	t, ok := db.Table(a.Table)
	if !ok {
		return fmt.Errorf("row_count: unknown table %q", a.Table)
	}
	q, err := t.NewQuery(a.Where.Clause())
	if err != nil {
		return fmt.Errorf("row_count: %w", err)
	}
	n, err := t.QueryCount(ctx, q)
	if err != nil {
		return fmt.Errorf("row_count: %w", err)
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, a.Where),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertFinalState checks that at least one row of the table matches the
// filter and that every matching row carries the expected values.
func assertFinalState(ctx context.Context, db *entitydb.Database, a Assertion) error {
	t, ok := db.Table(a.Table)
	if !ok {
		return fmt.Errorf("final_state: unknown table %q", a.Table)
	}
	q, err := t.NewQuery(a.Where.Clause())
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	c, err := t.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	defer c.Close()

	rows := c.Entities()
	if len(rows) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("rows in %s where %s", a.Table, a.Where),
			Actual:   "no matching rows",
		}
	}
	for _, e := range rows {
		if msg := matchValues(row(t, e), a.Expect); msg != "" {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s has %v", a.Table, e.ID(), a.Expect),
				Actual:   msg,
			}
		}
	}
	return nil
}

// EvaluateAssertions runs all assertions and returns their failure
// messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, db *entitydb.Database) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertRowCount:
			err = assertRowCount(ctx, db, a)
		case AssertFinalState:
			err = assertFinalState(ctx, db, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
