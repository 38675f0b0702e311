package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/entitydb/internal/compiler"
	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/store"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// Harness is the scenario execution engine.
type Harness struct {
	db      *entitydb.Database
	result  *Result
	logger  *slog.Logger
	cancels []func()
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh database for isolation: an in-memory
// entity map, or a private in-memory SQLite database for the sqlite
// backend.
//
// Execution flow:
// 1. Open the backend
// 2. Compile and validate the CUE table declarations, create the tables
// 3. Execute steps, recording step and change events
// 4. Evaluate assertions against the trace and the final state
//
// Step and assertion failures are reported in the Result. The error return
// is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	db, err := openDatabase(ctx, scenario.Backend)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	h := &Harness{
		db:     db,
		result: NewResult(),
		logger: slog.Default().With("scenario", scenario.Name),
	}
	defer h.stopObserving()

	if err := h.createTables(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	for i := range scenario.Steps {
		h.executeStep(ctx, i, &scenario.Steps[i])
	}
	for db.InTransaction() {
		h.result.AddError("transaction left open at end of scenario")
		if err := db.EndTransaction(ctx); err != nil {
			return nil, fmt.Errorf("failed to close transaction: %w", err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h.result, scenario.Assertions, db) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func openDatabase(ctx context.Context, backend string) (*entitydb.Database, error) {
	switch backend {
	case "", BackendMemory:
		return entitydb.Open(entitydb.Options{}), nil
	case BackendSQLite:
		st, err := store.OpenSQLite(ctx, ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		return entitydb.Open(entitydb.Options{Manager: st, Maps: st.Factory()}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// Declarations compiles the scenario's inline schema and spec files.
func (s *Scenario) Declarations() ([]compiler.TableDecl, error) {
	var decls []compiler.TableDecl
	if s.Schema != "" {
		d, err := compiler.CompileSource(s.Name+".cue", s.Schema)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		decls = append(decls, d...)
	}
	for _, path := range s.Specs {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}
		d, err := compiler.CompileSource(path, string(src))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		decls = append(decls, d...)
	}
	if verrs := compiler.Validate(decls); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, verr := range verrs {
			errs[i] = verr
		}
		return nil, errors.Join(errs...)
	}
	return decls, nil
}

func (h *Harness) createTables(ctx context.Context, scenario *Scenario) error {
	decls, err := scenario.Declarations()
	if err != nil {
		return err
	}
	for _, decl := range decls {
		t, err := h.db.CreateTable(ctx, decl.TableSpec())
		if err != nil {
			return err
		}
		cancel, err := t.ObserveEntities(h.recordChange, nil)
		if err != nil {
			return err
		}
		h.cancels = append(h.cancels, cancel)
	}
	return nil
}

func (h *Harness) recordChange(_ context.Context, c entitydb.Change) {
	h.result.record(TraceEvent{
		Type:  EventChange,
		Op:    c.Kind.String(),
		Table: c.Table,
		ID:    c.ID.String(),
	})
}

func (h *Harness) stopObserving() {
	for _, cancel := range h.cancels {
		cancel()
	}
}

// outcome is what a step produced, for trace recording and expectations.
type outcome struct {
	event  TraceEvent
	entity *entity.Entity // get only
	idName string
}

func (h *Harness) executeStep(ctx context.Context, index int, st *Step) {
	label := fmt.Sprintf("steps[%d] %s", index, st.Op)
	if st.Table != "" {
		label += " " + st.Table
	}

	out, err := h.execute(ctx, st)
	out.event.Type = EventStep
	out.event.Op = st.Op
	out.event.Table = st.Table
	if err != nil {
		out.event.Error = errorCode(err)
		h.logger.Debug("step failed", "step", label, "error", err)
	}
	h.result.record(out.event)

	for _, msg := range h.checkExpect(ctx, st.Expect, out, err) {
		h.result.AddError(label + ": " + msg)
	}
}

func (h *Harness) execute(ctx context.Context, st *Step) (outcome, error) {
	switch st.Op {
	case OpBegin:
		return outcome{}, h.db.BeginTransaction(ctx)
	case OpCommit:
		if err := h.db.SetTransactionSuccessful(); err != nil {
			return outcome{}, err
		}
		return outcome{}, h.db.EndTransaction(ctx)
	case OpRollback:
		return outcome{}, h.db.EndTransaction(ctx)
	}

	t, ok := h.db.Table(st.Table)
	if !ok {
		return outcome{}, dberr.New(dberr.CodeSchema, "unknown table %q", st.Table)
	}
	out := outcome{idName: t.IdentityField()}

	switch st.Op {
	case OpInsert:
		e := t.NewEntity()
		if st.ID != nil {
			id, err := parseID(t, st.ID)
			if err != nil {
				return out, err
			}
			if err := e.SetID(id); err != nil {
				return out, err
			}
		}
		if err := fill(e, st); err != nil {
			return out, err
		}
		err := t.Insert(ctx, e)
		if !e.ID().IsZero() {
			out.event.ID = e.ID().String()
		}
		return out, err

	case OpUpdate:
		id, err := parseID(t, st.ID)
		if err != nil {
			return out, err
		}
		out.event.ID = id.String()
		e, err := t.Get(ctx, id)
		if err != nil {
			return out, err
		}
		if e == nil {
			e = t.NewEntity()
			if err := e.SetID(id); err != nil {
				return out, err
			}
		}
		if err := fill(e, st); err != nil {
			return out, err
		}
		return out, t.Update(ctx, e)

	case OpGet:
		id, err := parseID(t, st.ID)
		if err != nil {
			return out, err
		}
		out.event.ID = id.String()
		e, err := t.Get(ctx, id)
		if err != nil {
			return out, err
		}
		out.event.Rows = []value.Object{}
		if e != nil {
			out.entity = e
			out.event.Rows = append(out.event.Rows, row(t, e))
		}
		return out, nil

	case OpDelete:
		id, err := parseID(t, st.ID)
		if err != nil {
			return out, err
		}
		out.event.ID = id.String()
		deleted, err := t.Delete(ctx, id)
		if err != nil {
			return out, err
		}
		n := 0
		if deleted {
			n = 1
		}
		out.event.Count = &n
		return out, nil
	}

	q, err := t.NewQuery(st.Where.Clause())
	if err != nil {
		return out, err
	}
	switch st.Op {
	case OpDeleteWhere:
		var n int
		if st.Individually {
			n, err = t.DeleteManyIndividually(ctx, q)
		} else {
			n, err = t.DeleteMany(ctx, q)
		}
		out.event.Count = &n
		return out, err

	case OpCount:
		n, err := t.QueryCount(ctx, q)
		if err != nil {
			return out, err
		}
		out.event.Count = &n
		return out, nil

	case OpQuery:
		if st.Order != "" {
			q = q.Sorted(parseOrder(st.Order))
		}
		c, err := t.Query(ctx, q)
		if err != nil {
			return out, err
		}
		defer c.Close()
		out.event.Rows = []value.Object{}
		for _, e := range c.Entities() {
			out.event.Rows = append(out.event.Rows, row(t, e))
		}
		n := len(out.event.Rows)
		out.event.Count = &n
		return out, nil
	}
	return out, fmt.Errorf("unknown op %q", st.Op)
}

func (h *Harness) checkExpect(ctx context.Context, exp *Expect, out outcome, err error) []string {
	if exp == nil {
		exp = &Expect{}
	}
	if exp.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected error %s, got success", exp.Error)}
		case errorCode(err) != exp.Error:
			return []string{fmt.Sprintf("expected error %s, got %v", exp.Error, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	ev := out.event
	if exp.ID != nil && fmt.Sprint(exp.ID) != ev.ID {
		msgs = append(msgs, fmt.Sprintf("expected id %v, got %q", exp.ID, ev.ID))
	}
	if exp.Count != nil {
		switch {
		case ev.Count == nil:
			msgs = append(msgs, "expected a count, step produced none")
		case *ev.Count != *exp.Count:
			msgs = append(msgs, fmt.Sprintf("expected count %d, got %d", *exp.Count, *ev.Count))
		}
	}
	if exp.IDs != nil {
		want := make([]string, len(exp.IDs))
		for i, id := range exp.IDs {
			want[i] = fmt.Sprint(id)
		}
		got := make([]string, len(ev.Rows))
		for i, r := range ev.Rows {
			got[i] = value.String(r[out.idName])
		}
		if strings.Join(want, ",") != strings.Join(got, ",") {
			msgs = append(msgs, fmt.Sprintf("expected ids [%s], got [%s]", strings.Join(want, ","), strings.Join(got, ",")))
		}
	}
	if exp.Found != nil {
		found := len(ev.Rows) == 1 || (ev.Count != nil && *ev.Count == 1)
		if found != *exp.Found {
			msgs = append(msgs, fmt.Sprintf("expected found=%t, got %t", *exp.Found, found))
		}
	}
	if len(exp.Values) > 0 {
		if len(ev.Rows) == 0 {
			msgs = append(msgs, "expected values, step returned no entity")
		} else if msg := matchValues(ev.Rows[0], exp.Values); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	for name, want := range exp.Streams {
		if out.entity == nil {
			msgs = append(msgs, fmt.Sprintf("expected stream %s, step returned no entity", name))
			continue
		}
		got, err := readStream(ctx, out.entity, name)
		switch {
		case err != nil:
			msgs = append(msgs, fmt.Sprintf("stream %s: %v", name, err))
		case got != want:
			msgs = append(msgs, fmt.Sprintf("stream %s: expected %q, got %q", name, want, got))
		}
	}
	return msgs
}

func fill(e *entity.Entity, st *Step) error {
	for name, v := range st.Values {
		if err := e.Set(name, v); err != nil {
			return err
		}
	}
	for name, payload := range st.Streams {
		if err := e.SetStreamBytes(name, []byte(payload)); err != nil {
			return err
		}
	}
	return nil
}

func readStream(ctx context.Context, e *entity.Entity, name string) (string, error) {
	rc, err := e.OpenStream(ctx, name)
	if err != nil {
		return "", err
	}
	if rc == nil {
		return "", nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return string(data), err
}

func parseID(t *entitydb.Table, v any) (identity.ID, error) {
	return t.ParseID(fmt.Sprint(v))
}

// parseOrder maps "field" to ascending and "-field" to descending order.
func parseOrder(order string) where.Comparator {
	if field, ok := strings.CutPrefix(order, "-"); ok {
		return where.Descending(field)
	}
	return where.Ascending(order)
}

// row renders an entity with its identity field for the trace.
func row(t *entitydb.Table, e *entity.Entity) value.Object {
	obj := e.Values()
	obj[t.IdentityField()] = e.ID().Value()
	return obj
}

// matchValues reports the first expected field whose value differs, or "".
// A nil expectation matches an absent or null field.
func matchValues(actual value.Object, expected map[string]any) string {
	for _, field := range sortedKeys(expected) {
		want, err := value.FromAny(expected[field])
		if err != nil {
			return fmt.Sprintf("field %s: %v", field, err)
		}
		got := value.Of(actual[field])
		if !value.Equal(want, got) {
			return fmt.Sprintf("field %s: expected %s, got %s", field, value.String(want), value.String(got))
		}
	}
	return ""
}

func errorCode(err error) string {
	if code := dberr.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
