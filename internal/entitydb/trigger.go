package entitydb

import (
	"context"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/metrics"
)

// EntityTrigger hooks an insert or update. Before may veto the operation
// by returning an error; nothing is written when it does. Either hook may
// be nil.
type EntityTrigger struct {
	Before func(ctx context.Context, e *entity.Entity) error
	After  func(ctx context.Context, e *entity.Entity)
}

// DeleteTrigger hooks the deletion of one entity. e is the stored state
// being deleted.
type DeleteTrigger struct {
	Before func(ctx context.Context, id identity.ID, e *entity.Entity) error
	After  func(ctx context.Context, id identity.ID, e *entity.Entity)
}

// QueryTrigger hooks a predicate query. Before runs before the query
// executes, After once the cursor is produced.
type QueryTrigger struct {
	Before func(ctx context.Context, q *Query) error
	After  func(ctx context.Context, q *Query, c *Cursor)
}

// hooks is an ordered list of registered entries that supports removal
// through the cancel function returned by add.
type hooks[T any] struct {
	next    int
	entries []hookEntry[T]
}

type hookEntry[T any] struct {
	id int
	fn T
}

func (h *hooks[T]) add(fn T) int {
	h.next++
	h.entries = append(h.entries, hookEntry[T]{id: h.next, fn: fn})
	return h.next
}

func (h *hooks[T]) remove(id int) {
	for i, e := range h.entries {
		if e.id == id {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *hooks[T]) snapshot() []T {
	out := make([]T, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.fn
	}
	return out
}

type triggerSet struct {
	insert hooks[EntityTrigger]
	update hooks[EntityTrigger]
	delete hooks[DeleteTrigger]
	query  hooks[QueryTrigger]
}

// OnInsert registers an insert trigger. The returned function removes it.
func (t *Table) OnInsert(tr EntityTrigger) (cancel func()) {
	return register(t, &t.triggers.insert, tr)
}

// OnUpdate registers an update trigger. The returned function removes it.
func (t *Table) OnUpdate(tr EntityTrigger) (cancel func()) {
	return register(t, &t.triggers.update, tr)
}

// OnDelete registers a delete trigger. It fires for Delete and
// DeleteManyIndividually, not for DeleteMany.
func (t *Table) OnDelete(tr DeleteTrigger) (cancel func()) {
	return register(t, &t.triggers.delete, tr)
}

// OnQuery registers a query trigger. The returned function removes it.
func (t *Table) OnQuery(tr QueryTrigger) (cancel func()) {
	return register(t, &t.triggers.query, tr)
}

func register[T any](t *Table, h *hooks[T], fn T) func() {
	t.hookMu.Lock()
	id := h.add(fn)
	t.hookMu.Unlock()
	return func() {
		t.hookMu.Lock()
		h.remove(id)
		t.hookMu.Unlock()
	}
}

func snapshot[T any](t *Table, h *hooks[T]) []T {
	t.hookMu.Lock()
	defer t.hookMu.Unlock()
	return h.snapshot()
}

func (t *Table) veto(op string, err error) error {
	metrics.TriggerVetoesTotal.WithLabelValues(t.name, op).Inc()
	return dberr.Wrap(dberr.CodeTriggerVetoed, err, "%s vetoed", op).InTable(t.name)
}

func (t *Table) beforeEntity(ctx context.Context, op string, h *hooks[EntityTrigger], e *entity.Entity) error {
	for _, tr := range snapshot(t, h) {
		if tr.Before == nil {
			continue
		}
		if err := tr.Before(ctx, e); err != nil {
			return t.veto(op, err)
		}
	}
	return nil
}

func (t *Table) afterEntity(ctx context.Context, h *hooks[EntityTrigger], e *entity.Entity) {
	for _, tr := range snapshot(t, h) {
		if tr.After != nil {
			tr.After(ctx, e)
		}
	}
}

func (t *Table) beforeDelete(ctx context.Context, id identity.ID, e *entity.Entity) error {
	for _, tr := range snapshot(t, &t.triggers.delete) {
		if tr.Before == nil {
			continue
		}
		if err := tr.Before(ctx, id, e); err != nil {
			return t.veto(metrics.OpDelete, err)
		}
	}
	return nil
}

func (t *Table) afterDelete(ctx context.Context, id identity.ID, e *entity.Entity) {
	for _, tr := range snapshot(t, &t.triggers.delete) {
		if tr.After != nil {
			tr.After(ctx, id, e)
		}
	}
}

func (t *Table) beforeQuery(ctx context.Context, q *Query) error {
	for _, tr := range snapshot(t, &t.triggers.query) {
		if tr.Before == nil {
			continue
		}
		if err := tr.Before(ctx, q); err != nil {
			return t.veto(metrics.OpQuery, err)
		}
	}
	return nil
}

func (t *Table) afterQuery(ctx context.Context, q *Query, c *Cursor) {
	for _, tr := range snapshot(t, &t.triggers.query) {
		if tr.After != nil {
			tr.After(ctx, q, c)
		}
	}
}
