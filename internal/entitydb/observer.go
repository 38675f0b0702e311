package entitydb

import (
	"context"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/where"
)

// ChangeKind says what happened to an entity.
type ChangeKind int

const (
	Inserted ChangeKind = iota + 1
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change describes one entity change delivered to entity observers.
// Entity is the new state for inserts and updates and the removed state
// for deletes. It is a copy owned by the observer.
type Change struct {
	Table  string
	Kind   ChangeKind
	ID     identity.ID
	Entity *entity.Entity
}

// SetObserver is told that the entity set of a table changed and any
// result over it should be reloaded.
type SetObserver func(ctx context.Context, table string)

// EntityObserver is told about one changed entity.
type EntityObserver func(ctx context.Context, c Change)

type entityObserver struct {
	fn      EntityObserver
	matcher where.Clause
}

// wants reports whether a change is in scope for the observer: either
// side of the change matches.
func (o entityObserver) wants(before, after *entity.Entity) bool {
	if o.matcher == nil {
		return true
	}
	return (before != nil && o.matcher.Match(before)) || (after != nil && o.matcher.Match(after))
}

type observerSet struct {
	sets     hooks[SetObserver]
	entities hooks[entityObserver]
	cursors  hooks[*Cursor]
}

// ObserveSet registers an observer fired on inserts, deletes and bulk
// deletes. The returned function removes it.
func (t *Table) ObserveSet(fn SetObserver) (cancel func()) {
	return register(t, &t.observers.sets, fn)
}

// ObserveEntities registers an observer fired for every changed entity.
// A non-nil matcher scopes it to changes where the entity matched before
// or matches after; an unbound matcher is bound to the table and one
// bound to another table is rejected.
func (t *Table) ObserveEntities(fn EntityObserver, matcher where.Clause) (cancel func(), err error) {
	if matcher != nil {
		if err := t.bind(matcher); err != nil {
			return nil, err
		}
	}
	return register(t, &t.observers.entities, entityObserver{fn: fn, matcher: matcher}), nil
}

func (t *Table) notifySet(ctx context.Context) {
	for _, fn := range snapshot(t, &t.observers.sets) {
		fn(ctx, t.name)
	}
}

func (t *Table) notifyEntity(ctx context.Context, kind ChangeKind, id identity.ID, before, after *entity.Entity) {
	subject := after
	if kind == Deleted {
		subject = before
	}
	for _, o := range snapshot(t, &t.observers.entities) {
		if !o.wants(before, after) {
			continue
		}
		var e *entity.Entity
		if subject != nil {
			e = subject.Clone()
		}
		o.fn(ctx, Change{Table: t.name, Kind: kind, ID: id, Entity: e})
	}
}

func (t *Table) notifyCursors(ctx context.Context) {
	for _, c := range snapshot(t, &t.observers.cursors) {
		c.changed(ctx)
	}
}

func (t *Table) trackCursor(c *Cursor) func() {
	return register(t, &t.observers.cursors, c)
}

func (t *Table) closeCursors() {
	for _, c := range snapshot(t, &t.observers.cursors) {
		c.Close()
	}
}
