package entitydb

import (
	"context"
	"sync"

	"github.com/roach88/entitydb/internal/entity"
)

// CursorObserver is told that the table behind a cursor changed. It
// typically calls Requery.
type CursorObserver func(ctx context.Context, c *Cursor)

// Cursor is a positioned view over the result of one query. The position
// starts before the first row, at -1, and ranges up to Count().
//
// A cursor stays registered with its table until Close and is told about
// every change to it through its observers. Its rows are only refreshed
// by Requery.
type Cursor struct {
	query *Query

	mu        sync.Mutex
	rows      []*entity.Entity
	pos       int
	closed    bool
	untrack   func()
	observers hooks[CursorObserver]
}

func newCursor(q *Query, rows []*entity.Entity) *Cursor {
	c := &Cursor{query: q, rows: rows, pos: -1}
	c.untrack = q.table.trackCursor(c)
	return c
}

// Query returns the query the cursor was produced by.
func (c *Cursor) Query() *Query { return c.query }

// Count returns the number of rows.
func (c *Cursor) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

// Position returns the current position.
func (c *Cursor) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// MoveToPosition moves to row p and reports whether it exists. Out of
// range positions clamp to before-first or after-last.
func (c *Cursor) MoveToPosition(p int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(p)
}

func (c *Cursor) moveLocked(p int) bool {
	switch {
	case p < 0:
		c.pos = -1
		return false
	case p >= len(c.rows):
		c.pos = len(c.rows)
		return false
	}
	c.pos = p
	return true
}

// MoveToFirst moves to the first row.
func (c *Cursor) MoveToFirst() bool { return c.MoveToPosition(0) }

// MoveToLast moves to the last row.
func (c *Cursor) MoveToLast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rows) == 0 {
		return c.moveLocked(len(c.rows))
	}
	return c.moveLocked(len(c.rows) - 1)
}

// MoveToNext advances one row.
func (c *Cursor) MoveToNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(c.pos + 1)
}

// MoveToPrevious steps back one row.
func (c *Cursor) MoveToPrevious() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(c.pos - 1)
}

// IsFirst reports whether the cursor is on the first row.
func (c *Cursor) IsFirst() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows) > 0 && c.pos == 0
}

// IsLast reports whether the cursor is on the last row.
func (c *Cursor) IsLast() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows) > 0 && c.pos == len(c.rows)-1
}

// HasNext reports whether MoveToNext would land on a row.
func (c *Cursor) HasNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos+1 < len(c.rows)
}

// Entity returns the row at the current position, or nil off the rows.
// The entity is the caller's copy; changes reach the table only through
// Update.
func (c *Cursor) Entity() *entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

// Entities returns every row.
func (c *Cursor) Entities() []*entity.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*entity.Entity(nil), c.rows...)
}

// Requery re-executes the query and moves before the first row. Query
// triggers do not fire.
func (c *Cursor) Requery(ctx context.Context) error {
	return c.RequeryNotify(ctx, false)
}

// RequeryNotify is Requery that also fires the cursor's observers when
// notify is set.
func (c *Cursor) RequeryNotify(ctx context.Context, notify bool) error {
	rows, err := c.query.table.selectRows(ctx, c.query)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.rows = rows
	c.pos = -1
	c.mu.Unlock()
	if notify {
		c.changed(ctx)
	}
	return nil
}

// RegisterObserver adds an observer fired whenever the table changes.
// The returned function removes it.
func (c *Cursor) RegisterObserver(fn CursorObserver) (cancel func()) {
	c.mu.Lock()
	id := c.observers.add(fn)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.observers.remove(id)
		c.mu.Unlock()
	}
}

func (c *Cursor) changed(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := c.observers.snapshot()
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, c)
	}
}

// Close detaches the cursor from its table and drops its rows. It is
// safe to call more than once.
func (c *Cursor) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.rows = nil
	c.pos = -1
	c.mu.Unlock()
	c.untrack()
}

// Closed reports whether Close was called.
func (c *Cursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
