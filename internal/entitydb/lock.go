package entitydb

import (
	"context"
	"sync"
)

type lockKey struct{ t *Table }

type lockHolder struct{}

// tableLock is a mutex whose holder is identified by a context value
// rather than a goroutine.
type tableLock struct {
	mu sync.Mutex

	state  sync.Mutex // guards owner and depth
	owner  *lockHolder
	depth  int
	holder lockKey
}

func (l *tableLock) lock(ctx context.Context) context.Context {
	h, _ := ctx.Value(l.holder).(*lockHolder)

	l.state.Lock()
	if h != nil && h == l.owner {
		l.depth++
		l.state.Unlock()
		return ctx
	}
	l.state.Unlock()

	l.mu.Lock()
	h = &lockHolder{}
	l.state.Lock()
	l.owner = h
	l.depth = 1
	l.state.Unlock()
	return context.WithValue(ctx, l.holder, h)
}

func (l *tableLock) unlock(ctx context.Context) {
	h, _ := ctx.Value(l.holder).(*lockHolder)

	l.state.Lock()
	if h == nil || h != l.owner {
		l.state.Unlock()
		panic("entitydb: unlock of table lock not held by this context")
	}
	l.depth--
	release := l.depth == 0
	if release {
		l.owner = nil
	}
	l.state.Unlock()

	if release {
		l.mu.Unlock()
	}
}

func (l *tableLock) held(ctx context.Context) bool {
	h, _ := ctx.Value(l.holder).(*lockHolder)
	l.state.Lock()
	defer l.state.Unlock()
	return h != nil && h == l.owner
}

// Lock acquires the table lock and returns the context that holds it.
// Locking again with the returned context, or one derived from it, nests
// instead of blocking. Every Lock must be paired with Unlock on the same
// context.
func (t *Table) Lock(ctx context.Context) context.Context {
	return t.lock.lock(ctx)
}

// Unlock releases one level of the table lock. It panics when ctx does
// not hold the lock.
func (t *Table) Unlock(ctx context.Context) {
	t.lock.unlock(ctx)
}

// Locked reports whether ctx holds the table lock.
func (t *Table) Locked(ctx context.Context) bool {
	return t.lock.held(ctx)
}
