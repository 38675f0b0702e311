package entitymap

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/where"
)

// Memory is an in-process Map ordered by identity. Predicate operations
// scan linearly.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	keys    []identity.ID
	entries map[identity.ID]*entity.Entity
}

var _ Map = (*Memory)(nil)

// NewMemory creates an empty in-process map.
func NewMemory() *Memory {
	return &Memory{entries: make(map[identity.ID]*entity.Entity)}
}

// MemoryFactory is a Factory producing in-process maps.
func MemoryFactory(context.Context, TableInfo) (Map, error) {
	return NewMemory(), nil
}

func (m *Memory) Put(ctx context.Context, e *entity.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := e.ID()
	if _, ok := m.entries[id]; !ok {
		i, _ := slices.BinarySearchFunc(m.keys, id, identity.Compare)
		m.keys = slices.Insert(m.keys, i, id)
	}
	m.entries[id] = e.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id identity.ID) (*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.entries[id]; ok {
		return e.Clone(), nil
	}
	return nil, nil
}

func (m *Memory) Remove(ctx context.Context, id identity.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id), nil
}

func (m *Memory) removeLocked(id identity.ID) bool {
	if _, ok := m.entries[id]; !ok {
		return false
	}
	delete(m.entries, id)
	if i, found := slices.BinarySearchFunc(m.keys, id, identity.Compare); found {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
	return true
}

func (m *Memory) Contains(ctx context.Context, id identity.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok, nil
}

// scanLocked returns the stored entities matching clause, in key order.
// Callers hold m.mu.
func (m *Memory) scanLocked(clause where.Clause) []*entity.Entity {
	out := make([]*entity.Entity, 0)
	for _, id := range m.keys {
		e := m.entries[id]
		if clause == nil || clause.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Select(ctx context.Context, clause where.Clause, order where.Comparator) ([]*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := m.scanLocked(clause)
	for i, e := range matched {
		matched[i] = e.Clone()
	}
	m.mu.RUnlock()

	if order != nil {
		slices.SortStableFunc(matched, order)
	}
	return matched, nil
}

func (m *Memory) Count(ctx context.Context, clause where.Clause) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if clause == nil {
		return len(m.keys), nil
	}
	n := 0
	for _, id := range m.keys {
		if clause.Match(m.entries[id]) {
			n++
		}
	}
	return n, nil
}

// RemoveWhere snapshots the matching keys before deleting any of them, so
// the key slice is never mutated while it is being scanned.
func (m *Memory) RemoveWhere(ctx context.Context, clause where.Clause) ([]identity.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	victims := make([]identity.ID, 0)
	for _, e := range m.scanLocked(clause) {
		victims = append(victims, e.ID())
	}
	for _, id := range victims {
		m.removeLocked(id)
	}
	return victims, nil
}

func (m *Memory) ToArray(ctx context.Context) ([]*entity.Entity, error) {
	return m.Select(ctx, nil, nil)
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	return m.Count(ctx, nil)
}
