// Package entitymap defines the storage contract behind one table and
// provides the in-process backend.
//
// A Map owns the canonical copy of every entity it stores. Put stores a
// clone and every read returns clones, so callers never alias stored
// state. Clauses handed to a Map must already be bound; a nil clause
// selects every entity.
package entitymap

import (
	"context"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// Map is the CRUD and predicate-scan contract of a table backend.
type Map interface {
	// Put inserts or replaces the entity stored under e.ID().
	Put(ctx context.Context, e *entity.Entity) error

	// Get returns the entity stored under id, or nil when absent.
	Get(ctx context.Context, id identity.ID) (*entity.Entity, error)

	// Remove deletes the entity stored under id and reports whether it
	// existed.
	Remove(ctx context.Context, id identity.ID) (bool, error)

	// Contains reports whether an entity is stored under id.
	Contains(ctx context.Context, id identity.ID) (bool, error)

	// Select returns the entities matching clause in identity order, then
	// stably sorted by order when it is non-nil.
	Select(ctx context.Context, clause where.Clause, order where.Comparator) ([]*entity.Entity, error)

	// Count returns how many entities match clause.
	Count(ctx context.Context, clause where.Clause) (int, error)

	// RemoveWhere deletes every entity matching clause and returns their
	// identities in identity order.
	RemoveWhere(ctx context.Context, clause where.Clause) ([]identity.ID, error)

	// ToArray returns a snapshot of every stored entity in identity order.
	ToArray(ctx context.Context) ([]*entity.Entity, error)

	// Len returns the number of stored entities.
	Len(ctx context.Context) (int, error)
}

// TableInfo is what a backend needs to know about the table it serves.
type TableInfo struct {
	Name         string
	Schema       *schema.Schema
	Identity     string
	IdentityKind value.Kind
}

// Binder returns a clause binder for the table.
func (t TableInfo) Binder() where.SchemaBinder {
	return where.SchemaBinder{Table: t.Name, Schema: t.Schema, Identity: t.Identity, IdentityKind: t.IdentityKind}
}

// Factory creates the backend of one table.
type Factory func(ctx context.Context, t TableInfo) (Map, error)
