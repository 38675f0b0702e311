// Package entity implements the mutable record stored in a table.
//
// An Entity is created detached, with no identity and no table. A table
// binds it when inserting it, after which its identity is fixed. Backends
// keep the canonical copy of a live entity; callers always work on
// clones.
package entity

import (
	"errors"
	"maps"
	"unicode/utf8"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/streamstore"
	"github.com/roach88/entitydb/internal/value"
)

// ErrIdentityAssigned is returned when changing the identity of an entity
// that already has one.
var ErrIdentityAssigned = errors.New("entity identity already assigned")

// Entity is a typed record bound to at most one table and identity.
type Entity struct {
	schema  *schema.Schema
	table   string
	id      identity.ID
	values  map[string]value.Value
	streams map[string]*stream
	store   streamstore.Store
}

// New creates a detached entity of the given schema.
func New(s *schema.Schema) *Entity {
	return &Entity{
		schema:  s,
		values:  make(map[string]value.Value),
		streams: make(map[string]*stream),
	}
}

// Load builds a live entity from stored values. It is used by backends
// hydrating rows; unknown names and incompatible values are rejected.
func Load(s *schema.Schema, table string, id identity.ID, values value.Object) (*Entity, error) {
	e := New(s)
	e.table = table
	e.id = id
	for name, v := range values {
		if err := e.Set(name, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Schema returns the entity's schema.
func (e *Entity) Schema() *schema.Schema { return e.schema }

// Type returns the entity type name.
func (e *Entity) Type() string { return e.schema.Type() }

// Table returns the name of the table the entity is bound to, or "".
func (e *Entity) Table() string { return e.table }

// ID returns the entity's identity, or identity.None.
func (e *Entity) ID() identity.ID { return e.id }

// IsLive reports whether the entity is bound to a table with an identity.
func (e *Entity) IsLive() bool { return e.table != "" && !e.id.IsZero() }

// SetID pre-assigns an identity. Once assigned, an identity can only be
// set again to the same value.
func (e *Entity) SetID(id identity.ID) error {
	if !e.id.IsZero() && e.id != id {
		return ErrIdentityAssigned
	}
	e.id = id
	return nil
}

// Bind attaches the entity to a table and the stream store its stream
// fields persist to.
func (e *Entity) Bind(table string, store streamstore.Store) {
	e.table = table
	e.store = store
}

// Set stores a scalar field. v may be a value.Value or any native type
// value.FromAny accepts. Numeric values are coerced to the declared kind.
func (e *Entity) Set(name string, v any) error {
	f, ok := e.schema.Field(name)
	if !ok {
		return dberr.New(dberr.CodeSchema, "unknown field %q in %s", name, e.Type()).OnField(name)
	}
	val, err := value.FromAny(v)
	if err != nil {
		return dberr.Wrap(dberr.CodeSchema, err, "set %s", name).OnField(name)
	}
	val, err = value.Coerce(f.Kind, val)
	if err != nil {
		return dberr.Wrap(dberr.CodeSchema, err, "set %s", name).OnField(name)
	}
	if value.IsNull(val) {
		delete(e.values, name)
		return nil
	}
	e.values[name] = value.Clone(val)
	return nil
}

// MustSet is Set for fixtures; it panics on error and returns e.
func (e *Entity) MustSet(name string, v any) *Entity {
	if err := e.Set(name, v); err != nil {
		panic(err)
	}
	return e
}

// Get returns the stored value of a field, or Null.
func (e *Entity) Get(name string) value.Value {
	if v, ok := e.values[name]; ok {
		return v
	}
	return value.Null{}
}

// Values returns a copy of the stored scalar values. Null fields are
// omitted.
func (e *Entity) Values() value.Object {
	out := make(value.Object, len(e.values))
	for k, v := range e.values {
		out[k] = value.Clone(v)
	}
	return out
}

// Clone returns a deep copy of e, including pending stream payloads.
func (e *Entity) Clone() *Entity {
	c := &Entity{
		schema:  e.schema,
		table:   e.table,
		id:      e.id,
		values:  make(map[string]value.Value, len(e.values)),
		streams: make(map[string]*stream, len(e.streams)),
		store:   e.store,
	}
	for k, v := range e.values {
		c.values[k] = value.Clone(v)
	}
	for k, s := range e.streams {
		c.streams[k] = s.clone()
	}
	return c
}

// SameValues reports whether e and o carry the same identity and scalar
// values.
func (e *Entity) SameValues(o *Entity) bool {
	if e.id != o.id {
		return false
	}
	return maps.EqualFunc(e.values, o.values, value.Equal)
}

// String returns a text field, or def when absent or not text.
func (e *Entity) String(name, def string) string {
	if t, ok := e.values[name].(value.Text); ok {
		return string(t)
	}
	return def
}

// Int64 returns a numeric field as int64, or def.
func (e *Entity) Int64(name string, def int64) int64 {
	switch v := e.values[name].(type) {
	case value.Int:
		return int64(v)
	case value.Float:
		return int64(v)
	}
	return def
}

// Int returns a numeric field as int32, or def.
func (e *Entity) Int(name string, def int32) int32 {
	switch e.values[name].(type) {
	case value.Int, value.Float:
		return int32(e.Int64(name, 0))
	}
	return def
}

// Float64 returns a numeric field as float64, or def.
func (e *Entity) Float64(name string, def float64) float64 {
	switch v := e.values[name].(type) {
	case value.Float:
		return float64(v)
	case value.Int:
		return float64(v)
	}
	return def
}

// Float32 returns a numeric field as float32, or def.
func (e *Entity) Float32(name string, def float32) float32 {
	switch e.values[name].(type) {
	case value.Int, value.Float:
		return float32(e.Float64(name, 0))
	}
	return def
}

// Char returns an integer field or a single-character text field as a
// rune, or def.
func (e *Entity) Char(name string, def rune) rune {
	switch v := e.values[name].(type) {
	case value.Int:
		return rune(v)
	case value.Text:
		if r, size := utf8.DecodeRuneInString(string(v)); size > 0 && size == len(v) && r != utf8.RuneError {
			return r
		}
	}
	return def
}

// Byte returns an integer field truncated to a byte, or def.
func (e *Entity) Byte(name string, def byte) byte {
	if v, ok := e.values[name].(value.Int); ok {
		return byte(v)
	}
	return def
}

// Bool returns a boolean field, or def.
func (e *Entity) Bool(name string, def bool) bool {
	if v, ok := e.values[name].(value.Bool); ok {
		return bool(v)
	}
	return def
}

// Bytes returns a copy of a bytes field, or def.
func (e *Entity) Bytes(name string, def []byte) []byte {
	if v, ok := e.values[name].(value.Bytes); ok {
		return append([]byte(nil), v...)
	}
	return def
}
