// Package testutil provides shared fixtures for table and backend tests.
package testutil

import (
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
	"github.com/roach88/entitydb/internal/where"
)

// ItemSchema covers every field kind plus one stream field.
var ItemSchema = schema.New("Item").
	Text("name").
	Int("size").
	Float("score").
	Bool("flag").
	Bytes("data").
	Stream("body").
	MustBuild()

// ItemInfo describes a table of ItemSchema entities keyed by "id".
func ItemInfo(table string) entitymap.TableInfo {
	return entitymap.TableInfo{
		Name:         table,
		Schema:       ItemSchema,
		Identity:     "id",
		IdentityKind: value.KindInt,
	}
}

// NewItem builds a detached Item with the given name/value pairs. A
// non-zero id is pre-assigned.
func NewItem(id int64, kv ...any) *entity.Entity {
	e := entity.New(ItemSchema)
	if id != 0 {
		if err := e.SetID(identity.Int(id)); err != nil {
			panic(err)
		}
	}
	for i := 0; i+1 < len(kv); i += 2 {
		e.MustSet(kv[i].(string), kv[i+1])
	}
	return e
}

// BoundItem is NewItem bound to a table, as a backend would store it.
func BoundItem(table string, id int64, kv ...any) *entity.Entity {
	e := NewItem(id, kv...)
	e.Bind(table, nil)
	return e
}

// Dataset returns items exercising nulls, empty strings, case, LIKE
// wildcards and mixed numeric values.
func Dataset(table string) []*entity.Entity {
	return []*entity.Entity{
		BoundItem(table, 1, "name", "apple", "size", 3, "score", 1.5, "flag", true, "data", []byte{1}),
		BoundItem(table, 2, "name", "Apple", "size", 10, "score", 2.0, "flag", false),
		BoundItem(table, 3, "name", "banana", "size", 7, "score", -0.5),
		BoundItem(table, 4, "name", "", "size", 0),
		BoundItem(table, 5),
		BoundItem(table, 6, "name", "100%_pure", "size", 100, "score", 100, "flag", true),
		BoundItem(table, 7, "name", "app", "flag", false, "data", []byte{}),
		BoundItem(table, 8, "name", "cherry pie", "size", -4, "score", 3.25),
	}
}

// NamedClause builds a fresh, unbound clause tree. Trees are built anew
// for every use because binding is single-shot.
type NamedClause struct {
	Name  string
	Build func() where.Clause
}

// Clauses returns a catalog of clause trees over ItemSchema.
func Clauses() []NamedClause {
	return []NamedClause{
		{"equals text", func() where.Clause { return where.Equals("name", "apple") }},
		{"equals int", func() where.Clause { return where.Equals("size", 10) }},
		{"equals float on int", func() where.Clause { return where.Equals("size", 7.0) }},
		{"equals bool", func() where.Clause { return where.Equals("flag", false) }},
		{"equals null", func() where.Clause { return where.Equals("name", nil) }},
		{"not equals text", func() where.Clause { return where.NotEquals("name", "apple") }},
		{"not equals null", func() where.Clause { return where.NotEquals("score", nil) }},
		{"not equals int", func() where.Clause { return where.NotEquals("size", 3) }},
		{"greater int", func() where.Clause { return where.Greater("size", 3) }},
		{"greater or equal float", func() where.Clause { return where.GreaterOrEqual("score", 2) }},
		{"less float", func() where.Clause { return where.Less("score", 1.5) }},
		{"less or equal int", func() where.Clause { return where.LessOrEqual("size", 0) }},
		{"greater text", func() where.Clause { return where.Greater("name", "apple") }},
		{"less text", func() where.Clause { return where.Less("name", "b") }},
		{"greater bool", func() where.Clause { return where.Greater("flag", false) }},
		{"like", func() where.Clause { return where.Like("name", "pp") }},
		{"like case", func() where.Clause { return where.Like("name", "App") }},
		{"like wildcard literal", func() where.Clause { return where.Like("name", "%_") }},
		{"like empty", func() where.Clause { return where.Like("name", "") }},
		{"left like", func() where.Clause { return where.LeftLike("name", "app") }},
		{"left like space", func() where.Clause { return where.LeftLike("name", "cherry ") }},
		{"is empty text", func() where.Clause { return where.IsEmpty("name") }},
		{"is empty int", func() where.Clause { return where.IsEmpty("size") }},
		{"is empty bytes", func() where.Clause { return where.IsEmpty("data") }},
		{"identity range", func() where.Clause { return where.GreaterOrEqual("id", 6) }},
		{"empty and", func() where.Clause { return where.And() }},
		{"empty or", func() where.Clause { return where.Or() }},
		{"and", func() where.Clause {
			return where.And(where.LeftLike("name", "a"), where.Greater("size", 2))
		}},
		{"or", func() where.Clause {
			return where.Or(where.Equals("flag", true), where.Less("size", 0))
		}},
		{"nested", func() where.Clause {
			return where.Or(
				where.And(where.NotEquals("name", nil), where.IsEmpty("name")),
				where.And(where.Like("name", "an"), where.Or(where.Greater("score", 0), where.Less("size", 8))),
			)
		}},
		{"and with empty or", func() where.Clause {
			return where.And(where.Equals("size", 3), where.Or())
		}},
		{"or with empty and", func() where.Clause {
			return where.Or(where.Equals("size", 99), where.And())
		}},
	}
}

// IDs returns the integer identities of es in order.
func IDs(es []*entity.Entity) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i], _ = e.ID().AsInt()
	}
	return out
}
