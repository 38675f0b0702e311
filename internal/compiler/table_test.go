package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entitydb"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/value"
)

func compileOne(t *testing.T, src, path string) (*TableDecl, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileTable(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileTableBasic(t *testing.T) {
	decl, err := compileOne(t, `
		table: items: {
			entity: "Item"
			fields: {
				name:  string
				size:  int
				score: float
				flag:  bool
				data:  bytes
				legacy: "long"
			}
			streams: ["body"]
			cache: true
		}
	`, "table.items")
	require.NoError(t, err)

	assert.Equal(t, "items", decl.Name)
	assert.Equal(t, "id", decl.IdentityField)
	assert.Equal(t, value.KindInt, decl.IdentityKind)
	assert.Equal(t, GeneratorSequence, decl.Generator)
	assert.True(t, decl.Cache)
	assert.Zero(t, decl.CacheSize)

	assert.Equal(t, "Item", decl.Schema.Type())
	assert.Equal(t, []schema.Field{
		{Name: "name", Kind: value.KindText},
		{Name: "size", Kind: value.KindInt},
		{Name: "score", Kind: value.KindFloat},
		{Name: "flag", Kind: value.KindBool},
		{Name: "data", Kind: value.KindBytes},
		{Name: "legacy", Kind: value.KindInt},
	}, decl.Schema.Fields())
	assert.Equal(t, []string{"body"}, decl.Schema.Streams())
}

func TestCompileTableTextIdentity(t *testing.T) {
	decl, err := compileOne(t, `
		table: notes: {
			entity: "Note"
			identity: "slug"
			identity_kind: "text"
			cache: size: 12
			fields: title: string
		}
	`, "table.notes")
	require.NoError(t, err)

	assert.Equal(t, "slug", decl.IdentityField)
	assert.Equal(t, value.KindText, decl.IdentityKind)
	assert.Equal(t, GeneratorUUIDv7, decl.Generator)
	assert.IsType(t, identity.UUIDv7{}, decl.NewGenerator())
	assert.Equal(t, 12, decl.CacheSize)

	spec := decl.TableSpec()
	assert.Equal(t, "notes", spec.Name)
	assert.Equal(t, "slug", spec.Identity)
	assert.True(t, spec.Cache)
}

func TestCompileTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing entity", `table: t: { fields: a: string }`, "entity"},
		{"bad identity kind", `table: t: { entity: "T", identity_kind: "float" }`, "identity_kind"},
		{"unknown generator", `table: t: { entity: "T", generator: "ksuid" }`, "generator"},
		{"sequence on text", `table: t: { entity: "T", identity_kind: "text", generator: "sequence" }`, "generator"},
		{"uuid on int", `table: t: { entity: "T", generator: "uuidv7" }`, "generator"},
		{"bad cache", `table: t: { entity: "T", cache: "yes" }`, "cache"},
		{"zero cache size", `table: t: { entity: "T", cache: size: 0 }`, "cache.size"},
		{"unsupported type", `table: t: { entity: "T", fields: tags: [...string] }`, "type"},
		{"unknown type name", `table: t: { entity: "T", fields: price: "decimal" }`, "type"},
		{"duplicate stream", `table: t: { entity: "T", fields: body: string, streams: ["body"] }`, "fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileOne(t, tt.src, "table.t")
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileTableNonExistentPath(t *testing.T) {
	_, err := compileOne(t, `table: {}`, "table.missing")
	require.Error(t, err)
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "entity", Message: "entity is required"}
	assert.Equal(t, "entity: entity is required", err.Error())
}

func TestCompileSource_PositionsAndOrder(t *testing.T) {
	decls, err := CompileSource("schemas.cue", `
table: zeta: { entity: "Z" }
table: alpha: { entity: "A", fields: n: int }
`)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "alpha", decls[0].Name)
	assert.Equal(t, "zeta", decls[1].Name)

	_, err = CompileSource("broken.cue", "table: x: {")
	require.Error(t, err)

	_, err = CompileSource("empty.cue", `other: 1`)
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items.cue"), []byte(`package schemas

table: items: {
	entity: "Item"
	fields: name: string
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.cue"), []byte(`package schemas

table: notes: {
	entity: "Note"
	identity_kind: "text"
}
`), 0o644))

	decls, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "items", decls[0].Name)
	assert.Equal(t, "notes", decls[1].Name)

	// Compiled declarations create working tables.
	db := entitydb.Open(entitydb.Options{})
	for _, d := range decls {
		_, err := db.CreateTable(context.Background(), d.TableSpec())
		require.NoError(t, err)
	}
	assert.Len(t, db.Tables(), 2)
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")
}
