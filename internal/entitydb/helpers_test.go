package entitydb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/store"
	"github.com/roach88/entitydb/internal/streamstore"
	"github.com/roach88/entitydb/internal/testutil"
)

type backend struct {
	name string
	open func(t *testing.T) *Database
}

func memoryDB(t *testing.T) *Database {
	t.Helper()
	return Open(Options{})
}

func sqliteDB(t *testing.T) *Database {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := Open(Options{Manager: s, Maps: s.Factory(), Streams: streamstore.NewMem()})
	t.Cleanup(func() { db.Close() })
	return db
}

var backends = []backend{
	{"memory", memoryDB},
	{"sqlite", sqliteDB},
}

// forEachBackend runs fn once per backend as a subtest.
func forEachBackend(t *testing.T, fn func(t *testing.T, db *Database)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t))
		})
	}
}

func itemsTable(t *testing.T, db *Database, mods ...func(*TableSpec)) *Table {
	t.Helper()
	spec := TableSpec{Name: "items", Schema: testutil.ItemSchema}
	for _, mod := range mods {
		mod(&spec)
	}
	tbl, err := db.CreateTable(context.Background(), spec)
	require.NoError(t, err)
	return tbl
}

func withCache(s *TableSpec) { s.Cache = true }

// item builds a detached Item with the given name/value pairs.
func item(kv ...any) *entity.Entity {
	return testutil.NewItem(0, kv...)
}

func insertAll(t *testing.T, tbl *Table, es ...*entity.Entity) {
	t.Helper()
	for _, e := range es {
		require.NoError(t, tbl.Insert(context.Background(), e))
	}
}

func names(es []*entity.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.String("name", "")
	}
	return out
}

// entitymapWith returns an in-process map preloaded with es.
func entitymapWith(t *testing.T, es ...*entity.Entity) *entitymap.Memory {
	t.Helper()
	m := entitymap.NewMemory()
	for _, e := range es {
		e.Bind("items", nil)
		require.NoError(t, m.Put(context.Background(), e))
	}
	return m
}
