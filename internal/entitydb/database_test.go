package entitydb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/testutil"
)

var otherSchema = schema.New("Other").Text("label").MustBuild()

func TestCreateTable_DuplicateNameOrType(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		_, err := db.CreateTable(ctx, TableSpec{Name: "X", Schema: testutil.ItemSchema})
		require.NoError(t, err)

		_, err = db.CreateTable(ctx, TableSpec{Name: "X", Schema: otherSchema})
		assert.True(t, dberr.IsSchema(err), "same name: %v", err)

		_, err = db.CreateTable(ctx, TableSpec{Name: "Y", Schema: testutil.ItemSchema})
		assert.True(t, dberr.IsSchema(err), "same entity type: %v", err)

		_, ok := db.Table("Y")
		assert.False(t, ok)
		assert.Len(t, db.Tables(), 1)
	})
}

func TestRegistryLookups(t *testing.T) {
	ctx := context.Background()
	db := memoryDB(t)
	items := itemsTable(t, db)
	other, err := db.CreateTable(ctx, TableSpec{Name: "others", Schema: otherSchema})
	require.NoError(t, err)

	got, ok := db.Table("items")
	require.True(t, ok)
	assert.Same(t, items, got)

	got, ok = db.TableFor("Other")
	require.True(t, ok)
	assert.Same(t, other, got)

	_, ok = db.TableFor("Nope")
	assert.False(t, ok)

	tables := db.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "items", tables[0].Name())
	assert.Equal(t, "others", tables[1].Name())
}

func TestTransaction_RollbackOnRelationalBackend(t *testing.T) {
	ctx := context.Background()
	db := sqliteDB(t)
	tbl := itemsTable(t, db, withCache)

	e := item("name", "committed")
	insertAll(t, tbl, e)

	require.NoError(t, db.BeginTransaction(ctx))
	assert.True(t, db.InTransaction())
	e.MustSet("name", "rolled back")
	require.NoError(t, tbl.Update(ctx, e))

	// The update is visible inside the transaction and lands in the cache.
	got, err := tbl.Get(ctx, e.ID())
	require.NoError(t, err)
	assert.Equal(t, "rolled back", got.String("name", ""))
	require.NoError(t, db.EndTransaction(ctx))
	assert.False(t, db.InTransaction())

	got, err = tbl.Get(ctx, e.ID())
	require.NoError(t, err)
	assert.Equal(t, "committed", got.String("name", ""))
}

func TestTransaction_NestedCommit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		tbl := itemsTable(t, db)

		require.NoError(t, db.BeginTransaction(ctx))
		insertAll(t, tbl, item("name", "outer"))
		require.NoError(t, db.BeginTransaction(ctx))
		insertAll(t, tbl, item("name", "inner"))
		require.NoError(t, db.SetTransactionSuccessful())
		require.NoError(t, db.EndTransaction(ctx))
		require.NoError(t, db.SetTransactionSuccessful())
		require.NoError(t, db.EndTransaction(ctx))

		n, err := tbl.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestTransaction_Misuse(t *testing.T) {
	db := memoryDB(t)
	assert.ErrorIs(t, db.SetTransactionSuccessful(), ErrNoTransaction)
	assert.ErrorIs(t, db.EndTransaction(context.Background()), ErrNoTransaction)
}

func TestRunInTransaction(t *testing.T) {
	ctx := context.Background()
	db := sqliteDB(t)
	tbl := itemsTable(t, db)

	errBoom := errors.New("boom")
	err := db.RunInTransaction(ctx, func(ctx context.Context) error {
		insertAll(t, tbl, item("name", "lost"))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = db.RunInTransaction(ctx, func(ctx context.Context) error {
		return tbl.Insert(ctx, testutil.NewItem(1, "name", "kept"))
	})
	require.NoError(t, err)
	ok, err := tbl.Contains(ctx, identity.Int(1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVersionPassThrough(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		v, err := db.Version(ctx)
		require.NoError(t, err)
		assert.Zero(t, v)

		require.NoError(t, db.SetVersion(ctx, 4))
		v, err = db.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, v)
		assert.False(t, db.ReadOnly())
	})
}

func TestClose_ClosesCursors(t *testing.T) {
	db := Open(Options{Manager: NewNopManager(true)})
	assert.True(t, db.ReadOnly())
	tbl := itemsTable(t, db)

	c, err := tbl.Query(context.Background(), tbl.MustQuery(nil))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.True(t, c.Closed())
}
