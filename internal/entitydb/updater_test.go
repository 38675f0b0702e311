package entitydb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/dberr"
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/testutil"
)

func TestUpdater_SaveOrUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		tbl := itemsTable(t, db)
		existing := item("name", "old")
		doomed := item("name", "doomed")
		insertAll(t, tbl, existing, doomed)

		existing.MustSet("name", "new")
		fresh := item("name", "fresh")
		u := NewUpdater(db, tbl).
			Add(existing, fresh).
			Delete(doomed.ID(), identity.None, identity.Int(404))
		assert.Equal(t, 5, u.Len())

		res, err := u.SaveOrUpdate(ctx)
		require.NoError(t, err)
		assert.Equal(t, Result{Inserted: 1, Updated: 1, Deleted: 1, Skipped: 2}, res)
		assert.Zero(t, u.Len())
		assert.False(t, db.InTransaction())

		assert.True(t, fresh.IsLive())
		got, err := tbl.Get(ctx, existing.ID())
		require.NoError(t, err)
		assert.Equal(t, "new", got.String("name", ""))
		ok, err := tbl.Contains(ctx, doomed.ID())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestUpdater_FirstFailureAborts(t *testing.T) {
	ctx := context.Background()
	db := sqliteDB(t)
	tbl := itemsTable(t, db)
	errStop := errors.New("stop")
	tbl.OnInsert(EntityTrigger{Before: func(_ context.Context, e *entity.Entity) error {
		if e.String("name", "") == "bad" {
			return errStop
		}
		return nil
	}})

	u := NewUpdater(db, tbl).Add(item("name", "ok"), item("name", "bad"), item("name", "never"))
	res, err := u.SaveOrUpdate(ctx)
	assert.True(t, dberr.IsTriggerVetoed(err))
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 3, u.Len(), "failed batches stay queued")

	// The relational transaction was rolled back.
	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdater_UpdateOfMissingFails(t *testing.T) {
	db := memoryDB(t)
	tbl := itemsTable(t, db)
	_, err := NewUpdater(db, tbl).Add(testutil.NewItem(3, "name", "ghost")).SaveOrUpdate(context.Background())
	assert.True(t, dberr.IsNotFound(err))
}
