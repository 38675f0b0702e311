package entitydb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_Reentrant(t *testing.T) {
	db := memoryDB(t)
	tbl := itemsTable(t, db)

	ctx := tbl.Lock(context.Background())
	assert.True(t, tbl.Locked(ctx))
	inner := tbl.Lock(ctx)
	assert.True(t, tbl.Locked(inner))

	// Mutations re-enter with the holding context.
	require.NoError(t, tbl.Insert(inner, item("name", "a")))

	tbl.Unlock(inner)
	assert.True(t, tbl.Locked(ctx))
	tbl.Unlock(ctx)
	assert.False(t, tbl.Locked(ctx))
	assert.False(t, tbl.Locked(context.Background()))
}

func TestLock_ExcludesOtherContexts(t *testing.T) {
	db := memoryDB(t)
	tbl := itemsTable(t, db)

	held := tbl.Lock(context.Background())
	var acquired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx := tbl.Lock(context.Background())
		acquired.Store(true)
		tbl.Unlock(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, acquired.Load())
	tbl.Unlock(held)
	wg.Wait()
	assert.True(t, acquired.Load())
}

func TestLock_UnlockWithoutHoldingPanics(t *testing.T) {
	db := memoryDB(t)
	tbl := itemsTable(t, db)
	assert.Panics(t, func() { tbl.Unlock(context.Background()) })
}

func TestLock_IsPerTable(t *testing.T) {
	db := memoryDB(t)
	a := itemsTable(t, db)
	b, err := db.CreateTable(context.Background(), TableSpec{Name: "other", Schema: otherSchema})
	require.NoError(t, err)

	ctx := a.Lock(context.Background())
	defer a.Unlock(ctx)
	assert.False(t, b.Locked(ctx))
	require.NoError(t, b.Insert(context.Background(), b.NewEntity()))
}

func TestConcurrentInserts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, db *Database) {
		tbl := itemsTable(t, db)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 10 {
					assert.NoError(t, tbl.Insert(context.Background(), item("size", i*10+j)))
				}
			}()
		}
		wg.Wait()
		n, err := tbl.Count(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 80, n)
	})
}
