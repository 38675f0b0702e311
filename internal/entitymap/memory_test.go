package entitymap_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/testutil"
	"github.com/roach88/entitydb/internal/where"
)

func TestMemory_Contract(t *testing.T) {
	testutil.RunMapContract(t, func(t *testing.T, table string) entitymap.Map {
		m, err := entitymap.MemoryFactory(context.Background(), testutil.ItemInfo(table))
		require.NoError(t, err)
		return m
	})
}

func TestMemory_RemoveWhereAll(t *testing.T) {
	ctx := context.Background()
	m := entitymap.NewMemory()
	testutil.Load(t, m, testutil.Dataset("items"))

	ids, err := m.RemoveWhere(ctx, testutil.Bind(t, where.And()))
	require.NoError(t, err)
	assert.Len(t, ids, 8)

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_ConcurrentPutAndRemoveWhere(t *testing.T) {
	ctx := context.Background()
	m := entitymap.NewMemory()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := int64(w*1000 + i + 1)
				assert.NoError(t, m.Put(ctx, testutil.BoundItem("items", id, "size", i)))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			_, err := m.RemoveWhere(ctx, testutil.Bind(t, where.Less("size", 10)))
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	_, err := m.RemoveWhere(ctx, testutil.Bind(t, where.Less("size", 10)))
	require.NoError(t, err)
	all, err := m.ToArray(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4*40)

	prev := identity.None
	for _, e := range all {
		assert.Equal(t, -1, identity.Compare(prev, e.ID()), "keys stay ordered")
		prev = e.ID()
	}
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := entitymap.NewMemory()
	assert.ErrorIs(t, m.Put(ctx, testutil.BoundItem("items", 1)), context.Canceled)
	_, err := m.Select(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
