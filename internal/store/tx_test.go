package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/schema"
	"github.com/roach88/entitydb/internal/testutil"
)

func entityFor(t *testing.T, s *schema.Schema, id identity.ID, kv ...any) *entity.Entity {
	t.Helper()
	e := entity.New(s)
	require.NoError(t, e.SetID(id))
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, e.Set(kv[i].(string), kv[i+1]))
	}
	return e
}

func TestTransaction_CommitWhenAllLevelsSucceed(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	m, err := s.EnsureTable(ctx, testutil.ItemInfo("items"))
	require.NoError(t, err)

	require.NoError(t, s.BeginTransaction(ctx))
	assert.True(t, s.InTransaction())
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 1)))

	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 2)))
	require.NoError(t, s.SetTransactionSuccessful())
	require.NoError(t, s.EndTransaction(ctx))
	assert.True(t, s.InTransaction(), "outer level still open")

	require.NoError(t, s.SetTransactionSuccessful())
	require.NoError(t, s.EndTransaction(ctx))
	assert.False(t, s.InTransaction())

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTransaction_InnerFailureRollsBackAll(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	m, err := s.EnsureTable(ctx, testutil.ItemInfo("items"))
	require.NoError(t, err)

	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 1)))
	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 2)))
	require.NoError(t, s.EndTransaction(ctx)) // not marked
	require.NoError(t, s.SetTransactionSuccessful())
	require.NoError(t, s.EndTransaction(ctx))

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTransaction_UnmarkedOuterRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	m, err := s.EnsureTable(ctx, testutil.ItemInfo("items"))
	require.NoError(t, err)

	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 1)))
	require.NoError(t, s.EndTransaction(ctx))

	ok, err := m.Contains(ctx, identity.Int(1))
	require.NoError(t, err)
	assert.False(t, ok)

	// The store is usable for a fresh transaction afterwards.
	require.NoError(t, s.BeginTransaction(ctx))
	require.NoError(t, m.Put(ctx, testutil.BoundItem("items", 1)))
	require.NoError(t, s.SetTransactionSuccessful())
	require.NoError(t, s.EndTransaction(ctx))
	ok, err = m.Contains(ctx, identity.Int(1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransaction_Misuse(t *testing.T) {
	s := createTestStore(t)
	assert.ErrorIs(t, s.EndTransaction(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, s.SetTransactionSuccessful(), ErrNoTransaction)
}

func TestVersion(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, s.SetVersion(ctx, 7))
	v, err = s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestReadOnly_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, ReadOnly())
	assert.True(t, s.ReadOnly())

	m, err := s.EnsureTable(ctx, testutil.ItemInfo("items"))
	require.NoError(t, err)
	assert.Error(t, m.Put(ctx, testutil.BoundItem("items", 1)))
}
