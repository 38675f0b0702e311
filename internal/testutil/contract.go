package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/where"
)

// MapMaker creates an empty map for ItemInfo(table).
type MapMaker func(t *testing.T, table string) entitymap.Map

// Load puts every entity of es into m.
func Load(t *testing.T, m entitymap.Map, es []*entity.Entity) {
	t.Helper()
	for _, e := range es {
		require.NoError(t, m.Put(context.Background(), e))
	}
}

// Bind binds c against ItemInfo and returns it.
func Bind(t *testing.T, c where.Clause) where.Clause {
	t.Helper()
	require.NoError(t, c.Bind(ItemInfo("items").Binder()))
	return c
}

// ExpectedMatches returns, in identity order, the dataset identities a
// freshly built clause matches in memory.
func ExpectedMatches(t *testing.T, nc NamedClause, es []*entity.Entity) []int64 {
	t.Helper()
	c := Bind(t, nc.Build())
	out := make([]int64, 0)
	for _, e := range es {
		if c.Match(e) {
			n, _ := e.ID().AsInt()
			out = append(out, n)
		}
	}
	return out
}

// RunMapContract checks the behavior every entitymap.Map must share.
func RunMapContract(t *testing.T, mk MapMaker) {
	ctx := context.Background()

	t.Run("put get round trip", func(t *testing.T) {
		m := mk(t, "items")
		e := BoundItem("items", 1, "name", "a", "size", 2, "score", 0.5, "flag", true, "data", []byte("xy"))
		require.NoError(t, m.Put(ctx, e))

		got, err := m.Get(ctx, identity.Int(1))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, e.SameValues(got), "got %v", got.Values())
		assert.Equal(t, "items", got.Table())
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		m := mk(t, "items")
		got, err := m.Get(ctx, identity.Int(42))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("put replaces", func(t *testing.T) {
		m := mk(t, "items")
		require.NoError(t, m.Put(ctx, BoundItem("items", 1, "name", "a", "size", 1)))
		require.NoError(t, m.Put(ctx, BoundItem("items", 1, "name", "b")))

		got, err := m.Get(ctx, identity.Int(1))
		require.NoError(t, err)
		assert.Equal(t, "b", got.String("name", ""))
		assert.Equal(t, int64(-1), got.Int64("size", -1), "cleared field comes back null")

		n, err := m.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("stored copy is isolated", func(t *testing.T) {
		m := mk(t, "items")
		e := BoundItem("items", 1, "name", "a")
		require.NoError(t, m.Put(ctx, e))
		require.NoError(t, e.Set("name", "mutated"))

		got, err := m.Get(ctx, identity.Int(1))
		require.NoError(t, err)
		assert.Equal(t, "a", got.String("name", ""))
		require.NoError(t, got.Set("name", "again"))

		again, err := m.Get(ctx, identity.Int(1))
		require.NoError(t, err)
		assert.Equal(t, "a", again.String("name", ""))
	})

	t.Run("remove and contains", func(t *testing.T) {
		m := mk(t, "items")
		Load(t, m, Dataset("items"))

		ok, err := m.Contains(ctx, identity.Int(3))
		require.NoError(t, err)
		assert.True(t, ok)

		removed, err := m.Remove(ctx, identity.Int(3))
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = m.Remove(ctx, identity.Int(3))
		require.NoError(t, err)
		assert.False(t, removed)

		ok, err = m.Contains(ctx, identity.Int(3))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("to array in identity order", func(t *testing.T) {
		m := mk(t, "items")
		data := Dataset("items")
		for i := len(data) - 1; i >= 0; i-- {
			require.NoError(t, m.Put(ctx, data[i]))
		}
		all, err := m.ToArray(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, IDs(all))
	})

	t.Run("select with comparator", func(t *testing.T) {
		m := mk(t, "items")
		Load(t, m, Dataset("items"))
		got, err := m.Select(ctx, Bind(t, where.NotEquals("size", nil)), where.Descending("size"))
		require.NoError(t, err)
		assert.Equal(t, []int64{6, 2, 3, 1, 4, 8}, IDs(got))
	})

	t.Run("nil clause matches all", func(t *testing.T) {
		m := mk(t, "items")
		Load(t, m, Dataset("items"))
		n, err := m.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 8, n)
	})

	t.Run("remove where", func(t *testing.T) {
		m := mk(t, "items")
		Load(t, m, Dataset("items"))

		ids, err := m.RemoveWhere(ctx, Bind(t, where.LeftLike("name", "app")))
		require.NoError(t, err)
		assert.Equal(t, []identity.ID{identity.Int(1), identity.Int(7)}, ids)

		n, err := m.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		ids, err = m.RemoveWhere(ctx, Bind(t, where.Or()))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("select and count agree with matcher", func(t *testing.T) {
		m := mk(t, "items")
		data := Dataset("items")
		Load(t, m, data)

		for _, nc := range Clauses() {
			t.Run(nc.Name, func(t *testing.T) {
				want := ExpectedMatches(t, nc, data)

				got, err := m.Select(ctx, Bind(t, nc.Build()), nil)
				require.NoError(t, err)
				assert.Equal(t, want, IDs(got))

				n, err := m.Count(ctx, Bind(t, nc.Build()))
				require.NoError(t, err)
				assert.Equal(t, len(want), n)
			})
		}
	})
}
