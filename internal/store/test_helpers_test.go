package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/entitymap"
	"github.com/roach88/entitydb/internal/testutil"
)

// createTestStore opens a fresh SQLite database file for one test.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createPostgresStore connects to ENTITYDB_TEST_POSTGRES or skips.
func createPostgresStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ENTITYDB_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("ENTITYDB_TEST_POSTGRES not set")
	}
	s, err := Open(context.Background(), "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sqliteMaker(t *testing.T, table string) entitymap.Map {
	s := createTestStore(t)
	m, err := s.EnsureTable(context.Background(), testutil.ItemInfo(table))
	require.NoError(t, err)
	return m
}

func postgresMaker(t *testing.T, table string) entitymap.Map {
	s := createPostgresStore(t)
	_, err := s.DB().Exec("DROP TABLE IF EXISTS " + table)
	require.NoError(t, err)
	m, err := s.EnsureTable(context.Background(), testutil.ItemInfo(table))
	require.NoError(t, err)
	return m
}
