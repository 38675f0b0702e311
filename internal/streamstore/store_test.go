package streamstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestFS_PutOpen(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := New(fs, "/data")
	loc := Location{Table: "Message", ID: "7", Field: "body"}

	n, err := s.Put(ctx, loc, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err := afero.Exists(fs, "/data/Message/7/body")
	require.NoError(t, err)
	assert.True(t, ok, "payload lands at <root>/<table>/<id>/<field>")

	rc, err := s.Open(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), readAll(t, rc))

	_, err = s.Put(ctx, loc, bytes.NewReader([]byte("bye")))
	require.NoError(t, err)
	rc, err = s.Open(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), readAll(t, rc))

	entries, err := afero.ReadDir(fs, "/data/Message/7")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFS_OpenMissing(t *testing.T) {
	s := NewMem()
	_, err := s.Open(context.Background(), Location{Table: "T", ID: "1", Field: "f"})
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFS_Remove(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	a := Location{Table: "T", ID: "1", Field: "a"}
	b := Location{Table: "T", ID: "1", Field: "b"}
	other := Location{Table: "T", ID: "2", Field: "a"}
	for _, loc := range []Location{a, b, other} {
		_, err := s.Put(ctx, loc, bytes.NewReader([]byte(loc.Field)))
		require.NoError(t, err)
	}

	require.NoError(t, s.Remove(ctx, a))
	require.NoError(t, s.Remove(ctx, a), "removing twice is fine")
	_, err := s.Open(ctx, a)
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, s.RemoveEntity(ctx, "T", "1"))
	_, err = s.Open(ctx, b)
	assert.ErrorIs(t, err, ErrNotExist)

	rc, err := s.Open(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), readAll(t, rc))
}

func TestFS_OnDisk(t *testing.T) {
	dir := t.TempDir()
	s := NewOS(dir)
	loc := Location{Table: "T", ID: "abc", Field: "f"}
	_, err := s.Put(context.Background(), loc, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "T", "abc", "f"))
}

func TestLocation_EscapesSegments(t *testing.T) {
	loc := Location{Table: "T", ID: "../etc", Field: "f"}
	assert.Equal(t, "T/..%2Fetc/f", loc.String())

	loc = Location{Table: "T", ID: "..", Field: "f"}
	assert.Equal(t, "T/.%2E/f", loc.String())
}

func TestFS_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMem().Put(ctx, Location{Table: "T", ID: "1", Field: "f"}, bytes.NewReader(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
