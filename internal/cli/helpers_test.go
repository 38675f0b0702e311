package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const itemsCUE = `package schemas

table: items: {
	entity: "Item"
	fields: {
		name: string
		size: int
	}
	streams: ["body"]
	cache: true
}
`

// workspace is a temp directory holding a config, a schemas directory
// and the SQLite file the config points at.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schemas"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas", "items.cue"), []byte(itemsCUE), 0o644))

	config := filepath.Join(dir, "entitydb.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`database:
  driver: sqlite3
  dsn: data.db
streams:
  dir: streams
schemas:
  dir: schemas
`), 0o644))
	return &workspace{dir: dir, config: config}
}

func (w *workspace) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command against the workspace config and returns
// stdout.
func (w *workspace) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand(NewRegistry())
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", w.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// mustRun is run for commands expected to succeed.
func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := w.run(t, "", args...)
	require.NoError(t, err, "output: %s", out)
	return out
}
