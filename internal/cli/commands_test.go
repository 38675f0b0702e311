package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "validate")
	assert.Contains(t, out, "✓ 1 table declaration(s) valid")

	out = w.mustRun(t, "--format", "json", "validate", filepath.Join(w.dir, "schemas"))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"valid": true, "tables": float64(1)}, resp.Data)
}

func TestValidateCommand_Errors(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "bad/a.cue", `package schemas

table: items: entity: "Item"
table: others: entity: "Item"
`)

	out, err := w.run(t, "", "validate", filepath.Join(w.dir, "bad"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "E105")

	_, err = w.run(t, "", "validate", filepath.Join(w.dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTablesCommand(t *testing.T) {
	w := newWorkspace(t)

	out := w.mustRun(t, "tables")
	assert.Contains(t, out, "items (Item) id:int rows=0")
	assert.Contains(t, out, "  size int")
	assert.Contains(t, out, "  body stream")

	out = w.mustRun(t, "--format", "json", "tables")
	var resp struct {
		Data []TableInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "items", resp.Data[0].Name)
	assert.Equal(t, []string{"body"}, resp.Data[0].Streams)
}

func TestPutGetQueryDelete(t *testing.T) {
	w := newWorkspace(t)
	records := w.write(t, "items.yaml", `- name: apple
  size: 3
- name: pear
  size: 1
- name: plum
  size: 5
`)

	out := w.mustRun(t, "put", "items", records)
	assert.Equal(t, "items: 3 inserted, 0 updated, 0 deleted, 0 skipped\n", out)

	out = w.mustRun(t, "get", "items", "1")
	assert.Contains(t, out, "id=1")
	assert.Contains(t, out, "name=apple")
	assert.Contains(t, out, "size=3")

	out = w.mustRun(t, "--format", "json", "get", "items", "2")
	var got struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"id": float64(2), "name": "pear", "size": float64(1)}, got.Data)

	out = w.mustRun(t, "--format", "json", "query", "items", "--gt", "size=2", "--order=-size")
	var q struct {
		Data QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, 2, q.Data.Count)
	require.Len(t, q.Data.Entities, 2)
	assert.JSONEq(t, `{"id":3,"name":"plum","size":5}`, string(q.Data.Entities[0]))
	assert.JSONEq(t, `{"id":1,"name":"apple","size":3}`, string(q.Data.Entities[1]))

	out = w.mustRun(t, "query", "items", "--prefix", "name=p", "--eq", "size=1")
	assert.Contains(t, out, "name=pear")
	assert.Contains(t, out, "(1 rows)")

	out = w.mustRun(t, "query", "items", "--eq", "name=apple", "--eq", "name=plum", "--any", "--limit", "1")
	assert.Contains(t, out, "name=apple")
	assert.NotContains(t, out, "name=plum")
	assert.Contains(t, out, "(2 rows)")

	assert.Equal(t, "3\n", w.mustRun(t, "count", "items"))
	assert.Equal(t, "1\n", w.mustRun(t, "count", "items", "--le", "size=1"))

	out = w.mustRun(t, "delete", "items", "--lt", "size=4", "--individually")
	assert.Equal(t, "items: 2 deleted\n", out)
	assert.Equal(t, "1\n", w.mustRun(t, "count", "items"))

	out = w.mustRun(t, "delete", "items", "3")
	assert.Equal(t, "items: 1 deleted\n", out)

	out, err := w.run(t, "", "delete", "items", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NOT_FOUND")
}

func TestPutCommand_UpdatesAndPreassignedIDs(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, `- id: 10
  name: fig
  size: 2
`, "put", "items", "-")
	require.NoError(t, err)
	assert.Equal(t, "items: 1 inserted, 0 updated, 0 deleted, 0 skipped\n", out)

	out, err = w.run(t, `- id: 10
  size: 4
- name: kiwi
`, "put", "items", "-", "--delete", "99")
	require.NoError(t, err)
	assert.Equal(t, "items: 1 inserted, 1 updated, 0 deleted, 1 skipped\n", out)

	// The generator continues past the pre-assigned identity.
	out = w.mustRun(t, "get", "items", "11")
	assert.Contains(t, out, "name=kiwi")

	out = w.mustRun(t, "get", "items", "10")
	assert.Contains(t, out, "size=4")
	assert.NotContains(t, out, "name=fig")

	out = w.mustRun(t, "--format", "json", "put", "items", "--delete", "10")
	var resp struct {
		Data PutResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Deleted)
}

func TestPutCommand_Errors(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "", "put", "items")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := w.run(t, "- colour: red\n", "put", "items", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "SCHEMA")

	_, err = w.run(t, "- name: a\n", "put", "nope", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = w.run(t, "not: [a list", "put", "items", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStreamCommand(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "payloads/pear.txt", "pear body")
	records := w.write(t, "items.yaml", `- name: apple
  body: apple body
- name: pear
  body: {file: payloads/pear.txt}
- name: plum
`)
	w.mustRun(t, "put", "items", records)

	assert.Equal(t, "apple body", w.mustRun(t, "stream", "items", "1", "body"))
	assert.Equal(t, "pear body", w.mustRun(t, "stream", "items", "2", "body"))

	out, err := w.run(t, "", "stream", "items", "3", "body")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NOT_FOUND")

	_, err = os.Stat(filepath.Join(w.dir, "streams"))
	assert.NoError(t, err)
}

func TestDeleteCommand_RequiresAll(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "put", "items", w.write(t, "items.yaml", "- name: a\n- name: b\n"))

	_, err := w.run(t, "", "delete", "items")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = w.run(t, "", "delete", "items", "1", "--eq", "name=a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	assert.Equal(t, "items: 2 deleted\n", w.mustRun(t, "delete", "items", "--all"))
	assert.Equal(t, "0\n", w.mustRun(t, "count", "items"))
}

func TestGetCommand_Errors(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "", "get", "items", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")

	out, err = w.run(t, "", "get", "items", "one")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "SCHEMA")

	_, err = w.run(t, "", "get", "nope", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersionCommand(t *testing.T) {
	w := newWorkspace(t)

	assert.Equal(t, "0\n", w.mustRun(t, "version"))
	assert.Equal(t, "7\n", w.mustRun(t, "version", "7"))
	assert.Equal(t, "7\n", w.mustRun(t, "version"))

	_, err := w.run(t, "", "version", "seven")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "", "--format", "xml", "tables")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_BadConfig(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "entitydb.yaml", "database:\n  driver: oracle\n")

	out, err := w.run(t, "", "tables")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestRootCommand_Metrics(t *testing.T) {
	w := newWorkspace(t)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand(NewRegistry())
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader("- name: a\n"))
	cmd.SetArgs([]string{"--config", w.config, "--metrics", "put", "items", "-"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, errOut.String(), "# TYPE entitydb_table_operations_total counter")
	assert.Contains(t, errOut.String(), `entitydb_table_operations_total{op="insert",table="items"}`)
}
