package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitydb/internal/compiler"
	"github.com/roach88/entitydb/internal/dberr"
)

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"count": 42}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"count": float64(42)}, resp.Data)

	buf.Reset()
	require.NoError(t, formatter.Error("NOT_FOUND", "no such item", []string{"id=3"}))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no such item", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("3 rows"))
	assert.Equal(t, "3 rows\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error("E001", "broken", map[string]string{"file": "x.cue"}))
	assert.Equal(t, "Error [E001]: broken\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "broken", map[string]string{"file": "x.cue"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("opening %s", "db")
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("opening %s", "db")
	assert.Equal(t, "opening db\n", errOut.String())
	assert.Empty(t, out.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Fail(ExitFailure, "update failed", dberr.New(dberr.CodeNotFound, "identity 4 is absent"))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, dberr.IsNotFound(err))
	assert.Contains(t, buf.String(), "Error [NOT_FOUND]: update failed: NOT_FOUND: identity 4 is absent")
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "DUPLICATE_KEY", ErrorCode(fmt.Errorf("put: %w", dberr.New(dberr.CodeDuplicateKey, "taken"))))
	assert.Equal(t, compiler.ErrDuplicateTable, ErrorCode(errors.Join(compiler.ValidationError{Code: compiler.ErrDuplicateTable})))
	assert.Equal(t, ErrCodeConfig, ErrorCode(withCode(ErrCodeConfig, errors.New("bad"))))
	assert.Equal(t, ErrCodeGeneric, ErrorCode(errors.New("plain")))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
