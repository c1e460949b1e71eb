package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Emit(data, func(io.Writer) error {
		t.Fatal("text renderer called for json output")
		return nil
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_TextEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Emit(42, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "answer: 42")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "answer: 42\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"datasource": "audit"}
	require.NoError(t, formatter.Error(CodeDatasource, "connect failed", details))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeDatasource, resp.Error.Code)
	assert.Equal(t, "connect failed", resp.Error.Message)
	assert.Equal(t, map[string]any{"datasource": "audit"}, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(CodeExec, "script rolled back", map[string]string{"script": "a.sql"}))
	assert.Equal(t, "Error [E_EXEC]: script rolled back\n", buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error(CodeExec, "script rolled back", "a.sql"))
	assert.Contains(t, buf.String(), "Error [E_EXEC]: script rolled back")
	assert.Contains(t, buf.String(), "Details: a.sql")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}

	quiet := &OutputFormatter{Writer: out, ErrWriter: diag}
	quiet.VerboseLog("opening %s", "default")
	assert.Empty(t, diag.String())

	loud := &OutputFormatter{Writer: out, ErrWriter: diag, Verbose: true}
	loud.VerboseLog("opening %s", "default")
	assert.Equal(t, "opening default\n", diag.String())
	assert.Empty(t, out.String(), "diagnostics never go to the result writer")
}

func TestExitError(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	base := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to read script", base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "failed to read script: disk full", err.Error())
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("run: %w", NewExitError(ExitFailure, "check failed"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Equal(t, "check failed", NewExitError(ExitFailure, "check failed").Error())
}
