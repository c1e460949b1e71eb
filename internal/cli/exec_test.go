package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderSchema = `CREATE TABLE orders (id INTEGER PRIMARY KEY, sku TEXT NOT NULL)`

// setupExec writes a config with default and audit sqlite datasources and
// creates the orders table in both.
func setupExec(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, sqliteConfig(dir, "default", "audit"))

	for _, name := range []string{"default", "audit"} {
		db, err := sql.Open("sqlite3", filepath.Join(dir, name+".db"))
		require.NoError(t, err)
		_, err = db.Exec(orderSchema)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
	return dir
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func countOrders(t *testing.T, dir, datasource string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(dir, datasource+".db"))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n))
	return n
}

func TestExecCommand_Commit(t *testing.T) {
	dir := setupExec(t)
	script := writeScript(t, dir, "script.sql", `INSERT INTO orders (id, sku) VALUES (1, 'a'), (2, 'b'), (3, 'c');`)

	buf := &bytes.Buffer{}
	cmd := NewExecCommand(&RootOptions{Format: "json", ConfigDir: dir})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{script})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   execResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "default", resp.Data.Datasource)
	assert.Equal(t, int64(3), resp.Data.RowsAffected)
	assert.NotEmpty(t, resp.Data.Transaction)

	assert.Equal(t, 3, countOrders(t, dir, "default"))
	assert.Equal(t, 0, countOrders(t, dir, "audit"))
}

func TestExecCommand_OtherDatasource(t *testing.T) {
	dir := setupExec(t)
	script := writeScript(t, dir, "script.sql", `INSERT INTO orders (id, sku) VALUES (1, 'a');`)

	buf := &bytes.Buffer{}
	cmd := NewExecCommand(&RootOptions{Format: "text", ConfigDir: dir})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-d", "audit", script})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "executed "+script+" on audit: 1 rows affected\n", buf.String())
	assert.Equal(t, 1, countOrders(t, dir, "audit"))
	assert.Equal(t, 0, countOrders(t, dir, "default"))
}

func TestExecCommand_RollbackOnError(t *testing.T) {
	dir := setupExec(t)
	script := writeScript(t, dir, "script.sql", `
INSERT INTO orders (id, sku) VALUES (1, 'a');
INSERT INTO orders (id, sku) VALUES (1, 'duplicate');
`)

	buf := &bytes.Buffer{}
	cmd := NewExecCommand(&RootOptions{Format: "text", ConfigDir: dir})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{script})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E_EXEC]")
	assert.Equal(t, 0, countOrders(t, dir, "default"), "first insert is rolled back")
}

func TestExecCommand_Stdin(t *testing.T) {
	dir := setupExec(t)

	buf := &bytes.Buffer{}
	cmd := NewExecCommand(&RootOptions{Format: "text", ConfigDir: dir})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(`INSERT INTO orders (id, sku) VALUES (9, 'z');`))
	cmd.SetArgs([]string{"-"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, 1, countOrders(t, dir, "default"))
}

func TestExecCommand_InputErrors(t *testing.T) {
	dir := setupExec(t)
	empty := writeScript(t, dir, "empty.sql", "  \n")

	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{name: "missing script", args: []string{filepath.Join(dir, "nope.sql")}, code: ExitCommandError, msg: "failed to read script"},
		{name: "empty script", args: []string{empty}, code: ExitCommandError, msg: "is empty"},
		{name: "unknown datasource", args: []string{"-d", "reporting", writeScript(t, dir, "select.sql", "SELECT 1")}, code: ExitCommandError, msg: "reporting"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewExecCommand(&RootOptions{Format: "text", ConfigDir: dir})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
