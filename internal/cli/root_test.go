package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "basex", cmd.Use)
	assert.Contains(t, cmd.Long, "BASEX_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"id"}, {"id", "decode"}, {"check"}, {"exec"}}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config-dir")
	require.NotNil(t, configFlag)
	assert.Equal(t, ".", configFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("stage"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("metrics"))
}

func TestIDCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	idCmd, _, err := cmd.Find([]string{"id"})
	require.NoError(t, err)

	countFlag := idCmd.Flags().Lookup("count")
	require.NotNil(t, countFlag)
	assert.Equal(t, "n", countFlag.Shorthand)
	assert.Equal(t, "1", countFlag.DefValue)

	machineFlag := idCmd.Flags().Lookup("machine-id")
	require.NotNil(t, machineFlag)
	assert.Equal(t, "-1", machineFlag.DefValue)
}

func TestExecCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	execCmd, _, err := cmd.Find([]string{"exec"})
	require.NoError(t, err)

	dsFlag := execCmd.Flags().Lookup("datasource")
	require.NotNil(t, dsFlag)
	assert.Equal(t, "d", dsFlag.Shorthand)
	assert.Equal(t, "default", dsFlag.DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "id", "decode", "26221571"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootCommand_EnvBinding(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application-qa.yaml"), []byte(`
config:
  db:
    default:
      url: sqlite3://:memory:
  id:
    epoch: 2021-01-01T00:00:00Z
`), 0o600))

	t.Setenv("BASEX_CONFIG_DIR", dir)
	t.Setenv("BASEX_STAGE", "qa")
	t.Setenv("BASEX_FORMAT", "json")

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"id", "decode", "26221571"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"status":"ok"`)
	assert.Contains(t, buf.String(), `"time":"2021-01-01T00:00:01Z"`, "epoch comes from the qa stage file")
}

func TestRootCommand_FlagBeatsEnv(t *testing.T) {
	t.Setenv("BASEX_FORMAT", "json")
	t.Setenv("BASEX_CONFIG_DIR", t.TempDir())

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--format", "text", "id", "decode", "26221571"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "id:"), buf.String())
}

func TestRootCommand_Metrics(t *testing.T) {
	t.Setenv("BASEX_CONFIG_DIR", t.TempDir())

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--metrics", "id", "--machine-id", "3", "-n", "2"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "basex_idgen_generated_total")
	assert.Contains(t, errOut.String(), "# TYPE basex_idgen_stalls_total counter")
}
