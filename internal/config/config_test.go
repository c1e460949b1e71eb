package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
config:
  project:
    name: orders
    log_dir: /var/log/orders
  log:
    level: debug
    filename: orders.log
  db:
    default:
      url: sqlite3://./orders.db
      expire_on_commit: true
      max_open_conns: 4
      conn_max_lifetime: 5m
    reporting:
      url: postgres://report:${BASEX_TEST_REPORT_PW}@db/report?sslmode=disable
      isolation: serializable
  id:
    machine_id: 12
    epoch: 2021-01-01T00:00:00Z
  session:
    max_page_size: 50
  feature_flags:
    fast_path: true
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_FullDocument(t *testing.T) {
	t.Setenv("BASEX_TEST_REPORT_PW", "s3cret")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Project.Name)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "format defaults to text")
	assert.Equal(t, filepath.Join("/var/log/orders", "orders.log"), cfg.Sink())

	require.Len(t, cfg.DB, 2)
	def := cfg.DB[DefaultDatasource]
	assert.Equal(t, "sqlite3://./orders.db", def.URL)
	assert.True(t, def.ExpireOnCommit)
	assert.Equal(t, 4, def.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, def.ConnMaxLifetime)

	rep := cfg.DB["reporting"]
	assert.Equal(t, "postgres://report:s3cret@db/report?sslmode=disable", rep.URL)
	assert.Equal(t, "serializable", rep.Isolation)
	assert.False(t, rep.ExpireOnCommit)

	require.NotNil(t, cfg.ID.MachineID)
	assert.Equal(t, 12, *cfg.ID.MachineID)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), cfg.ID.Epoch.UTC())

	assert.Equal(t, DefaultPageSize, cfg.Session.DefaultPageSize)
	assert.Equal(t, 50, cfg.Session.MaxPageSize)

	require.Contains(t, cfg.Extends, "feature_flags")
	flags, ok := cfg.Extends["feature_flags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, flags["fast_path"])
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("config:\n  db:\n    default:\n      url: sqlite3://:memory:\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "", cfg.Sink())
	assert.Equal(t, DefaultPageSize, cfg.Session.DefaultPageSize)
	assert.Equal(t, DefaultMaxPage, cfg.Session.MaxPageSize)
	assert.Nil(t, cfg.ID.MachineID)
	assert.True(t, cfg.ID.Epoch.IsZero())
}

func TestParse_MissingDefaultDatasource(t *testing.T) {
	_, err := Parse([]byte("config:\n  db:\n    reporting:\n      url: sqlite3://r.db\n"))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "db", ce.Field)
	assert.Contains(t, err.Error(), `missing "default" datasource`)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "empty document",
			yaml:  "",
			field: "db",
		},
		{
			name:  "no url or dsn",
			yaml:  "config:\n  db:\n    default:\n      expire_on_commit: true\n",
			field: "db.default",
		},
		{
			name:  "driver without dsn",
			yaml:  "config:\n  db:\n    default:\n      driver: sqlite3\n",
			field: "db.default",
		},
		{
			name:  "bad isolation",
			yaml:  "config:\n  db:\n    default:\n      url: sqlite3://a.db\n      isolation: snapshot\n",
			field: "db.default.isolation",
		},
		{
			name:  "machine id out of range",
			yaml:  "config:\n  db:\n    default:\n      url: sqlite3://a.db\n  id:\n    machine_id: 300\n",
			field: "id.machine_id",
		},
		{
			name:  "max page below default",
			yaml:  "config:\n  db:\n    default:\n      url: sqlite3://a.db\n  session:\n    default_page_size: 20\n    max_page_size: 5\n",
			field: "session.max_page_size",
		},
		{
			name:  "bad log level",
			yaml:  "config:\n  log:\n    level: loud\n  db:\n    default:\n      url: sqlite3://a.db\n",
			field: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("config: [unterminated"))
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "parse", ce.Message)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "application.yaml", FileName(""))
	assert.Equal(t, "application-prod.yaml", FileName("prod"))
}

func TestLoad_StageAndSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "application.yaml", "config:\n  db:\n    default:\n      url: sqlite3://dev.db\n")
	writeFile(t, dir, "application-prod.yaml", `
config:
  db:
    default:
      url: postgres://app@db/app
      expire_on_commit: true
    audit:
      url: mysql://audit@tcp(db:3306)/audit
`)
	writeFile(t, dir, SecretsFile, `
config:
  db:
    default:
      url: postgres://app:hunter2@db/app
  api_token: abc
`)

	dev, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3://dev.db", dev.DB[DefaultDatasource].URL)

	prod, err := Load(dir, "prod")
	require.NoError(t, err)

	want := map[string]Datasource{
		// the overlay replaces the url and keeps the other settings
		DefaultDatasource: {URL: "postgres://app:hunter2@db/app", ExpireOnCommit: true},
		"audit":           {URL: "mysql://audit@tcp(db:3306)/audit"},
	}
	if diff := cmp.Diff(want, prod.DB); diff != "" {
		t.Errorf("prod datasources mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "abc", prod.Extends["api_token"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir(), "qa")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Path, "application-qa.yaml")
}

func TestLoad_ValidationErrorCarriesPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "application.yaml", "config:\n  project:\n    name: x\n")

	_, err := LoadFile(path)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, path, ce.Path)
	assert.Equal(t, "db", ce.Field)
}
