// Package config loads basex application configuration.
//
// Configuration lives in application.yaml (or application-<stage>.yaml for a
// named stage) under a top-level "config" key:
//
//	config:
//	  project:
//	    name: orders
//	    log_dir: ./logs
//	  log:
//	    level: info
//	    format: text
//	  db:
//	    default:
//	      url: sqlite3://./orders.db
//	      expire_on_commit: false
//	    reporting:
//	      url: postgres://report:${REPORT_PASSWORD}@db/report?sslmode=disable
//	  id:
//	    machine_id: 12
//	  session:
//	    default_page_size: 10
//	    max_page_size: 100
//
// A .secrets.yaml file in the same directory, if present, is overlaid on the
// datasource connection settings and extension keys. ${VAR} references in
// datasource URLs and DSNs are expanded from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDatasource is the datasource every configuration must declare and
// every entity binds to unless it says otherwise.
const DefaultDatasource = "default"

// SecretsFile is overlaid on the application file when present.
const SecretsFile = ".secrets.yaml"

// Session defaults.
const (
	DefaultPageSize = 10
	DefaultMaxPage  = 100
)

// Config is the complete application configuration.
type Config struct {
	Project ProjectConfig         `yaml:"project"`
	Log     LogConfig             `yaml:"log"`
	DB      map[string]Datasource `yaml:"db"`
	ID      IDConfig              `yaml:"id"`
	Session SessionConfig         `yaml:"session"`

	// Extends keeps every other key under "config" for application use.
	Extends map[string]any `yaml:",inline"`
}

// ProjectConfig describes the application.
type ProjectConfig struct {
	Name   string `yaml:"name"`
	LogDir string `yaml:"log_dir"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level    string `yaml:"level"`  // debug | info | warn | error
	Format   string `yaml:"format"` // text | json
	Filename string `yaml:"filename,omitempty"`
}

// Sink returns the log file path, or "" for stderr.
func (c *Config) Sink() string {
	if c.Log.Filename == "" {
		return ""
	}
	return filepath.Join(c.Project.LogDir, c.Log.Filename)
}

// Datasource holds connection parameters for one named datasource.
//
// Either URL or Driver+DSN must be set. URL schemes select the driver
// (sqlite3, postgres, mysql, sqlserver); "scheme+dialect://" is accepted.
type Datasource struct {
	URL    string `yaml:"url,omitempty"`
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`

	// ExpireOnCommit reloads written entities after the outermost commit.
	ExpireOnCommit bool `yaml:"expire_on_commit"`

	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`

	// Isolation is the default isolation level for new transactions:
	// "", read_uncommitted, read_committed, repeatable_read, serializable.
	Isolation string `yaml:"isolation,omitempty"`
}

// IDConfig configures the identifier generator.
type IDConfig struct {
	// MachineID overrides host-derived machine discriminators (0-255).
	MachineID *int `yaml:"machine_id,omitempty"`
	// Epoch overrides the generator epoch.
	Epoch time.Time `yaml:"epoch,omitempty"`
}

// SessionConfig configures the session facade.
type SessionConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// Error reports invalid configuration. It is fatal at startup.
type Error struct {
	Path    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := "config"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FileName returns the application file name for a stage.
func FileName(stage string) string {
	if stage == "" {
		return "application.yaml"
	}
	return "application-" + stage + ".yaml"
}

// Load reads the application file for stage from dir, overlays the secrets
// file when present, applies defaults and validates the result.
func Load(dir, stage string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName(stage)))
}

// LoadFile reads one application file and the secrets file next to it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: "read", Err: err}
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, &Error{Path: path, Message: "parse", Err: err}
	}

	secretsPath := filepath.Join(filepath.Dir(path), SecretsFile)
	secretData, err := os.ReadFile(secretsPath)
	switch {
	case err == nil:
		secrets, err := decode(secretData)
		if err != nil {
			return nil, &Error{Path: secretsPath, Message: "parse", Err: err}
		}
		cfg.overlay(secrets)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, &Error{Path: secretsPath, Message: "read", Err: err}
	}

	cfg.finish()
	if err := cfg.Validate(); err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates one application document.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, &Error{Message: "parse", Err: err}
	}
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type document struct {
	Config Config `yaml:"config"`
}

func decode(data []byte) (*Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &doc.Config, nil
}

// overlay copies connection settings and extension keys from secrets.
func (c *Config) overlay(secrets *Config) {
	if len(secrets.DB) > 0 && c.DB == nil {
		c.DB = make(map[string]Datasource, len(secrets.DB))
	}
	for name, s := range secrets.DB {
		d := c.DB[name]
		if s.URL != "" {
			d.URL = s.URL
		}
		if s.Driver != "" {
			d.Driver = s.Driver
		}
		if s.DSN != "" {
			d.DSN = s.DSN
		}
		c.DB[name] = d
	}
	for k, v := range secrets.Extends {
		if c.Extends == nil {
			c.Extends = make(map[string]any)
		}
		c.Extends[k] = v
	}
}

// finish applies defaults and expands environment references.
func (c *Config) finish() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Session.DefaultPageSize <= 0 {
		c.Session.DefaultPageSize = DefaultPageSize
	}
	if c.Session.MaxPageSize <= 0 {
		c.Session.MaxPageSize = DefaultMaxPage
	}
	for name, d := range c.DB {
		d.URL = os.ExpandEnv(d.URL)
		d.DSN = os.ExpandEnv(d.DSN)
		c.DB[name] = d
	}
}

// Validate checks the invariants every consumer relies on.
func (c *Config) Validate() error {
	if _, ok := c.DB[DefaultDatasource]; !ok {
		return &Error{Field: "db", Message: fmt.Sprintf("missing %q datasource", DefaultDatasource)}
	}
	for name, d := range c.DB {
		if d.URL == "" && (d.Driver == "" || d.DSN == "") {
			return &Error{Field: "db." + name, Message: "url or driver+dsn required"}
		}
		if d.MaxOpenConns < 0 || d.MaxIdleConns < 0 {
			return &Error{Field: "db." + name, Message: "connection limits must not be negative"}
		}
		switch d.Isolation {
		case "", "read_uncommitted", "read_committed", "repeatable_read", "serializable":
		default:
			return &Error{Field: "db." + name + ".isolation", Message: fmt.Sprintf("unknown isolation level %q", d.Isolation)}
		}
	}
	if id := c.ID.MachineID; id != nil && (*id < 0 || *id > 255) {
		return &Error{Field: "id.machine_id", Message: fmt.Sprintf("%d out of range 0-255", *id)}
	}
	if c.Session.MaxPageSize < c.Session.DefaultPageSize {
		return &Error{Field: "session.max_page_size", Message: "smaller than default_page_size"}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &Error{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}
