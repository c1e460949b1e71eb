package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/basex/internal/config"
	"github.com/roach88/basex/internal/idgen"
)

// loadConfig reads the application configuration for the selected stage.
// When optional is set a missing application file yields defaults.
func loadConfig(opts *RootOptions, optional bool) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigDir, opts.Stage)
	if err == nil {
		return cfg, nil
	}
	if optional && errors.Is(err, fs.ErrNotExist) {
		return &config.Config{
			Log:     config.LogConfig{Level: "info", Format: "text"},
			Session: config.SessionConfig{DefaultPageSize: config.DefaultPageSize, MaxPageSize: config.DefaultMaxPage},
		}, nil
	}
	return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
}

// newLogger builds the slog logger described by cfg. --verbose forces
// debug level. Logs go to the configured file or to stderr; the returned
// function closes the file.
func newLogger(cfg *config.Config, opts *RootOptions, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	w, closer := stderr, func() {}
	if sink := cfg.Sink(); sink != "" {
		if err := os.MkdirAll(filepath.Dir(sink), 0o755); err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to create log directory", err)
		}
		f, err := os.OpenFile(sink, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open log file", err)
		}
		w, closer = f, func() { f.Close() }
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if name := cfg.Project.Name; name != "" {
		logger = logger.With("project", name)
	}
	return logger, closer, nil
}

// newGenerator builds the id generator. A machine id of 0-255 from the
// command line wins over the configured one; -1 means unset.
func newGenerator(cfg *config.Config, machineID int, logger *slog.Logger) (*idgen.Generator, error) {
	opts := []idgen.Option{idgen.WithLogger(logger)}

	switch {
	case machineID > idgen.MaxMachine:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("machine id %d out of range 0-%d", machineID, idgen.MaxMachine))
	case machineID >= 0:
		opts = append(opts, idgen.WithMachineID(uint8(machineID)))
	case cfg.ID.MachineID != nil:
		opts = append(opts, idgen.WithMachineID(uint8(*cfg.ID.MachineID)))
	}
	if !cfg.ID.Epoch.IsZero() {
		opts = append(opts, idgen.WithEpoch(cfg.ID.Epoch))
	}

	g, err := idgen.New(opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create id generator", err)
	}
	return g, nil
}
