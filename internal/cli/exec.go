package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basex/internal/config"
	"github.com/roach88/basex/internal/txn"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Datasource string
	ReadOnly   bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <file.sql>",
		Short: "Run a SQL script in one transaction",
		Long: `Run a SQL script against a configured datasource inside a single
transaction. Any failing statement rolls back the whole script.

Use "-" to read the script from stdin.

Example:
  basex exec migrations/0001_orders.sql
  basex exec --datasource audit --stage prod cleanup.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Datasource, "datasource", "d", config.DefaultDatasource, "datasource to run the script on")
	cmd.Flags().BoolVar(&opts.ReadOnly, "read-only", false, "begin the transaction read-only")

	return cmd
}

type execResult struct {
	Datasource   string `json:"datasource"`
	Script       string `json:"script"`
	Transaction  string `json:"transaction"`
	RowsAffected int64  `json:"rows_affected"`
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	script, err := readScript(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}
	if strings.TrimSpace(script) == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("script %s is empty", path))
	}

	cfg, err := loadConfig(opts.RootOptions, false)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	router, err := txn.Open(ctx, cfg.DB, txn.WithRouterLogger(logger))
	if err != nil {
		_ = f.Error(CodeDatasource, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open datasources", err)
	}
	defer func() {
		if err := router.Close(); err != nil {
			logger.Error("error closing datasources", "error", err)
		}
	}()

	m := txn.NewManager(router, txn.WithLogger(logger))

	var runOpts []txn.RunOption
	if opts.ReadOnly {
		runOpts = append(runOpts, txn.ReadOnly())
	}

	f.VerboseLog("running %s on %s", path, opts.Datasource)
	result, err := txn.Do(ctx, m, opts.Datasource, func(ctx context.Context) (execResult, error) {
		out := execResult{Datasource: opts.Datasource, Script: path}
		h := m.Current(ctx, opts.Datasource)
		out.Transaction = h.ID()

		res, err := h.ExecContext(ctx, script)
		if err != nil {
			return out, err
		}
		out.RowsAffected, err = res.RowsAffected()
		return out, err
	}, runOpts...)
	if err != nil {
		code := ExitFailure
		if txn.IsConfigurationError(err) {
			code = ExitCommandError
		}
		_ = f.Error(CodeExec, err.Error(), map[string]string{"datasource": opts.Datasource, "script": path})
		return WrapExitError(code, "script rolled back", err)
	}

	return f.Emit(result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "executed %s on %s: %d rows affected\n", result.Script, result.Datasource, result.RowsAffected)
		return err
	})
}

func readScript(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}
