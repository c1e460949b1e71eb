package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/basex/internal/idgen"
	"github.com/roach88/basex/internal/txn"
)

// envPrefix prefixes the environment variables that set flags:
// --config-dir is read from BASEX_CONFIG_DIR.
const envPrefix = "BASEX"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	ConfigDir string
	Stage     string
	Metrics   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the basex CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "basex",
		Short: "basex - ids and transactions for multi-datasource services",
		Long: `Tools for services built on basex.

Generate and decode flake ids, check configured datasources and
the host clock, and run SQL scripts inside a datasource transaction.

Flags can also be set through BASEX_* environment variables,
e.g. BASEX_CONFIG_DIR or BASEX_STAGE.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindEnv(viper.New(), cmd.Flags()); err != nil {
				return WrapExitError(ExitCommandError, "environment", err)
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Metrics {
				return nil
			}
			return writeMetrics(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", ".", "directory containing application.yaml")
	cmd.PersistentFlags().StringVar(&opts.Stage, "stage", "", "configuration stage (reads application-<stage>.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print metrics to stderr after the command")

	cmd.AddCommand(NewIDCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code. Cancelling ctx
// rolls back a running exec script.
func Execute(ctx context.Context) int {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return GetExitCode(err)
}

// bindEnv fills every flag not set on the command line from its BASEX_*
// environment variable. Flag names map to variables upper-cased with
// dashes replaced by underscores.
func bindEnv(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			flagErr = fmt.Errorf("%s_%s: %w", envPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err)
		}
	})
	return flagErr
}

// writeMetrics prints the package collectors in Prometheus text format.
func writeMetrics(cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	for _, c := range append(txn.Collectors(), idgen.Collectors()...) {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(cmd.ErrOrStderr(), mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
