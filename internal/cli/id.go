package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/basex/internal/idgen"
)

// IDOptions holds flags for the id command.
type IDOptions struct {
	*RootOptions
	Count     int
	MachineID int
}

// NewIDCommand creates the id command and its decode subcommand.
func NewIDCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IDOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate flake ids",
		Long: `Generate time-ordered 64-bit ids.

The machine id comes from --machine-id, then id.machine_id in the
configuration, then the host's IPv4 address.

Example:
  basex id
  basex id --count 5 --machine-id 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runID(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of ids to generate")
	cmd.Flags().IntVar(&opts.MachineID, "machine-id", -1, "machine id (0-255); default from config or host")

	cmd.AddCommand(newDecodeCommand(rootOpts))
	return cmd
}

type idList struct {
	MachineID uint8   `json:"machine_id"`
	IDs       []int64 `json:"ids"`
}

func runID(opts *IDOptions, cmd *cobra.Command) error {
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--count must be at least 1")
	}

	cfg, err := loadConfig(opts.RootOptions, true)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	gen, err := newGenerator(cfg, opts.MachineID, logger)
	if err != nil {
		return err
	}

	out := idList{MachineID: gen.MachineID(), IDs: make([]int64, opts.Count)}
	for i := range out.IDs {
		out.IDs[i] = gen.Next()
	}
	logger.Debug("ids generated", "count", opts.Count, "machine", out.MachineID)

	return newFormatter(opts.RootOptions, cmd).Emit(out, func(w io.Writer) error {
		for _, id := range out.IDs {
			if _, err := fmt.Fprintln(w, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DecodeOptions holds flags for the id decode command.
type DecodeOptions struct {
	*RootOptions
	Epoch string
}

func newDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <id>",
		Short: "Show the fields of an id",
		Long: `Split an id into its tick, machine and sequence fields.

Example:
  basex id decode 26221571
  basex id decode --format json 26221571`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Epoch, "epoch", "", "generator epoch (RFC 3339); default from config or 2020-01-01T00:00:00Z")
	return cmd
}

type decodedID struct {
	ID       int64  `json:"id"`
	Tick     int64  `json:"tick"`
	Time     string `json:"time"`
	Machine  uint8  `json:"machine"`
	Sequence int64  `json:"sequence"`
}

func runDecode(opts *DecodeOptions, arg string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		_ = f.Error(CodeInput, fmt.Sprintf("%q is not a positive 64-bit id", arg), nil)
		return NewExitError(ExitCommandError, "invalid id")
	}

	epoch := idgen.DefaultEpoch
	if opts.Epoch != "" {
		epoch, err = time.Parse(time.RFC3339, opts.Epoch)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --epoch", err)
		}
	} else {
		cfg, err := loadConfig(opts.RootOptions, true)
		if err != nil {
			return err
		}
		if !cfg.ID.Epoch.IsZero() {
			epoch = cfg.ID.Epoch
		}
	}

	parts := idgen.Decompose(id)
	out := decodedID{
		ID:       id,
		Tick:     parts.Tick,
		Time:     parts.Time(epoch).UTC().Format(time.RFC3339Nano),
		Machine:  parts.Machine,
		Sequence: parts.Sequence,
	}

	return f.Emit(out, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "id:       %d\ntick:     %d\ntime:     %s\nmachine:  %d\nsequence: %d\n",
			out.ID, out.Tick, out.Time, out.Machine, out.Sequence)
		return err
	})
}
