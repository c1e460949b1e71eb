package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/beevik/ntp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/basex/internal/idgen"
	"github.com/roach88/basex/internal/txn"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	NTPHost   string
	Timeout   time.Duration
	MaxOffset time.Duration
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check datasources and the host clock",
		Long: `Connect to every configured datasource concurrently and report
which ones are reachable.

With --ntp, also compare the host clock with an NTP server. Ids are
generated from the wall clock; a clock that is later stepped back
makes the generator hold ids at the last issued tick until it catches up.

Example:
  basex check
  basex check --stage prod --ntp pool.ntp.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.NTPHost, "ntp", "", "NTP server to compare the host clock with")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "overall timeout")
	cmd.Flags().DurationVar(&opts.MaxOffset, "max-offset", 100*time.Millisecond, "largest acceptable clock offset")

	return cmd
}

type datasourceStatus struct {
	Name   string `json:"name"`
	Driver string `json:"driver,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type clockStatus struct {
	Server string `json:"server"`
	Offset string `json:"offset,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type checkReport struct {
	Datasources []datasourceStatus `json:"datasources"`
	Clock       *clockStatus       `json:"clock,omitempty"`
}

func (r checkReport) ok() bool {
	for _, ds := range r.Datasources {
		if !ds.OK {
			return false
		}
	}
	return r.Clock == nil || r.Clock.OK
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, false)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	names := make([]string, 0, len(cfg.DB))
	for name := range cfg.DB {
		names = append(names, name)
	}
	sort.Strings(names)

	report := checkReport{Datasources: make([]datasourceStatus, len(names))}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			status := datasourceStatus{Name: name}
			pool, err := txn.OpenPool(gctx, name, cfg.DB[name])
			if err != nil {
				status.Error = err.Error()
				logger.Warn("datasource unreachable", "datasource", name, "error", err)
			} else {
				status.OK = true
				status.Driver = pool.Driver()
				if err := pool.DB().Close(); err != nil {
					logger.Warn("close datasource", "datasource", name, "error", err)
				}
			}
			report.Datasources[i] = status
			return nil
		})
	}
	if opts.NTPHost != "" {
		report.Clock = &clockStatus{Server: opts.NTPHost}
		g.Go(func() error {
			checkClock(report.Clock, opts.MaxOffset)
			return nil
		})
	}
	_ = g.Wait()

	f := newFormatter(opts.RootOptions, cmd)
	if err := f.Emit(report, func(w io.Writer) error { return writeCheckText(w, report) }); err != nil {
		return err
	}
	if !report.ok() {
		return NewExitError(ExitFailure, "check failed")
	}
	return nil
}

func checkClock(status *clockStatus, maxOffset time.Duration) {
	resp, err := ntp.Query(status.Server)
	if err == nil {
		err = resp.Validate()
	}
	if err != nil {
		status.Error = err.Error()
		return
	}
	status.Offset = resp.ClockOffset.String()
	status.OK = resp.ClockOffset.Abs() <= maxOffset
	if !status.OK {
		status.Error = fmt.Sprintf("offset exceeds %s (%d id ticks)", maxOffset, resp.ClockOffset.Abs()/idgen.TickDuration)
	}
}

func writeCheckText(w io.Writer, r checkReport) error {
	for _, ds := range r.Datasources {
		if ds.OK {
			fmt.Fprintf(w, "datasource %-12s ok (%s)\n", ds.Name, ds.Driver)
			continue
		}
		fmt.Fprintf(w, "datasource %-12s FAILED %s\n", ds.Name, ds.Error)
	}
	if c := r.Clock; c != nil {
		switch {
		case c.OK:
			fmt.Fprintf(w, "clock      %-12s ok (offset %s)\n", c.Server, c.Offset)
		default:
			fmt.Fprintf(w, "clock      %-12s FAILED %s\n", c.Server, c.Error)
		}
	}
	summary := "all checks passed"
	if !r.ok() {
		summary = "checks failed"
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}
