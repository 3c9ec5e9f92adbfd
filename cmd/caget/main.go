// Command caget reads process variables and prints their values.
//
// There is no network transport: PVs are served by an in-process simulator
// declared in a YAML file (see internal/config).
//
//	caget --config pvs.yaml SR-DI-DCCT-01:SIGNAL BL22I-MO-MODE
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	ca "github.com/Araneidae/epics-ca"
	"github.com/Araneidae/epics-ca/internal/config"
	"github.com/Araneidae/epics-ca/sim"
)

// maxConcurrentReads bounds the reads in flight at once.
const maxConcurrentReads = 16

// errSomeFailed is returned when at least one PV could not be read. The
// individual errors have already been printed.
var errSomeFailed = errors.New("some process variables could not be read")

type options struct {
	configPath string
	timestamps bool
	ctrl       bool
	array      bool
	timeout    time.Duration
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "caget [flags] PV...",
		Short: "Read process variables",
		Long: `Reads each named process variable concurrently and prints one line per
name, in the order given. A PV that cannot be read is reported on its own
line and the command exits non-zero.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.verbose, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			return run(cmd.Context(), cmd.OutOrStdout(), logger, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML file declaring the client and simulated PVs")
	cmd.Flags().BoolVarP(&opts.timestamps, "time", "t", false, "Print timestamp and alarm state")
	cmd.Flags().BoolVarP(&opts.ctrl, "ctrl", "d", false, "Print units, precision and enum labels")
	cmd.Flags().BoolVarP(&opts.array, "array", "a", false, "Read every element, printed as a count then the values")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "w", 5*time.Second, "Timeout for all reads")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("config")
	cmd.MarkFlagsMutuallyExclusive("time", "ctrl")

	return cmd
}

func newLogger(verbose bool, w io.Writer) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core), nil
}

func run(ctx context.Context, out io.Writer, logger *zap.Logger, opts options, names []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	config.Normalize(cfg)

	pvs, err := cfg.SimPVs()
	if err != nil {
		return err
	}
	bus, err := sim.New(pvs, logger.Named("sim"))
	if err != nil {
		return err
	}
	defer bus.Close()

	client, err := ca.NewClient(cfg.Client.Options(bus, logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	lines := make([]string, len(names))
	failed := make([]bool, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, name := range names {
		g.Go(func() error {
			line, err := readOne(gctx, client, name, opts)
			if err != nil {
				logger.Debug("read failed", zap.String("pv", name), zap.Error(err))
				line = formatError(name, err)
				failed[i] = true
			}
			lines[i] = line
			return nil
		})
	}
	_ = g.Wait()

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	stats := client.Stats()
	logger.Debug("client stats",
		zap.Uint64("reads", stats.Reads),
		zap.Uint64("errors", stats.Errors),
		zap.Uint64("disconnects", stats.Disconnects),
		zap.Uint64("dropped_callbacks", stats.DroppedCallbacks),
	)

	for _, f := range failed {
		if f {
			return errSomeFailed
		}
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errSomeFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
