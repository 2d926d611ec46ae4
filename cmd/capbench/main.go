// Command capbench times the capitalization predicate variants across input
// sizes from 10³ to 10⁹ characters.
//
// Run without arguments for the full schedule. The worker count of the pool
// comes from --workers, else CAPBENCH_NUM_WORKERS, else GOMAXPROCS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alexshd/capbench"
	"github.com/alexshd/capbench/pool"
)

// options are the flags shared by every command.
type options struct {
	variants []string
	seed     uint64
	logLevel string
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&o.variants, "variants", nil, "variants to run, in order (default all)")
	fs.Uint64Var(&o.seed, "seed", 0, "seed for the random test case (0 = random)")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// setup installs the stderr logger.
func (o *options) setup(stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}
	slog.SetDefault(newLogger(stderr, level))
	return nil
}

// setupGlobalPool sizes the global pool from --workers, falling back to the
// environment. Only the benchmark runs on the global pool; scale builds its
// own per level.
func setupGlobalPool(workers int) error {
	if workers < 0 {
		return fmt.Errorf("invalid --workers %d", workers)
	}

	cfg := pool.Config{NumWorkers: workers}
	if workers == 0 {
		var err error
		if cfg, err = pool.ConfigFromEnv(); err != nil {
			return err
		}
	}
	switch err := pool.InitGlobal(cfg); {
	case errors.Is(err, pool.ErrGlobalInitialized):
		if n := pool.Global().NumWorkers(); n != cfg.NumWorkers {
			slog.Warn("pool already running, worker count unchanged", "workers", n, "requested", cfg.NumWorkers)
		}
	case err != nil:
		return err
	}
	slog.Debug("pool configured", "workers", cfg.NumWorkers)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

func newRootCmd() *cobra.Command {
	var (
		opts    options
		workers int
		sizes   []int
		repeat  int
	)

	cmd := &cobra.Command{
		Use:   "capbench",
		Short: "Benchmark serial and parallel capitalization checks",
		Long: `Builds a labeled test set for each input size and times every
predicate variant over it, asserting each answer. Any wrong answer aborts
with a non-zero exit status.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			variants, err := capbench.Select(opts.variants)
			if err != nil {
				return err
			}
			if err := setupGlobalPool(workers); err != nil {
				return err
			}

			cfg := capbench.DefaultConfig()
			cfg.Sizes = sizes
			cfg.Variants = variants
			cfg.Repeat = repeat
			cfg.Seed = opts.seed
			cfg.Out = cmd.OutOrStdout()

			_, err = capbench.Run(cmd.Context(), cfg)
			return err
		},
	}

	opts.register(cmd.PersistentFlags())
	cmd.Flags().IntVar(&workers, "workers", 0, "pool worker count (0 = $"+pool.EnvNumWorkers+" or GOMAXPROCS)")
	cmd.Flags().IntSliceVar(&sizes, "sizes", slices.Clone(capbench.DefaultSizes), "input sizes, in run order")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "timed passes per size and variant; the mean is printed")

	cmd.AddCommand(newScaleCmd(&opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var mismatch *capbench.MismatchError
		if errors.As(err, &mismatch) {
			slog.Error("correctness violation",
				"variant", mismatch.Variant,
				"size", mismatch.Size,
				"case", mismatch.Index,
				"expected", mismatch.Expected,
				"got", mismatch.Got)
		} else {
			slog.Error("capbench failed", "err", err)
		}
		stop()
		os.Exit(1)
	}
}
