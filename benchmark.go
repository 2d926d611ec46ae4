package capbench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/alexshd/capbench/pool"
)

// DefaultSizes is the input-size schedule, ascending.
var DefaultSizes = []int{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
}

// Config controls a benchmark run.
type Config struct {
	Sizes    []int        // Input sizes, in run order
	Variants []Variant    // Variants, in run order within each size
	Pool     *pool.Pool   // Pool for parallel variants (nil = global pool)
	Repeat   int          // Timed passes per (size, variant); the mean is reported
	Seed     uint64       // Seeds the random pivot of the last case (0 = random)
	Out      io.Writer    // Receives the timing report
	Logger   *slog.Logger // Diagnostics (nil = slog.Default())
}

// DefaultConfig returns the full schedule over every built-in variant.
func DefaultConfig() Config {
	return Config{
		Sizes:    slices.Clone(DefaultSizes),
		Variants: DefaultVariants(),
		Repeat:   1,
		Out:      os.Stdout,
	}
}

func (c Config) validate() error {
	if len(c.Sizes) == 0 {
		return fmt.Errorf("no input sizes")
	}
	for _, s := range c.Sizes {
		if s < MinTestSetSize {
			return fmt.Errorf("input size %d below minimum %d", s, MinTestSetSize)
		}
	}
	if len(c.Variants) == 0 {
		return fmt.Errorf("no variants")
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1, got %d", c.Repeat)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) rand() *rand.Rand {
	if c.Seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(c.Seed, c.Seed^0x5bd1e995))
}

// Result is the timing of one variant over one test set.
type Result struct {
	Size     int             // Input size the test set was built for
	Variant  string          // Variant name
	Label    string          // Variant label as printed
	Cases    int             // Cases checked per pass
	Duration time.Duration   // Mean pass duration
	Samples  []time.Duration // Every timed pass
}

// Statistics summarizes repeated passes.
type Statistics struct {
	Mean   time.Duration
	Stddev time.Duration
	Min    time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

// MismatchError reports a variant disagreeing with a case's label.
type MismatchError struct {
	Size     int
	Variant  string
	Index    int // Position of the case in the test set
	InputLen int
	Expected bool
	Got      bool
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("variant %s returned %v for case %d (size %d, input length %d), expected %v",
		e.Variant, e.Got, e.Index, e.Size, e.InputLen, e.Expected)
}

// Run builds the test set once per size and times every variant over it,
// writing one line per (size, variant) to cfg.Out:
//
//	Input size: 1000
//	basic took 1.2µs
//	...
//
// The first wrong answer aborts the run with a *MismatchError. ctx is checked
// between variants; a pass in progress always completes.
func Run(ctx context.Context, cfg Config) ([]Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	log := cfg.logger()
	rng := cfg.rand()
	usesPool := len(Parallel(cfg.Variants)) > 0

	results := make([]Result, 0, len(cfg.Sizes)*len(cfg.Variants))

	for _, size := range cfg.Sizes {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		fmt.Fprintf(cfg.Out, "Input size: %d\n", size)

		buildStart := time.Now()
		set, err := BuildTestSet(size, rng)
		if err != nil {
			return results, err
		}
		log.Debug("test set built", "size", size, "elapsed", time.Since(buildStart))

		for _, v := range cfg.Variants {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			result, err := runVariant(set, size, v, cfg)
			if err != nil {
				return results, err
			}
			results = append(results, result)

			fmt.Fprintf(cfg.Out, "%s took %v\n", v.Label, result.Duration)

			if cfg.Repeat > 1 {
				stats := CalculateStatistics(result.Samples)
				log.Debug("variant timed",
					"size", size,
					"variant", v.Name,
					"mean", stats.Mean,
					"stddev", stats.Stddev,
					"min", stats.Min,
					"p50", stats.P50,
					"p95", stats.P95,
					"p99", stats.P99,
					"tail_ratio", stats.TailRatio())
				if stats.Skewed() {
					log.Info("pass durations skewed, mean dominated by slow passes",
						"size", size,
						"variant", v.Name,
						"p50", stats.P50,
						"p99", stats.P99,
						"pareto_index", stats.ParetoIndex())
				}
			}
		}

		fmt.Fprintln(cfg.Out)

		if usesPool {
			p := cfg.Pool
			if p == nil {
				p = pool.Global()
			}
			stats := p.Stats()
			log.Debug("pool activity",
				"size", size,
				"workers", stats.Workers,
				"executed", stats.Executed,
				"stolen", stats.Stolen,
				"injected", stats.Injected,
				"inline", stats.Inline)
		}
	}

	return results, nil
}

// runVariant times cfg.Repeat passes of v over set.
func runVariant(set []TestCase, size int, v Variant, cfg Config) (Result, error) {
	check := v.Bind(cfg.Pool)
	samples := make([]time.Duration, 0, cfg.Repeat)

	for range cfg.Repeat {
		elapsed, err := timePass(set, check)
		if err != nil {
			err.Size = size
			err.Variant = v.Name
			return Result{}, err
		}
		samples = append(samples, elapsed)
	}

	return Result{
		Size:     size,
		Variant:  v.Name,
		Label:    v.Label,
		Cases:    len(set),
		Duration: mean(samples),
		Samples:  samples,
	}, nil
}

// timePass checks every case in order and returns the elapsed wall time.
func timePass(set []TestCase, check Predicate) (time.Duration, *MismatchError) {
	start := time.Now()
	for i, tc := range set {
		if got := check(tc.Input); got != tc.Expected {
			return 0, &MismatchError{
				Index:    i,
				InputLen: len(tc.Input),
				Expected: tc.Expected,
				Got:      got,
			}
		}
	}
	return time.Since(start), nil
}

func mean(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}

// CalculateStatistics computes mean, spread and percentiles of samples.
func CalculateStatistics(samples []time.Duration) Statistics {
	if len(samples) == 0 {
		return Statistics{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	avg := mean(sorted)

	var variance float64
	for _, s := range sorted {
		diff := float64(s - avg)
		variance += diff * diff
	}

	at := func(pct int) time.Duration {
		return sorted[len(sorted)*pct/100]
	}

	return Statistics{
		Mean:   avg,
		Stddev: time.Duration(math.Sqrt(variance / float64(len(sorted)))),
		Min:    sorted[0],
		P50:    at(50),
		P95:    at(95),
		P99:    at(99),
	}
}
