package capbench

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/alexshd/capbench/pool"
)

// ScaleConfig controls a worker-scaling study.
//
// CRITICAL: levels above GOMAXPROCS measure the Go scheduler multiplexing
// workers onto fewer threads, not the variants.
type ScaleConfig struct {
	Size     int          // Input size of the test set
	Levels   []int        // Worker counts, each run on a fresh pool
	Rounds   int          // Test-set passes timed per (level, variant)
	Variants []Variant    // Variants to study; serial ones are skipped
	Seed     uint64       // Seeds the random pivot of the last case (0 = random)
	Out      io.Writer    // Receives the report
	Logger   *slog.Logger // Diagnostics (nil = slog.Default())
}

// DefaultScaleConfig studies every parallel variant at 10⁷ characters over
// power-of-two worker counts up to GOMAXPROCS.
func DefaultScaleConfig() ScaleConfig {
	return ScaleConfig{
		Size:     10_000_000,
		Levels:   DefaultLevels(runtime.GOMAXPROCS(0)),
		Rounds:   5,
		Variants: Parallel(DefaultVariants()),
		Out:      os.Stdout,
	}
}

// DefaultLevels returns 1, 2, 4, ... up to limit, always ending at limit.
func DefaultLevels(limit int) []int {
	var levels []int
	for n := 1; n < limit; n *= 2 {
		levels = append(levels, n)
	}
	return append(levels, max(limit, 1))
}

// ScalePoint is one variant's measurement at one worker count.
type ScalePoint struct {
	N          int           // Workers
	Passes     int           // Test-set passes timed
	Duration   time.Duration // Total time for all passes
	Throughput float64       // Passes per second
}

// ScaleSeries is one variant's measurements across worker counts.
type ScaleSeries struct {
	Variant string
	Label   string
	Points  []ScalePoint
	Fit     USLCoefficients
	FitErr  error // Set when the points could not be fitted
}

// USLCoefficients are the Universal Scalability Law parameters of
//
//	C(N) = λN / (1 + α(N-1) + βN(N-1))
type USLCoefficients struct {
	Lambda   float64 // λ: single-worker throughput
	Alpha    float64 // α: contention
	Beta     float64 // β: coordination
	RSquared float64 // R²: goodness of fit (1.0 = perfect)
}

// RunScaling times each parallel variant over one test set at every worker
// level and fits the USL per variant.
func RunScaling(ctx context.Context, cfg ScaleConfig) ([]ScaleSeries, error) {
	variants := Parallel(cfg.Variants)
	switch {
	case len(variants) == 0:
		return nil, fmt.Errorf("no parallel variants to study")
	case len(cfg.Levels) == 0:
		return nil, fmt.Errorf("no worker levels")
	case cfg.Rounds < 1:
		return nil, fmt.Errorf("rounds must be at least 1, got %d", cfg.Rounds)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	set, err := BuildTestSet(cfg.Size, Config{Seed: cfg.Seed}.rand())
	if err != nil {
		return nil, err
	}

	series := make([]ScaleSeries, len(variants))
	for i, v := range variants {
		series[i] = ScaleSeries{Variant: v.Name, Label: v.Label}
	}

	fmt.Fprintf(cfg.Out, "Input size: %d\n", cfg.Size)

	for _, n := range cfg.Levels {
		if err := ctx.Err(); err != nil {
			return series, err
		}

		p, err := pool.New(pool.Config{NumWorkers: n})
		if err != nil {
			return series, fmt.Errorf("level %d: %w", n, err)
		}

		for i, v := range variants {
			pt, err := measureLevel(set, cfg.Size, v, p, cfg.Rounds)
			if err != nil {
				_ = p.Close()
				return series, err
			}
			series[i].Points = append(series[i].Points, pt)
			fmt.Fprintf(cfg.Out, "%s with %d workers took %v (%.2f passes/s)\n",
				v.Label, n, pt.Duration, pt.Throughput)
		}

		stats := p.Stats()
		log.Debug("level done", "workers", n, "executed", stats.Executed, "stolen", stats.Stolen)

		if err := p.Close(); err != nil {
			return series, fmt.Errorf("level %d: close pool: %w", n, err)
		}
	}

	fmt.Fprintln(cfg.Out)

	for i := range series {
		s := &series[i]
		s.Fit, s.FitErr = FitUSL(s.Points)
		if s.FitErr != nil {
			log.Warn("no USL fit", "variant", s.Variant, "err", s.FitErr)
			continue
		}
		fmt.Fprintf(cfg.Out, "%s: λ=%.2f α=%.6f β=%.6f R²=%.4f peak=%.1f workers\n",
			s.Label, s.Fit.Lambda, s.Fit.Alpha, s.Fit.Beta, s.Fit.RSquared, s.Fit.PeakConcurrency())
	}

	return series, nil
}

func measureLevel(set []TestCase, size int, v Variant, p *pool.Pool, rounds int) (ScalePoint, error) {
	check := v.Bind(p)

	var total time.Duration
	for range rounds {
		elapsed, err := timePass(set, check)
		if err != nil {
			err.Size = size
			err.Variant = v.Name
			return ScalePoint{}, err
		}
		total += elapsed
	}

	pt := ScalePoint{N: p.NumWorkers(), Passes: rounds, Duration: total}
	if total > 0 {
		pt.Throughput = float64(rounds) / total.Seconds()
	}
	return pt, nil
}

// FitUSL fits the USL to measured throughput by least squares on its
// linearized form
//
//	N/C(N) = 1/λ + (α/λ)(N-1) + (β/λ)N(N-1)
//
// A negative β with positive α is treated as noise and the data is refitted
// with β = 0. Points with zero throughput are ignored.
func FitUSL(points []ScalePoint) (USLCoefficients, error) {
	var (
		used []ScalePoint
		rows [][]float64
		ys   []float64
	)
	for _, pt := range points {
		if pt.Throughput <= 0 {
			continue
		}
		used = append(used, pt)
		n := float64(pt.N)
		rows = append(rows, []float64{1, n - 1, n * (n - 1)})
		ys = append(ys, n/pt.Throughput)
	}
	if len(rows) < 3 {
		return USLCoefficients{}, fmt.Errorf("need at least 3 data points, got %d", len(rows))
	}

	var c USLCoefficients
	b, ok := leastSquares(rows, ys, 3)
	if ok {
		c = USLCoefficients{Lambda: 1 / b[0], Alpha: b[1] / b[0], Beta: b[2] / b[0]}
	}
	if !ok || (c.Beta < 0 && c.Alpha > 0) {
		b, ok = leastSquares(rows, ys, 2)
		if !ok {
			return USLCoefficients{}, fmt.Errorf("degenerate data: need distinct worker counts")
		}
		c = USLCoefficients{Lambda: 1 / b[0], Alpha: b[1] / b[0]}
	}

	c.RSquared = rSquared(used, c)
	return c, nil
}

// leastSquares solves the normal equations for the first k columns of rows.
func leastSquares(rows [][]float64, ys []float64, k int) ([]float64, bool) {
	// Augmented matrix [XᵀX | Xᵀy].
	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, k+1)
	}
	for r, row := range rows {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				m[i][j] += row[i] * row[j]
			}
			m[i][k] += row[i] * ys[r]
		}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-10 {
			return nil, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := col + 1; r < k; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c <= k; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	x := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		sum := m[i][k]
		for j := i + 1; j < k; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, true
}

func rSquared(points []ScalePoint, c USLCoefficients) float64 {
	var avg float64
	for _, pt := range points {
		avg += pt.Throughput
	}
	avg /= float64(len(points))

	var ssRes, ssTot float64
	for _, pt := range points {
		d := pt.Throughput - c.PredictThroughput(pt.N)
		ssRes += d * d
		t := pt.Throughput - avg
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// PredictThroughput estimates throughput with n workers.
func (c USLCoefficients) PredictThroughput(n int) float64 {
	if n <= 0 {
		return 0
	}
	N := float64(n)
	return c.Lambda * N / (1 + c.Alpha*(N-1) + c.Beta*N*(N-1))
}

// Efficiency returns predicted over ideal linear throughput at n workers.
// 1.0 = perfect linear scaling.
func (c USLCoefficients) Efficiency(n int) float64 {
	ideal := c.Lambda * float64(n)
	if ideal == 0 {
		return 0
	}
	return c.PredictThroughput(n) / ideal
}

// PeakConcurrency is the worker count of maximum predicted throughput,
// sqrt((1-α)/β). It is +Inf without a coordination penalty and 0 when
// contention alone prevents any scaling.
func (c USLCoefficients) PeakConcurrency() float64 {
	if c.Beta <= 0 {
		return math.Inf(1)
	}
	if c.Alpha >= 1 {
		return 0
	}
	return math.Sqrt((1 - c.Alpha) / c.Beta)
}

// IsRetrograde reports whether n workers is at or past the peak, where
// adding workers lowers throughput.
func (c USLCoefficients) IsRetrograde(n int) bool {
	peak := c.PeakConcurrency()
	if math.IsInf(peak, 1) {
		return false
	}
	return float64(n) >= peak
}
