package capbench

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uslPoints(lambda, alpha, beta float64, levels ...int) []ScalePoint {
	c := USLCoefficients{Lambda: lambda, Alpha: alpha, Beta: beta}
	pts := make([]ScalePoint, 0, len(levels))
	for _, n := range levels {
		pts = append(pts, ScalePoint{N: n, Throughput: c.PredictThroughput(n)})
	}
	return pts
}

// TestFitUSL_LinearScaling fits ideal linear data: C(N) = 1000N.
func TestFitUSL_LinearScaling(t *testing.T) {
	coeffs, err := FitUSL(uslPoints(1000, 0, 0, 1, 2, 4, 8))
	require.NoError(t, err)

	t.Logf("λ=%.2f, α=%.6f, β=%.6f, R²=%.4f", coeffs.Lambda, coeffs.Alpha, coeffs.Beta, coeffs.RSquared)

	assert.InDelta(t, 1000, coeffs.Lambda, 1e-6)
	assert.InDelta(t, 0, coeffs.Alpha, 1e-9)
	assert.InDelta(t, 0, coeffs.Beta, 1e-9)
	assert.InDelta(t, 1, coeffs.RSquared, 1e-9)
	assert.InDelta(t, 1, coeffs.Efficiency(8), 1e-9)
}

// TestFitUSL_WithContention recovers α from C(N) = λN / (1 + 0.1(N-1)).
func TestFitUSL_WithContention(t *testing.T) {
	coeffs, err := FitUSL(uslPoints(1000, 0.1, 0, 1, 2, 4, 8))
	require.NoError(t, err)

	assert.InDelta(t, 0.1, coeffs.Alpha, 1e-6)
	assert.InDelta(t, 0, coeffs.Beta, 1e-6)
	assert.True(t, math.IsInf(coeffs.PeakConcurrency(), 1))
}

func TestFitUSL_WithCoordination(t *testing.T) {
	coeffs, err := FitUSL(uslPoints(500, 0.05, 0.01, 1, 2, 4, 8, 16))
	require.NoError(t, err)

	assert.InDelta(t, 500, coeffs.Lambda, 1e-3)
	assert.InDelta(t, 0.05, coeffs.Alpha, 1e-6)
	assert.InDelta(t, 0.01, coeffs.Beta, 1e-6)

	peak := coeffs.PeakConcurrency()
	assert.InDelta(t, math.Sqrt(0.95/0.01), peak, 1e-3)
	assert.False(t, coeffs.IsRetrograde(8))
	assert.True(t, coeffs.IsRetrograde(16))
}

func TestFitUSL_NegativeBetaRefits(t *testing.T) {
	// Superlinear at the top end drives the 3-parameter β negative.
	pts := []ScalePoint{
		{N: 1, Throughput: 1000},
		{N: 2, Throughput: 1800},
		{N: 4, Throughput: 3200},
		{N: 8, Throughput: 7000},
	}
	coeffs, err := FitUSL(pts)
	require.NoError(t, err)
	assert.Equal(t, 0.0, coeffs.Beta)
}

func TestFitUSL_TooFewPoints(t *testing.T) {
	_, err := FitUSL(uslPoints(1000, 0, 0, 1, 2))
	assert.Error(t, err)

	pts := append(uslPoints(1000, 0, 0, 1, 2), ScalePoint{N: 4})
	_, err = FitUSL(pts)
	assert.Error(t, err, "zero-throughput points are ignored")
}

func TestFitUSL_RSquaredSkipsZeroThroughput(t *testing.T) {
	pts := append(uslPoints(500, 0.05, 0.01, 1, 2, 4, 8), ScalePoint{N: 16})
	coeffs, err := FitUSL(pts)
	require.NoError(t, err)
	assert.InDelta(t, 1, coeffs.RSquared, 1e-9)
}

func TestFitUSL_RepeatedLevels(t *testing.T) {
	_, err := FitUSL(uslPoints(1000, 0, 0, 2, 2, 2))
	assert.Error(t, err)
}

func TestPeakConcurrency_Bounds(t *testing.T) {
	assert.True(t, math.IsInf(USLCoefficients{Alpha: 0.2}.PeakConcurrency(), 1))
	assert.Equal(t, 0.0, USLCoefficients{Alpha: 1.5, Beta: 0.1}.PeakConcurrency())
	assert.Equal(t, 0.0, USLCoefficients{Lambda: 1}.PredictThroughput(0))
	assert.Equal(t, 0.0, USLCoefficients{}.Efficiency(4))
}

func TestDefaultLevels(t *testing.T) {
	assert.Equal(t, []int{1}, DefaultLevels(1))
	assert.Equal(t, []int{1, 2, 4, 8}, DefaultLevels(8))
	assert.Equal(t, []int{1, 2, 4, 6}, DefaultLevels(6))
	assert.Equal(t, []int{1}, DefaultLevels(0))
}

func TestAssertNoRetrograde(t *testing.T) {
	s := ScaleSeries{Variant: "synthetic", Label: "synthetic", Points: uslPoints(1000, 0.02, 0.0001, 1, 2, 4, 8)}
	var err error
	s.Fit, err = FitUSL(s.Points)
	require.NoError(t, err)

	AssertNoRetrograde(t, s, 8)
	PrintAnalysis(t, s)
}

func TestRunScaling_Small(t *testing.T) {
	var out bytes.Buffer

	cfg := DefaultScaleConfig()
	cfg.Size = 20_000
	cfg.Levels = []int{1, 2, 3}
	cfg.Rounds = 2
	cfg.Seed = 9
	cfg.Out = &out
	cfg.Variants = DefaultVariants()

	series, err := RunScaling(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, series, 4, "serial variant skipped")

	for _, s := range series {
		require.Len(t, s.Points, 3)
		for i, pt := range s.Points {
			assert.Equal(t, cfg.Levels[i], pt.N)
			assert.Equal(t, 2, pt.Passes)
			assert.Greater(t, pt.Throughput, 0.0)
		}
		PrintAnalysis(t, s)
	}

	report := out.String()
	assert.True(t, strings.HasPrefix(report, "Input size: 20000\n"))
	assert.Contains(t, report, "parallel map with 3 workers took ")
}

func TestRunScaling_InvalidConfig(t *testing.T) {
	cfg := DefaultScaleConfig()
	cfg.Variants = []Variant{mustLookup(t, "serial")}
	_, err := RunScaling(context.Background(), cfg)
	assert.Error(t, err)

	cfg = DefaultScaleConfig()
	cfg.Levels = nil
	_, err = RunScaling(context.Background(), cfg)
	assert.Error(t, err)

	cfg = DefaultScaleConfig()
	cfg.Levels = []int{0}
	cfg.Size = 1000
	_, err = RunScaling(context.Background(), cfg)
	assert.Error(t, err)
}
