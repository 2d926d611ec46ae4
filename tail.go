package capbench

import "math"

// SkewedTailRatio is the P99/P50 ratio above which repeated passes are
// considered skewed. Below it the spread looks Gaussian and the mean can be
// trusted; above it a few slow passes dominate the mean.
const SkewedTailRatio = 3.0

// TailRatio returns P99/P50, or 1 when there are no samples.
//
// Interpretation:
//   - Ratio < 3:  passes agree, the mean is meaningful
//   - Ratio 3-10: a few slow passes (first-touch page faults, GC)
//   - Ratio > 10: power-law tail, report P50 rather than the mean
func (s Statistics) TailRatio() float64 {
	if s.P50 <= 0 {
		return 1
	}
	return float64(s.P99) / float64(s.P50)
}

// Skewed reports whether the tail dominates the samples.
func (s Statistics) Skewed() bool {
	return s.TailRatio() > SkewedTailRatio
}

// ParetoIndex estimates the Pareto α of the pass durations from the
// P50/P99 quantile pair.
//
// For P(X > x) = (xₘ/x)^α the quantiles satisfy P99/P50 = 50^(1/α), so
// α = ln 50 / ln(P99/P50). α ≤ 2 means infinite variance: more passes will
// not make the mean converge. Returns 0 when the samples have no tail.
func (s Statistics) ParetoIndex() float64 {
	ratio := s.TailRatio()
	if ratio <= 1 {
		return 0
	}
	return math.Log(50) / math.Log(ratio)
}
