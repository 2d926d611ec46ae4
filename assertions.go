package capbench

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alexshd/capbench/pool"
)

// AssertTestSet checks v against every labeled case. p may be nil to use
// the global pool.
func AssertTestSet(t testing.TB, v Variant, p *pool.Pool, set []TestCase) {
	t.Helper()

	check := v.Bind(p)
	for i, tc := range set {
		if got := check(tc.Input); got != tc.Expected {
			t.Errorf("%s: case %d (length %d, prefix %q) = %v, want %v",
				v.Name, i, len(tc.Input), prefix(tc.Input, 12), got, tc.Expected)
		}
	}
}

// AssertVariantsAgree checks that every variant returns what the serial
// predicate returns on every input.
func AssertVariantsAgree(t testing.TB, variants []Variant, p *pool.Pool, inputs []string) {
	t.Helper()

	for _, v := range variants {
		check := v.Bind(p)
		for _, in := range inputs {
			want := Valid(in)
			if got := check(in); got != want {
				t.Errorf("%s disagrees with serial on length %d (prefix %q): got %v, want %v",
					v.Name, len(in), prefix(in, 12), got, want)
			}
		}
	}
}

// AssertNoRetrograde verifies fitted throughput never drops between
// consecutive measured worker counts up to maxN.
//
//	∂C/∂N > 0 for all N ≤ maxN
func AssertNoRetrograde(t testing.TB, s ScaleSeries, maxN int) {
	t.Helper()

	if s.FitErr != nil {
		t.Fatalf("%s: no USL fit: %v", s.Variant, s.FitErr)
	}

	var failures []string
	for i := 1; i < len(s.Points); i++ {
		prev, curr := s.Points[i-1].N, s.Points[i].N
		if curr > maxN {
			break
		}
		if s.Fit.PredictThroughput(curr) < s.Fit.PredictThroughput(prev) {
			failures = append(failures, fmt.Sprintf("  N=%d→%d: %.2f → %.2f passes/s",
				prev, curr, s.Fit.PredictThroughput(prev), s.Fit.PredictThroughput(curr)))
		}
	}

	if len(failures) > 0 {
		t.Errorf("%s: retrograde scaling:\n%s\nα=%.6f, β=%.6f",
			s.Variant, strings.Join(failures, "\n"), s.Fit.Alpha, s.Fit.Beta)
	}
}

// PrintAnalysis logs a series' fit and measured vs predicted throughput.
func PrintAnalysis(t testing.TB, s ScaleSeries) {
	t.Helper()

	if s.FitErr != nil {
		t.Logf("%s: no USL fit: %v", s.Variant, s.FitErr)
		return
	}

	t.Logf("=== %s ===", s.Label)
	t.Logf("  λ=%.2f passes/s  α=%.6f  β=%.6f  R²=%.4f  peak=%.1f",
		s.Fit.Lambda, s.Fit.Alpha, s.Fit.Beta, s.Fit.RSquared, s.Fit.PeakConcurrency())
	t.Logf("  N    Measured      Predicted     Efficiency")
	for _, pt := range s.Points {
		t.Logf("  %-4d %12.2f  %12.2f  %8.1f%%",
			pt.N, pt.Throughput, s.Fit.PredictThroughput(pt.N), s.Fit.Efficiency(pt.N)*100)
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
