package capbench

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// TestSetLen is the number of cases BuildTestSet returns.
	TestSetLen = 15

	// MinTestSetSize is the smallest n for which every large case carries
	// the right label. Below 4 the half-and-half word is "Aa", which is valid.
	MinTestSetSize = 4
)

// ErrSizeTooSmall is returned when the large cases cannot be formed.
var ErrSizeTooSmall = errors.New("test-set size too small")

// TestCase is one labeled input.
type TestCase struct {
	Input    string
	Expected bool
}

// BuildTestSet returns the fixed-order cases for size n: nine short literals
// followed by six words of length about n. rng places the single uppercase
// letter of the last case; nil uses a randomly seeded generator.
//
// Each large word is allocated exactly once, at its final length.
func BuildTestSet(n int, rng *rand.Rand) ([]TestCase, error) {
	if n < MinTestSetSize {
		return nil, fmt.Errorf("build test set for n=%d (min %d): %w", n, MinTestSetSize, ErrSizeTooSmall)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	// The pivot is never 0: "O" followed by lowercase letters is a valid word.
	pivot := 1 + rng.IntN(n-1)

	return []TestCase{
		{"USA", true},
		{"FlaG", false},
		{"Leetcode", true},
		{"leetcode", true},
		{"LEETCODE", true},
		{"LeetCode", false},
		{"uSA", false},
		{"A", true},
		{"a", true},
		{compose(run{'A', n}), true},
		{compose(run{'a', n}), true},
		{compose(run{'A', 1}, run{'a', n - 1}), true},
		{compose(run{'A', n / 2}, run{'a', n / 2}), false},
		{compose(run{'a', n - 1}, run{'Z', 1}), false},
		{compose(run{'o', pivot}, run{'O', 1}, run{'o', n - pivot - 1}), false},
	}, nil
}

// run is n repetitions of one byte.
type run struct {
	b byte
	n int
}

// compose concatenates runs into a single allocation.
func compose(runs ...run) string {
	total := 0
	for _, r := range runs {
		total += r.n
	}

	var sb strings.Builder
	sb.Grow(total)

	var block [4096]byte
	for _, r := range runs {
		chunk := block[:min(r.n, len(block))]
		for i := range chunk {
			chunk[i] = r.b
		}
		for left := r.n; left > 0; left -= len(chunk) {
			if left < len(chunk) {
				chunk = chunk[:left]
			}
			sb.Write(chunk)
		}
	}
	return sb.String()
}
