package capbench

import (
	"github.com/alexshd/capbench/par"
	"github.com/alexshd/capbench/pool"
)

// ParallelThreshold is the word length, in bytes, below which every variant
// answers with the serial predicate. Shorter words cost less to scan than to
// dispatch.
const ParallelThreshold = 1000

// CharClass is the per-character test a word's tail must pass, chosen from
// its first two characters.
type CharClass uint8

const (
	AlwaysFalse CharClass = iota // No tail can make the word valid
	AllLower                     // Tail must be 'a'..'z'
	AllUpper                     // Tail must be 'A'..'Z'
)

func (c CharClass) String() string {
	switch c {
	case AllLower:
		return "all-lower"
	case AllUpper:
		return "all-upper"
	default:
		return "always-false"
	}
}

// Test reports whether b is acceptable in the tail of a word of class c.
func (c CharClass) Test(b byte) bool {
	switch c {
	case AllLower:
		return isLower(b)
	case AllUpper:
		return isUpper(b)
	default:
		return false
	}
}

// ClassifyPair picks the tail test from the first two characters:
// a lowercase second character demands a lowercase tail whatever the first
// one is; two uppercase characters demand an uppercase tail; anything else
// is invalid.
func ClassifyPair(c0, c1 byte) CharClass {
	switch {
	case isLower(c1):
		return AllLower
	case isUpper(c0) && isUpper(c1):
		return AllUpper
	default:
		return AlwaysFalse
	}
}

func isLower(b byte) bool { return 'a' <= b && b <= 'z' }
func isUpper(b byte) bool { return 'A' <= b && b <= 'Z' }
func isFalse(b bool) bool { return !b }

// Valid reports whether word is capitalized correctly: a single character,
// all lowercase after the first character, or all uppercase. Only ASCII
// letters count as cased; any other byte in the tail makes the word invalid.
func Valid(word string) bool {
	if len(word) < 2 {
		return true
	}

	class := ClassifyPair(word[0], word[1])
	if class == AlwaysFalse {
		return false
	}
	for i := 2; i < len(word); i++ {
		if !class.Test(word[i]) {
			return false
		}
	}
	return true
}

// parallelTail splits a word long enough for the parallel path into its tail
// test and the tail itself.
func parallelTail(word string) (CharClass, string, bool) {
	if len(word) < ParallelThreshold {
		return AlwaysFalse, "", false
	}
	return ClassifyPair(word[0], word[1]), word[2:], true
}

// ValidParAll is Valid with the tail checked by a parallel universal
// quantifier; the first failing character stops every worker.
func ValidParAll(p *pool.Pool, word string) bool {
	class, tail, ok := parallelTail(word)
	if !ok {
		return Valid(word)
	}
	return par.All(p, tail, class.Test)
}

// ValidParFindAnyFalse maps the tail to per-character results in parallel
// and searches them for a failure.
func ValidParFindAnyFalse(p *pool.Pool, word string) bool {
	class, tail, ok := parallelTail(word)
	if !ok {
		return Valid(word)
	}
	_, found := par.FindAny(p, tail, class.Test, isFalse)
	return !found
}

// ValidParMapReduceAnd maps the tail in parallel and ANDs every result. It
// never stops early, so its cost is linear in the word length on every input.
func ValidParMapReduceAnd(p *pool.Pool, word string) bool {
	class, tail, ok := parallelTail(word)
	if !ok {
		return Valid(word)
	}
	return par.MapReduce(p, tail, class.Test,
		func() bool { return true },
		func(l, r bool) bool { return l && r },
	)
}

// ValidParTryFold folds each chunk of the tail while the running AND holds,
// abandoning the chunk at the first failing character.
func ValidParTryFold(p *pool.Pool, word string) bool {
	class, tail, ok := parallelTail(word)
	if !ok {
		return Valid(word)
	}
	all, ok := par.TryFold(p, tail,
		func() bool { return true },
		func(acc bool, b byte) (bool, bool) {
			next := acc && class.Test(b)
			return next, next
		},
		func(l, r bool) (bool, bool) { return l && r, true },
	)
	return ok && all
}
