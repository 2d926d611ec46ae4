// Package par runs data-parallel reductions over the bytes of a string on a
// work-stealing pool.
//
// Every combinator splits the input into contiguous halves, forking each
// split through the pool, until the adaptive splitter runs out of budget;
// leaves then scan their sub-range sequentially. Visit order across leaves is
// unspecified, so the functions passed in must be pure and the reductions
// commutative.
//
// All, FindAny and TryFold share a stop flag between leaves: once the answer
// is known no further splits are made and running leaves stop at their next
// poll. MapReduce never stops early and visits every byte.
package par

import (
	"sync/atomic"

	"github.com/alexshd/capbench/pool"
)

const (
	// MinLeaf is the shortest range the splitter will cut in two.
	MinLeaf = 64

	// pollEvery is how many bytes a leaf scans between stop-flag checks.
	pollEvery = 1024
)

// splitter budgets how many more times a range may be halved. The budget
// starts at the worker count and halves on every split; a range that
// migrated to another worker gets its budget topped back up, since stealing
// means some worker ran dry.
type splitter struct {
	splits  int
	workers int
}

func newSplitter(workers int) splitter {
	return splitter{splits: workers, workers: workers}
}

func (s *splitter) try(n int, migrated bool) bool {
	if n/2 < MinLeaf {
		return false
	}
	if migrated {
		s.splits = max(s.workers, s.splits/2)
		return true
	}
	if s.splits > 0 {
		s.splits /= 2
		return true
	}
	return false
}

// reducer describes one divide-and-conquer pass.
type reducer[R any] struct {
	leaf   func(s string) R
	reduce func(l, r R) R

	// full reports that the answer is settled; nil means never.
	full func() bool
	// empty stands in for subtrees skipped after full turned true.
	empty R
}

func (rd *reducer[R]) settled() bool {
	return rd.full != nil && rd.full()
}

func run[R any](p *pool.Pool, s string, rd *reducer[R]) R {
	var out R
	p.Install(func(w *pool.Worker) {
		out = descend(w, false, s, newSplitter(p.NumWorkers()), rd)
	})
	return out
}

func descend[R any](w *pool.Worker, migrated bool, s string, sp splitter, rd *reducer[R]) R {
	if rd.settled() {
		return rd.empty
	}
	if !sp.try(len(s), migrated) {
		return rd.leaf(s)
	}

	mid := len(s) / 2
	var left, right R
	w.JoinContext(
		func(w *pool.Worker, m bool) { left = descend(w, m, s[:mid], sp, rd) },
		func(w *pool.Worker, m bool) { right = descend(w, m, s[mid:], sp, rd) },
	)
	return rd.reduce(left, right)
}

// All reports whether f holds for every byte of s. The first counterexample
// found by any worker stops the others.
func All(p *pool.Pool, s string, f func(byte) bool) bool {
	var failed atomic.Bool

	return run(p, s, &reducer[bool]{
		leaf: func(s string) bool {
			for len(s) > 0 && !failed.Load() {
				n := min(len(s), pollEvery)
				for i := 0; i < n; i++ {
					if !f(s[i]) {
						failed.Store(true)
						return false
					}
				}
				s = s[n:]
			}
			return true
		},
		reduce: func(l, r bool) bool { return l && r },
		full:   failed.Load,
		empty:  true,
	})
}

// FindAny maps every byte of s through m and returns some mapped value that
// satisfies match. Which one is unspecified when several do. The search
// stops across workers as soon as one is found.
func FindAny[T any](p *pool.Pool, s string, m func(byte) T, match func(T) bool) (T, bool) {
	var found atomic.Pointer[T]
	isFound := func() bool { return found.Load() != nil }

	run(p, s, &reducer[bool]{
		leaf: func(s string) bool {
			for len(s) > 0 && !isFound() {
				n := min(len(s), pollEvery)
				for i := 0; i < n; i++ {
					if v := m(s[i]); match(v) {
						found.CompareAndSwap(nil, &v)
						return true
					}
				}
				s = s[n:]
			}
			return false
		},
		reduce: func(l, r bool) bool { return l || r },
		full:   isFound,
	})

	if v := found.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}

// MapReduce maps every byte of s through m and combines the results with op,
// starting each leaf from identity(). op must be associative and
// commutative, and identity() must be its neutral element. Every byte is
// visited regardless of intermediate results.
func MapReduce[T any](p *pool.Pool, s string, m func(byte) T, identity func() T, op func(T, T) T) T {
	return run(p, s, &reducer[T]{
		leaf: func(s string) T {
			acc := identity()
			for i := 0; i < len(s); i++ {
				acc = op(acc, m(s[i]))
			}
			return acc
		},
		reduce: op,
	})
}

type attempt[A any] struct {
	acc A
	ok  bool
}

// TryFold folds each leaf sequentially from init(), stopping the leaf at the
// first step that reports false, then combines leaf results with reduce.
// The overall result is ok only if every fold step and every reduction
// succeeded; the first failure stops further splitting and the remaining
// leaves.
func TryFold[A any](p *pool.Pool, s string, init func() A, fold func(A, byte) (A, bool), reduce func(A, A) (A, bool)) (A, bool) {
	var stopped atomic.Bool

	res := run(p, s, &reducer[attempt[A]]{
		leaf: func(s string) attempt[A] {
			acc := init()
			for len(s) > 0 {
				if stopped.Load() {
					return attempt[A]{}
				}
				n := min(len(s), pollEvery)
				for i := 0; i < n; i++ {
					var ok bool
					if acc, ok = fold(acc, s[i]); !ok {
						stopped.Store(true)
						return attempt[A]{}
					}
				}
				s = s[n:]
			}
			return attempt[A]{acc: acc, ok: true}
		},
		reduce: func(l, r attempt[A]) attempt[A] {
			if !l.ok || !r.ok {
				return attempt[A]{}
			}
			acc, ok := reduce(l.acc, r.acc)
			if !ok {
				stopped.Store(true)
				return attempt[A]{}
			}
			return attempt[A]{acc: acc, ok: true}
		},
		full: stopped.Load,
	})

	return res.acc, res.ok
}
