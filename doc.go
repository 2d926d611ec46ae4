// Package capbench benchmarks serial and data-parallel implementations of one
// string predicate: does a word use capitals correctly?
//
// # The Rule
//
// A word is valid when it is a single character, when everything after its
// first character is lowercase ("Leetcode", "leetcode"), or when it is all
// uppercase ("USA"). Only the ASCII letters are cased.
//
// The first two characters decide which test the rest of the word must pass
// (see ClassifyPair), so the tail check is a universal quantifier over
// independent characters and parallelizes trivially. What differs between
// implementations is how per-character results are combined, and whether the
// combination can stop at the first failure.
//
// # Variants
//
//	serial              sequential scan, stops at first failure
//	par_all             parallel "all", first failure stops every worker
//	par_find_any_false  parallel map + search for a false
//	par_map_reduce_and  parallel map + AND reduction, visits every character
//	par_try_fold        per-chunk fold that abandons a chunk on failure
//
// Words shorter than ParallelThreshold always take the serial path. The
// parallel variants run on a work-stealing pool (package pool) through the
// combinators of package par.
//
// # Quick Start
//
//	results, err := capbench.Run(ctx, capbench.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Run prints, per input size:
//
//	Input size: 1000
//	basic took 2.1µs
//	parallel all took 38.2µs
//	parallel rayon_all took 35.9µs
//	parallel map took 44.7µs
//	parallel try fold took 40.3µs
//
// Every pass also asserts each case's expected answer; a wrong answer stops
// the run with a *MismatchError.
//
// # Scaling
//
// RunScaling repeats the parallel variants on pools of increasing size and
// fits the Universal Scalability Law
//
//	C(N) = λN / (1 + α(N-1) + βN(N-1))
//
// to the measured throughput, exposing contention (α) and coordination (β)
// per combinator.
package capbench
