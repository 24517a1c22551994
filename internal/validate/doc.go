// Package validate decides whether a candidate rewrite is a real,
// correctness-preserving improvement.
//
// Two methods are offered. Validate times each query N times, discards
// the warmup run and compares trimmed means. Race starts the original and
// every candidate on their own sessions behind a start barrier and ranks
// them by completion time.
//
// Row sets are compared as multisets unless the original query orders its
// output. A row mismatch always yields WRONG_RESULTS, whatever the timings
// say, and a timeout always yields ERROR.
package validate
