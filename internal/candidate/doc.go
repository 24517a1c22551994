// Package candidate fans a query out to independently strategized workers,
// each of which asks a Proposer for one rewrite.
//
// Workers are seeded with examples from a catalog of previously measured
// rewrites. Allocate spreads the catalog so no two workers share an
// example while distinct examples remain.
//
// Every worker ends in exactly one of two states: a Candidate that parses
// and differs from the original, or a GenerationFailure. A proposal that
// reproduces the original query is a failure, not a candidate.
package candidate
