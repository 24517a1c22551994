// Package fleet connects a running pipeline to an operator.
//
// Bus carries lifecycle events out: a bounded queue that producers never
// wait on. When it is full the newest event is dropped and counted.
//
// Controller carries operator decisions in. Pause and resume toggle a
// flag the pipeline reads at stage boundaries; approve releases a gate
// the pipeline waits on before publishing results.
package fleet
