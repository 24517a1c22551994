// Package executor defines the database capability the rest of qfleet runs
// against. Callers supply an Executor; nothing in qfleet opens connections
// on its own.
//
// Three optional capabilities extend the base interface:
//   - Sessioner hands out connections owned by a single timing run.
//   - Recoverer re-establishes a broken connection between candidates.
//   - Canceler aborts an in-flight statement on a best-effort basis.
//
// Execution failures are reported as ExecutionError, per-execution cutoffs
// as ExecutionTimeout.
package executor
