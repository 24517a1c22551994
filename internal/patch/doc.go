// Package patch applies ordered, atomic structural edits to parsed SQL.
//
// A Plan is a list of steps addressed by statement id and node anchor. Steps
// run in order against a private clone of the statements; anchors are
// recomputed after every step, so each step resolves against the tree the
// previous steps produced. The first failing step aborts the plan and no
// output SQL is produced.
//
// Op is a closed union: InsertCTE, ReplaceExprSubtree, ReplaceWherePredicate
// and DeleteExprSubtree. Dispatch happens in a single type switch in
// applyStep.
package patch
