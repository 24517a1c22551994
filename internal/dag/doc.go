// Package dag decomposes a parsed query into logical blocks and the read
// dependencies between them.
//
// A block is a CTE, the main query, a subquery or a derived table. An edge
// A -> B means block B reads A's output. The graph is built once per
// statement and is deterministic for identical input.
//
// AttributeCost maps an execution plan onto the blocks. Operators that
// cannot be matched to exactly one block are left out of the percentages.
package dag
