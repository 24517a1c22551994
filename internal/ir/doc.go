// Package ir parses SQL into statement trees whose nodes carry
// content-addressed anchors.
//
// The parser is clause-level: it understands query structure (WITH, set
// operations, SELECT lists, FROM items and joins, WHERE/HAVING/QUALIFY
// conjuncts, GROUP BY, ORDER BY, LIMIT) and keeps expressions as token
// runs with nested subqueries parsed recursively. Statements that are not
// queries are kept whole as commands.
//
// Anchors are a truncated SHA-256 over the statement id, the node kind and
// the node's canonical text. Reformatting, comments and keyword case do not
// move an anchor; any change to the tokens of the subtree does.
//
// ir imports nothing internal; every other package may import it.
package ir
