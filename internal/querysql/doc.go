// Package querysql builds the dialect-specific SQL qfleet issues on its own
// behalf: EXPLAIN wrappers, catalog queries and row counts. It also
// classifies the side effects of statements a candidate carries.
//
// Catalog queries that take a table name are parameterized; identifiers
// that must be inlined are quoted with the dialect's quoting rules.
package querysql
