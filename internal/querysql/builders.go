package querysql

import (
	"fmt"

	"github.com/roach88/qfleet/internal/ir"
)

// ExplainFormat tells the executor how to decode EXPLAIN output.
type ExplainFormat int

const (
	// FormatSQLiteQueryPlan is EXPLAIN QUERY PLAN: rows of (id, parent,
	// notused, detail).
	FormatSQLiteQueryPlan ExplainFormat = iota + 1
	// FormatPostgresJSON is a single row holding EXPLAIN (FORMAT JSON).
	FormatPostgresJSON
)

// Explain wraps sql in the dialect's plan statement.
func Explain(d ir.Dialect, sql string) (string, ExplainFormat, error) {
	switch d {
	case ir.DialectSQLite:
		return "EXPLAIN QUERY PLAN " + sql, FormatSQLiteQueryPlan, nil
	case ir.DialectPostgres:
		return "EXPLAIN (FORMAT JSON) " + sql, FormatPostgresJSON, nil
	default:
		return "", 0, fmt.Errorf("explain: unsupported dialect %s", d)
	}
}

// TablesQuery lists user tables, ordered by name.
func TablesQuery(d ir.Dialect) (string, error) {
	switch d {
	case ir.DialectSQLite:
		return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name COLLATE BINARY", nil
	case ir.DialectPostgres, ir.DialectDuckDB, ir.DialectMySQL, ir.DialectSnowflake, ir.DialectANSI:
		return "SELECT table_name FROM information_schema.tables " +
			"WHERE table_schema NOT IN ('information_schema', 'pg_catalog') ORDER BY table_name", nil
	default:
		return "", fmt.Errorf("tables query: unsupported dialect %s", d)
	}
}

// ColumnsQuery lists (name, type) for one table in declaration order.
// The table name is always a bind parameter.
func ColumnsQuery(d ir.Dialect, table string) (string, []any, error) {
	switch d {
	case ir.DialectSQLite:
		return "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", []any{table}, nil
	case ir.DialectPostgres:
		return "SELECT column_name, data_type FROM information_schema.columns " +
			"WHERE table_name = $1 ORDER BY ordinal_position", []any{table}, nil
	case ir.DialectDuckDB, ir.DialectMySQL, ir.DialectSnowflake, ir.DialectANSI:
		return "SELECT column_name, data_type FROM information_schema.columns " +
			"WHERE table_name = ? ORDER BY ordinal_position", []any{table}, nil
	default:
		return "", nil, fmt.Errorf("columns query: unsupported dialect %s", d)
	}
}

// CountQuery counts the rows of table. The name is quoted, never
// interpolated raw.
func CountQuery(d ir.Dialect, table string) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(table)
}
