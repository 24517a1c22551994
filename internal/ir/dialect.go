package ir

import (
	"fmt"
	"strings"
)

// Dialect names the SQL flavour a statement is parsed and rendered under.
type Dialect string

const (
	DialectDuckDB    Dialect = "duckdb"
	DialectPostgres  Dialect = "postgres"
	DialectSnowflake Dialect = "snowflake"
	DialectSQLite    Dialect = "sqlite"
	DialectMySQL     Dialect = "mysql"
	DialectANSI      Dialect = "ansi"
)

// DefaultDialect is used when callers pass an empty dialect name.
const DefaultDialect = DialectDuckDB

var dialectAliases = map[string]Dialect{
	"duckdb":     DialectDuckDB,
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"pg":         DialectPostgres,
	"snowflake":  DialectSnowflake,
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"mysql":      DialectMySQL,
	"ansi":       DialectANSI,
}

// ParseDialect resolves a dialect name. Matching is case-insensitive and
// accepts the common aliases ("postgresql", "pg", "sqlite3").
func ParseDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultDialect, nil
	}
	d, ok := dialectAliases[name]
	if !ok {
		return "", fmt.Errorf("unknown dialect %q", name)
	}
	return d, nil
}

// SupportsQualify reports whether the dialect accepts a QUALIFY clause.
func (d Dialect) SupportsQualify() bool {
	return d == DialectDuckDB || d == DialectSnowflake
}

// AllowsBacktickIdent reports whether `ident` quoting is legal.
func (d Dialect) AllowsBacktickIdent() bool {
	return d == DialectMySQL || d == DialectSQLite
}

// QuoteIdent quotes an identifier for the dialect.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Dialect) String() string { return string(d) }
