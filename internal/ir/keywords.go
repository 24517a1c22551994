package ir

import "strings"

// reserved words can never be an implicit alias.
var reserved = wordSet(
	"SELECT", "FROM", "WHERE", "GROUP", "ORDER", "BY", "HAVING", "LIMIT",
	"OFFSET", "FETCH", "UNION", "INTERSECT", "EXCEPT", "MINUS", "JOIN",
	"INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "NATURAL", "ON",
	"USING", "AS", "AND", "OR", "NOT", "IN", "IS", "NULL", "LIKE", "ILIKE",
	"BETWEEN", "CASE", "WHEN", "THEN", "ELSE", "END", "WINDOW", "QUALIFY",
	"ASC", "DESC", "NULLS", "DISTINCT", "ALL", "WITH", "LATERAL", "ASOF",
	"POSITIONAL", "SEMI", "ANTI", "TABLESAMPLE", "USING", "VALUES", "OVER",
	"FILTER", "TRUE", "FALSE", "EXISTS", "ANY", "SOME", "INTERVAL", "INTO",
	"FOR", "SAMPLE", "ESCAPE", "SIMILAR", "COLLATE",
)

// keywords are uppercased in canonical text; every other unquoted word is
// lowercased.
var keywords = wordSet(
	"CAST", "TRY_CAST", "DATE", "TIMESTAMP", "TIME", "PARTITION", "ROWS",
	"RANGE", "GROUPS", "PRECEDING", "FOLLOWING", "UNBOUNDED", "CURRENT",
	"ROW", "WITHIN", "FIRST", "LAST", "RECURSIVE", "MATERIALIZED", "ROLLUP",
	"CUBE", "GROUPING", "SETS", "EXTRACT", "ARRAY", "STRUCT", "MAP", "TOP",
	"NEXT", "ONLY", "TIES", "PERCENT", "SET", "PRAGMA", "CREATE", "DROP",
	"ALTER", "INDEX", "TABLE", "VIEW", "INSERT", "UPDATE", "DELETE",
	"ANALYZE", "EXPLAIN", "RESET", "IF", "UNIQUE", "PRIMARY", "KEY",
	"DEFAULT", "SESSION", "LOCAL", "GLOBAL", "TO", "NAME", "EXCLUDE",
	"REPLACE", "RESPECT", "IGNORE", "ZONE", "AT",
)

// parenKeywords keep a space before a following "(" when rendered; any
// other word directly followed by "(" is treated as a function call.
var parenKeywords = wordSet(
	"AS", "IN", "AND", "OR", "NOT", "EXISTS", "ON", "USING", "OVER", "FILTER",
	"ANY", "ALL", "SOME", "THEN", "ELSE", "WHEN", "BY", "FROM", "JOIN",
	"VALUES", "WITHIN", "LATERAL", "IS", "LIKE", "ILIKE", "BETWEEN",
	"SELECT", "WHERE", "HAVING", "DISTINCT", "UNION", "INTERSECT", "EXCEPT",
	"CASE", "END", "EXCLUDE", "SETS",
)

// joinWords may open a join clause.
var joinWords = wordSet(
	"JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER", "CROSS", "NATURAL",
	"ASOF", "POSITIONAL", "SEMI", "ANTI",
)

var setOpWords = wordSet("UNION", "INTERSECT", "EXCEPT", "MINUS")

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// IsKeyword reports whether word is a SQL keyword known to the parser.
func IsKeyword(word string) bool {
	u := strings.ToUpper(word)
	return reserved[u] || keywords[u]
}

func isReservedPiece(p Piece) bool {
	return p.Sub == nil && p.Kind == TokIdent && reserved[strings.ToUpper(p.Text)]
}

// IdentKey normalises a single identifier for comparison: quoted
// identifiers keep their exact spelling, unquoted ones fold to lower case.
func IdentKey(text string) string {
	if len(text) >= 2 {
		switch q := text[0]; q {
		case '"', '`':
			if text[len(text)-1] == q {
				inner := text[1 : len(text)-1]
				return strings.ReplaceAll(inner, string([]byte{q, q}), string(q))
			}
		}
	}
	return strings.ToLower(text)
}

// SplitQualified splits a possibly dotted, possibly quoted name into its
// normalised parts.
func SplitQualified(name string) []string {
	var parts []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '`':
			quote = c
			cur.WriteByte(c)
		case c == '.':
			parts = append(parts, IdentKey(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, IdentKey(cur.String()))
}

// BaseName returns the last normalised part of a dotted name.
func BaseName(name string) string {
	parts := SplitQualified(name)
	return parts[len(parts)-1]
}
