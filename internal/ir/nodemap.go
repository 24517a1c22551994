package ir

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const labelWidth = 72

// RenderNodeMap lists every node of every statement, one per line,
// indented by depth, with its kind, a short label and its anchor in
// brackets:
//
//	statement s1 (duckdb)
//	  query [3f2a...]
//	    select [9c1d...]
//	      select_item "o.id" [b7e0...]
//
// Proposers address patch steps using the statement id and the bracketed
// anchor.
func RenderNodeMap(stmts []*Statement) string {
	var b strings.Builder
	for i, s := range stmts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "statement %s (%s)\n", s.ID, s.Dialect)
		writeNodeMap(&b, s.Root, 1)
	}
	return b.String()
}

func writeNodeMap(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(string(n.Kind))
	if label := nodeLabel(n); label != "" {
		b.WriteByte(' ')
		b.WriteString(label)
	}
	fmt.Fprintf(b, " [%s]\n", n.Anchor)
	for _, c := range n.Children {
		writeNodeMap(b, c, depth+1)
	}
}

func nodeLabel(n *Node) string {
	switch n.Kind {
	case KindCTE:
		return n.Name
	case KindTable:
		if n.Alias != "" {
			return n.Name + " AS " + n.Alias
		}
		return n.Name
	case KindDerived:
		if n.Alias != "" {
			return "AS " + n.Alias
		}
		return ""
	case KindJoin, KindSetOp:
		return n.Keyword
	case KindWith:
		if n.Keyword != "WITH" {
			return n.Keyword
		}
		return ""
	case KindSelectItem, KindPredicate, KindExpr, KindLimit, KindWindow, KindValues, KindCommand:
		return `"` + truncate(strings.Join(strings.Fields(Render(n)), " "), labelWidth) + `"`
	}
	return ""
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}
