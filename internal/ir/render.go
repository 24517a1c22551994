package ir

import "strings"

type renderMode int

const (
	// modeOutput reuses source text for unmodified nodes and keeps the
	// original spelling of tokens when a node has to be rebuilt.
	modeOutput renderMode = iota
	// modeCanonical rebuilds everything with fixed spacing and keyword case,
	// so whitespace, comments and identifier case never show through.
	modeCanonical
)

type renderer struct {
	mode  renderMode
	visit func(n *Node, text string)
}

// Render returns SQL for the subtree. Untouched nodes are emitted exactly as
// they appeared in the source; edited nodes are rebuilt around them.
func Render(n *Node) string {
	r := &renderer{mode: modeOutput}
	return r.node(n)
}

// Canonical returns the normalised text of the subtree: single spaces,
// keywords upper case, unquoted identifiers lower case, no comments.
func Canonical(n *Node) string {
	r := &renderer{mode: modeCanonical}
	return r.node(n)
}

// Render returns the statement's SQL.
func (s *Statement) Render() string { return Render(s.Root) }

// Canonical returns the statement's canonical text.
func (s *Statement) Canonical() string { return Canonical(s.Root) }

// RenderAll joins rendered statements with ";\n".
func RenderAll(stmts []*Statement) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = s.Render()
	}
	return strings.Join(parts, ";\n")
}

// CanonicalAll joins canonical statement text with "; ".
func CanonicalAll(stmts []*Statement) string {
	parts := make([]string, len(stmts))
	for i, s := range stmts {
		parts[i] = s.Canonical()
	}
	return strings.Join(parts, "; ")
}

func (r *renderer) node(n *Node) string {
	if r.mode == modeOutput && !n.dirty && n.raw != "" {
		return n.raw
	}
	text := r.build(n)
	if r.visit != nil {
		r.visit(n, text)
	}
	return text
}

func (r *renderer) build(n *Node) string {
	switch n.Kind {
	case KindQuery:
		s := r.join(n.Children, " ")
		if n.Paren {
			s = "(" + s + ")"
		}
		return s
	case KindWith:
		return n.Keyword + " " + r.join(n.Children, ", ")
	case KindCTE:
		var b strings.Builder
		b.WriteString(r.ident(n.Name))
		if len(n.Columns) > 0 {
			cols := make([]string, len(n.Columns))
			for i, c := range n.Columns {
				cols[i] = r.ident(c)
			}
			b.WriteString("(" + strings.Join(cols, ", ") + ")")
		}
		b.WriteString(" AS ")
		if n.Keyword != "" {
			b.WriteString(n.Keyword + " ")
		}
		b.WriteString("(" + r.node(n.Children[0]) + ")")
		return b.String()
	case KindSetOp:
		return r.node(n.Children[0]) + " " + n.Keyword + " " + r.node(n.Children[1])
	case KindSelect:
		var b strings.Builder
		b.WriteString("SELECT")
		if len(n.Pieces) > 0 {
			b.WriteString(" " + r.pieces(n.Pieces))
		}
		var items, clauses []*Node
		for _, c := range n.Children {
			if c.Kind == KindSelectItem {
				items = append(items, c)
			} else {
				clauses = append(clauses, c)
			}
		}
		b.WriteString(" " + r.join(items, ", "))
		for _, c := range clauses {
			b.WriteString(" " + r.node(c))
		}
		return b.String()
	case KindValues:
		return "VALUES " + r.pieces(n.Pieces)
	case KindFrom:
		var b strings.Builder
		b.WriteString("FROM ")
		for i, c := range n.Children {
			switch {
			case i == 0:
			case c.Kind == KindJoin:
				b.WriteByte(' ')
			default:
				b.WriteString(", ")
			}
			b.WriteString(r.node(c))
		}
		return b.String()
	case KindJoin:
		s := n.Keyword + " " + r.node(n.Children[0])
		if on := n.Child(KindOn); on != nil {
			s += " " + r.node(on)
		}
		if len(n.Pieces) > 0 {
			s += " " + r.pieces(n.Pieces)
		}
		return s
	case KindOn:
		return "ON " + r.join(n.Children, " AND ")
	case KindWhere:
		return "WHERE " + r.join(n.Children, " AND ")
	case KindHaving:
		return "HAVING " + r.join(n.Children, " AND ")
	case KindQualify:
		return "QUALIFY " + r.join(n.Children, " AND ")
	case KindGroupBy:
		return "GROUP BY " + r.join(n.Children, ", ")
	case KindOrderBy:
		return "ORDER BY " + r.join(n.Children, ", ")
	case KindWindow:
		return "WINDOW " + r.pieces(n.Pieces)
	case KindDerived:
		s := "(" + r.node(n.Children[0]) + ")"
		if n.Keyword != "" {
			s = n.Keyword + " " + s
		}
		if len(n.Pieces) > 0 {
			s += " " + r.pieces(n.Pieces)
		}
		return s
	case KindSubquery:
		return "(" + r.node(n.Children[0]) + ")"
	default:
		return r.pieces(n.Pieces)
	}
}

func (r *renderer) join(nodes []*Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, c := range nodes {
		parts[i] = r.node(c)
	}
	return strings.Join(parts, sep)
}

func (r *renderer) ident(text string) string {
	if r.mode == modeCanonical && text != "" && text[0] != '"' && text[0] != '`' {
		return strings.ToLower(text)
	}
	return text
}

func (r *renderer) pieces(ps []Piece) string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 && needSpace(ps[i-1], p) {
			b.WriteByte(' ')
		}
		b.WriteString(r.piece(p))
	}
	return b.String()
}

func (r *renderer) piece(p Piece) string {
	if p.Sub != nil {
		return r.node(p.Sub)
	}
	if r.mode != modeCanonical {
		return p.Text
	}
	switch p.Kind {
	case TokIdent:
		if IsKeyword(p.Text) {
			return strings.ToUpper(p.Text)
		}
		return strings.ToLower(p.Text)
	case TokHint:
		return strings.Join(strings.Fields(p.Text), " ")
	}
	return p.Text
}

// needSpace decides the separator between two adjacent pieces when a run is
// rebuilt.
func needSpace(prev, cur Piece) bool {
	if prev.Sub == nil {
		switch {
		case prev.Kind == TokLParen, prev.Kind == TokDot:
			return false
		case prev.Kind == TokOperator && prev.Text == "::":
			return false
		case prev.Kind == TokPunct && (prev.Text == "[" || prev.Text == "{"):
			return false
		}
	}
	if cur.Sub != nil {
		return true
	}
	switch cur.Kind {
	case TokRParen, TokComma, TokDot:
		return false
	case TokOperator:
		return cur.Text != "::"
	case TokPunct:
		return cur.Text != "]" && cur.Text != "}" && cur.Text != "["
	case TokLParen:
		if prev.Sub != nil {
			return true
		}
		switch prev.Kind {
		case TokIdent:
			return parenKeywords[strings.ToUpper(prev.Text)]
		case TokQuotedIdent:
			return false
		}
	}
	return true
}
