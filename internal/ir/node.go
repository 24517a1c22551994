package ir

// Kind identifies the grammatical role of a Node.
type Kind string

const (
	KindQuery      Kind = "query"
	KindCommand    Kind = "command"
	KindWith       Kind = "with"
	KindCTE        Kind = "cte"
	KindSelect     Kind = "select"
	KindSetOp      Kind = "set_op"
	KindValues     Kind = "values"
	KindSelectItem Kind = "select_item"
	KindFrom       Kind = "from"
	KindTable      Kind = "table"
	KindDerived    Kind = "derived"
	KindJoin       Kind = "join"
	KindOn         Kind = "on"
	KindWhere      Kind = "where"
	KindGroupBy    Kind = "group_by"
	KindHaving     Kind = "having"
	KindWindow     Kind = "window"
	KindQualify    Kind = "qualify"
	KindOrderBy    Kind = "order_by"
	KindLimit      Kind = "limit"
	KindPredicate  Kind = "predicate"
	KindExpr       Kind = "expr"
	KindSubquery   Kind = "subquery"
)

// IsCondition reports whether nodes of this kind hold a conjunct list.
func (k Kind) IsCondition() bool {
	return k == KindWhere || k == KindHaving || k == KindQualify || k == KindOn
}

// Span is a half-open byte range [Start, End) into the parsed source.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Piece is one element of a token run. Sub is set for parenthesised
// subqueries, in which case Text is empty.
type Piece struct {
	Kind TokenKind
	Text string
	Sub  *Node
	Pos  int
	End  int
}

// Node is one addressable subtree of a statement.
//
// Structural kinds (query, select, from, ...) keep their parts in Children.
// Token-run kinds (expr, predicate, select_item, table, limit, window,
// values, command) keep their text in Pieces; any subqueries inside the run
// are also listed, in order, in Children.
type Node struct {
	Kind     Kind
	Children []*Node
	Pieces   []Piece

	// Name is the CTE name or the relation name of a table reference.
	Name string
	// Alias is the exposed alias of a table, derived table or select item.
	Alias string
	// Columns is an explicit column list (cte or derived alias).
	Columns []string
	// Keyword carries a clause modifier: set operator, join type,
	// WITH RECURSIVE, CTE materialisation, LATERAL, command verb.
	Keyword string
	// Paren marks a query written inside its own parentheses.
	Paren bool

	Anchor string
	Span   Span

	raw   string
	dirty bool
}

// Statement is one top-level SQL statement and its tree.
type Statement struct {
	ID      string
	Dialect Dialect
	SQL     string
	Root    *Node
}

// Raw returns the source text the node was parsed from.
func (n *Node) Raw() string { return n.raw }

// Modified reports whether the node (or something under it) was edited
// since parsing.
func (n *Node) Modified() bool { return n.dirty }

// MarkModified flags the node as edited so rendering rebuilds it.
func (n *Node) MarkModified() { n.dirty = true }

// Child returns the first direct child of the given kind, or nil.
func (n *Node) Child(kind Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// Walk visits n and every descendant depth-first, parents before children.
// Returning false from fn skips the node's subtree.
func Walk(n *Node, fn func(n, parent *Node) bool) {
	walk(n, nil, fn)
}

func walk(n, parent *Node, fn func(n, parent *Node) bool) {
	if n == nil || !fn(n, parent) {
		return
	}
	for _, c := range n.Children {
		walk(c, n, fn)
	}
}

// Find returns every node in the tree whose anchor equals anchor, in
// document order.
func Find(root *Node, anchor string) []*Node {
	var out []*Node
	Walk(root, func(n, _ *Node) bool {
		if n.Anchor == anchor {
			out = append(out, n)
		}
		return true
	})
	return out
}

// PathTo returns the chain of nodes from root down to target, inclusive, or
// nil if target is not in the tree.
func PathTo(root, target *Node) []*Node {
	if root == target {
		return []*Node{root}
	}
	for _, c := range root.Children {
		if p := PathTo(c, target); p != nil {
			return append([]*Node{root}, p...)
		}
	}
	return nil
}

// Clone deep-copies the subtree. Subquery pieces are rebound to the cloned
// children.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Columns = append([]string(nil), n.Columns...)
	c.Children = make([]*Node, len(n.Children))
	remap := make(map[*Node]*Node, len(n.Children))
	for i, ch := range n.Children {
		c.Children[i] = ch.Clone()
		remap[ch] = c.Children[i]
	}
	c.Pieces = make([]Piece, len(n.Pieces))
	for i, p := range n.Pieces {
		if p.Sub != nil {
			p.Sub = remap[p.Sub]
		}
		c.Pieces[i] = p
	}
	return &c
}

// Clone deep-copies the statement.
func (s *Statement) Clone() *Statement {
	c := *s
	c.Root = s.Root.Clone()
	return &c
}

// CloneAll deep-copies a statement list.
func CloneAll(stmts []*Statement) []*Statement {
	out := make([]*Statement, len(stmts))
	for i, s := range stmts {
		out[i] = s.Clone()
	}
	return out
}

// syncSubs rebuilds Children from the subquery pieces of a token-run node.
func (n *Node) syncSubs() {
	n.Children = n.Children[:0]
	for _, p := range n.Pieces {
		if p.Sub != nil {
			n.Children = append(n.Children, p.Sub)
		}
	}
}
