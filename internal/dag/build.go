package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qfleet/internal/ir"
)

type scope struct {
	parent *scope
	ctes   map[string]string
}

func (s *scope) lookup(name string) (string, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if id, ok := sc.ctes[name]; ok {
			return id, true
		}
	}
	return "", false
}

type builder struct {
	g        *Graph
	counters map[string]int
	tables   map[string]map[string]bool
	// blocked lists CTEs a block may not read: later members of its own
	// recursive WITH. Reading them would close a cycle.
	blocked map[string]map[string]bool
}

// Build decomposes a query statement into blocks. Statements that are not
// queries return ErrNotQuery. Two relations exposing the same name in one
// FROM clause, or two CTEs with the same name in one WITH, return an
// AmbiguousReferenceError.
func Build(stmt *ir.Statement) (*Graph, error) {
	root := stmt.Root
	if root == nil || root.Kind != ir.KindQuery {
		return nil, fmt.Errorf("%s: %w", stmt.ID, ErrNotQuery)
	}
	b := &builder{
		g:        newGraph(stmt.ID),
		counters: make(map[string]int),
		tables:   make(map[string]map[string]bool),
		blocked:  make(map[string]map[string]bool),
	}
	main := b.newNode(MainID, KindMain, root.Anchor, "")
	if err := b.query(root, main, nil, ""); err != nil {
		return nil, err
	}
	b.finish()
	return b.g, nil
}

func (b *builder) newNode(id string, kind BlockKind, anchor, parent string) *Node {
	b.tables[id] = make(map[string]bool)
	return &Node{
		ID:      id,
		Kind:    kind,
		Anchor:  anchor,
		Parent:  parent,
		exposed: make(map[string]bool),
		quals:   make(map[string]bool),
	}
}

// query registers blk for q. q's own WITH clause yields CTE blocks that
// are visible to the rest of q.
func (b *builder) query(q *ir.Node, blk *Node, sc *scope, prefix string) error {
	body := q.Children
	if with := q.Child(ir.KindWith); with != nil {
		var err error
		if sc, err = b.with(with, blk, sc, prefix); err != nil {
			return err
		}
		body = make([]*ir.Node, 0, len(q.Children)-1)
		for _, c := range q.Children {
			if c != with {
				body = append(body, c)
			}
		}
	}
	if blk.SQL == "" {
		parts := make([]string, len(body))
		for i, c := range body {
			parts[i] = ir.Render(c)
		}
		blk.SQL = strings.Join(parts, " ")
	}
	if len(body) > 0 {
		blk.Pos = body[0].Span.Start
	}
	if err := b.g.add(blk); err != nil {
		return err
	}
	for _, c := range body {
		if err := b.scan(c, blk, sc); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) with(w *ir.Node, owner *Node, sc *scope, prefix string) (*scope, error) {
	inner := &scope{parent: sc, ctes: make(map[string]string)}
	recursive := strings.HasSuffix(w.Keyword, "RECURSIVE")

	ids := make([]string, len(w.Children))
	seen := make(map[string]bool, len(w.Children))
	for i, c := range w.Children {
		key := ir.IdentKey(c.Name)
		if seen[key] {
			return nil, &AmbiguousReferenceError{Block: owner.ID, Name: c.Name}
		}
		seen[key] = true
		ids[i] = key
		if prefix != "" {
			ids[i] = prefix + "." + key
		}
		if recursive {
			inner.ctes[key] = ids[i]
		}
	}

	parent := ""
	if prefix != "" {
		parent = owner.ID
	}
	for i, c := range w.Children {
		if recursive && i+1 < len(ids) {
			later := make(map[string]bool, len(ids)-i-1)
			for _, id := range ids[i+1:] {
				later[id] = true
			}
			b.blocked[ids[i]] = later
		}
		n := b.newNode(ids[i], KindCTE, c.Anchor, parent)
		n.SQL = ir.Render(c.Children[0])
		if err := b.query(c.Children[0], n, inner, ids[i]); err != nil {
			return nil, err
		}
		inner.ctes[ir.IdentKey(c.Name)] = ids[i]
	}
	return inner, nil
}

func (b *builder) scan(n *ir.Node, blk *Node, sc *scope) error {
	switch n.Kind {
	case ir.KindSubquery:
		return b.child(n.Children[0], n.Anchor, blk, sc, KindSubquery, "")
	case ir.KindDerived:
		if n.Alias != "" {
			blk.exposed[ir.IdentKey(n.Alias)] = true
		}
		return b.child(n.Children[0], n.Anchor, blk, sc, KindDerived, n.Alias)
	case ir.KindQuery:
		if with := n.Child(ir.KindWith); with != nil {
			inner, err := b.with(with, blk, sc, blk.ID)
			if err != nil {
				return err
			}
			sc = inner
		}
	case ir.KindWith:
		return nil
	case ir.KindFrom:
		if err := checkFromNames(n, blk); err != nil {
			return err
		}
	case ir.KindTable:
		b.table(n, blk, sc)
	}
	if n.Kind != ir.KindTable {
		collectQualifiers(n.Pieces, blk)
	}
	for _, c := range n.Children {
		if err := b.scan(c, blk, sc); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) child(q *ir.Node, anchor string, parent *Node, sc *scope, kind BlockKind, alias string) error {
	var id string
	switch {
	case kind == KindDerived && alias != "":
		id = parent.ID + "." + ir.IdentKey(alias)
	case kind == KindDerived:
		b.counters[parent.ID+"/dt"]++
		id = fmt.Sprintf("%s.dt%d", parent.ID, b.counters[parent.ID+"/dt"])
	default:
		b.counters[parent.ID+"/sq"]++
		id = fmt.Sprintf("%s.sq%d", parent.ID, b.counters[parent.ID+"/sq"])
	}
	n := b.newNode(id, kind, anchor, parent.ID)
	n.SQL = ir.Render(q)
	if err := b.query(q, n, sc, id); err != nil {
		return err
	}
	b.g.link(id, parent.ID)
	return nil
}

// table records a FROM reference: an edge when it names a visible CTE, a
// base table otherwise.
func (b *builder) table(n *ir.Node, blk *Node, sc *scope) {
	if n.Name == "" {
		return
	}
	parts := ir.SplitQualified(n.Name)
	exposed := parts[len(parts)-1]
	if n.Alias != "" {
		exposed = ir.IdentKey(n.Alias)
	}
	blk.exposed[exposed] = true

	if len(parts) == 1 {
		if id, ok := sc.lookup(parts[0]); ok {
			if !b.blocked[blk.ID][id] {
				b.g.link(id, blk.ID)
			}
			return
		}
	}
	// name(...) is a table function, not a relation.
	if next := 2*len(parts) - 1; next < len(n.Pieces) && n.Pieces[next].Kind == ir.TokLParen {
		return
	}
	b.tables[blk.ID][strings.Join(parts, ".")] = true
}

func checkFromNames(from *ir.Node, blk *Node) error {
	seen := make(map[string]bool, len(from.Children))
	for _, c := range from.Children {
		item := c
		if c.Kind == ir.KindJoin {
			item = c.Children[0]
		}
		name := exposedName(item)
		if name == "" {
			continue
		}
		if seen[name] {
			return &AmbiguousReferenceError{Block: blk.ID, Name: name}
		}
		seen[name] = true
	}
	return nil
}

func exposedName(item *ir.Node) string {
	if item.Alias != "" {
		return ir.IdentKey(item.Alias)
	}
	if item.Kind == ir.KindTable && item.Name != "" {
		return ir.BaseName(item.Name)
	}
	return ""
}

// collectQualifiers records x from every x.col reference in a token run.
func collectQualifiers(pieces []ir.Piece, blk *Node) {
	for i, p := range pieces {
		if p.Sub != nil || (p.Kind != ir.TokIdent && p.Kind != ir.TokQuotedIdent) {
			continue
		}
		if i+1 >= len(pieces) || pieces[i+1].Sub != nil || pieces[i+1].Kind != ir.TokDot {
			continue
		}
		if i > 0 && pieces[i-1].Sub == nil && pieces[i-1].Kind == ir.TokDot {
			continue
		}
		blk.quals[ir.IdentKey(p.Text)] = true
	}
}

// finish resolves correlation and freezes the table lists.
func (b *builder) finish() {
	g := b.g
	for _, n := range g.Nodes {
		n.Tables = sortedKeys(b.tables[n.ID])
		if n.Parent == "" {
			continue
		}
		outer := make(map[string]bool)
		for q := range n.quals {
			if n.exposed[q] {
				continue
			}
			for anc := g.index[n.Parent]; anc != nil; anc = g.index[anc.Parent] {
				if !anc.exposed[q] {
					continue
				}
				outer[q] = true
				for m := n; m != nil && m != anc; m = g.index[m.Parent] {
					m.Correlated = true
				}
				break
			}
		}
		n.OuterRefs = sortedKeys(outer)
	}
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
