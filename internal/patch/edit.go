package patch

import (
	"strings"

	"github.com/roach88/qfleet/internal/ir"
)

// editor performs one step against one statement.
type editor struct {
	stmt    *ir.Statement
	dialect ir.Dialect
	step    int
}

func (e *editor) resolve(anchor string) (*ir.Node, []*ir.Node, error) {
	matches := ir.Find(e.stmt.Root, anchor)
	switch len(matches) {
	case 0:
		return nil, nil, &AnchorResolutionError{Step: e.step, StmtID: e.stmt.ID, Anchor: anchor, Reason: ReasonNotFound}
	case 1:
		return matches[0], ir.PathTo(e.stmt.Root, matches[0]), nil
	default:
		return nil, nil, &AnchorResolutionError{
			Step:    e.step,
			StmtID:  e.stmt.ID,
			Anchor:  anchor,
			Reason:  ReasonAmbiguous,
			Matches: len(matches),
		}
	}
}

func (e *editor) fragmentErr(err error, what string) error {
	return stepErr(e.step, CodeFragmentParse, err, "cannot parse %s", what)
}

func (e *editor) insertCTE(name, sql string) error {
	root := e.stmt.Root
	if root.Kind != ir.KindQuery {
		return stepErr(e.step, CodeNotReplaceable, nil, "statement %s is a %s, not a query", e.stmt.ID, root.Kind)
	}
	cte, err := ir.ParseCTE(strings.TrimSpace(name)+" AS (\n"+trimSQL(sql)+"\n)", e.dialect)
	if err != nil {
		return e.fragmentErr(err, "CTE "+name)
	}

	with := root.Child(ir.KindWith)
	if with == nil {
		with = &ir.Node{Kind: ir.KindWith, Keyword: "WITH"}
		root.Children = append([]*ir.Node{with}, root.Children...)
	}
	for _, c := range with.Children {
		if ir.IdentKey(c.Name) == ir.IdentKey(cte.Name) {
			return stepErr(e.step, CodeDuplicateCTE, nil, "CTE %s already exists", cte.Name)
		}
	}
	with.Children = append(with.Children, cte)
	with.MarkModified()
	root.MarkModified()
	return nil
}

func (e *editor) replace(anchor, sql string, predicateOnly bool) error {
	target, path, err := e.resolve(anchor)
	if err != nil {
		return err
	}
	sql = trimSQL(sql)
	var parent *ir.Node
	if len(path) > 1 {
		parent = path[len(path)-2]
	}
	if predicateOnly && (target.Kind != ir.KindPredicate || parent == nil || !parent.Kind.IsCondition()) {
		return &AnchorResolutionError{Step: e.step, StmtID: e.stmt.ID, Anchor: anchor, Reason: ReasonKindMismatch}
	}

	switch target.Kind {
	case ir.KindPredicate:
		preds, err := ir.ParsePredicates(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement predicate")
		}
		if len(parent.Children)-1+len(preds) > 1 {
			if preds, err = e.parenthesizeDisjunctions(preds); err != nil {
				return err
			}
		}
		splice(parent, target, preds...)

	case ir.KindSelectItem:
		items, err := ir.ParseSelectItems(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement select item")
		}
		splice(parent, target, items...)

	case ir.KindExpr:
		exprs, err := ir.ParseExprs(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement expression")
		}
		splice(parent, target, exprs...)

	case ir.KindTable, ir.KindDerived, ir.KindJoin:
		items, err := ir.ParseFromItems(sql, e.dialect)
		if err != nil {
			if target.Kind != ir.KindDerived {
				return e.fragmentErr(err, "replacement FROM item")
			}
			q, qerr := ir.ParseQuery(sql, e.dialect)
			if qerr != nil {
				return e.fragmentErr(err, "replacement derived table")
			}
			splice(target, target.Children[0], q)
			break
		}
		if parent.Kind == ir.KindFrom && parent.Children[0] == target && items[0].Kind == ir.KindJoin {
			return stepErr(e.step, CodeNotReplaceable, nil, "a join cannot open a FROM clause")
		}
		splice(parent, target, items...)

	case ir.KindWhere, ir.KindHaving, ir.KindQualify, ir.KindOn:
		preds, err := ir.ParsePredicates(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement condition")
		}
		if len(preds) > 1 {
			if preds, err = e.parenthesizeDisjunctions(preds); err != nil {
				return err
			}
		}
		target.Children = preds
		target.MarkModified()

	case ir.KindGroupBy, ir.KindOrderBy:
		var exprs []*ir.Node
		if c, err := ir.ParseClause(sql, e.dialect); err == nil && c.Kind == target.Kind {
			exprs = c.Children
		} else if exprs, err = ir.ParseExprs(sql, e.dialect); err != nil {
			return e.fragmentErr(err, "replacement "+string(target.Kind))
		}
		target.Children = exprs
		target.MarkModified()

	case ir.KindFrom:
		items, err := ir.ParseFromItems(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement FROM clause")
		}
		if items[0].Kind == ir.KindJoin {
			return stepErr(e.step, CodeNotReplaceable, nil, "a join cannot open a FROM clause")
		}
		target.Children = items
		target.MarkModified()

	case ir.KindQuery, ir.KindSelect, ir.KindSetOp, ir.KindValues:
		node, err := e.queryReplacement(sql, target)
		if err != nil {
			return err
		}
		if parent == nil {
			e.stmt.Root = node
		} else {
			splice(parent, target, node)
		}

	case ir.KindSubquery:
		q, err := ir.ParseQuery(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement subquery")
		}
		target.Children = []*ir.Node{q}
		target.MarkModified()

	case ir.KindCTE:
		if c, err := ir.ParseCTE(sql, e.dialect); err == nil {
			for _, sib := range parent.Children {
				if sib != target && ir.IdentKey(sib.Name) == ir.IdentKey(c.Name) {
					return stepErr(e.step, CodeDuplicateCTE, nil, "CTE %s already exists", c.Name)
				}
			}
			splice(parent, target, c)
			break
		}
		q, err := ir.ParseQuery(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement CTE body")
		}
		target.Children = []*ir.Node{q}
		target.MarkModified()

	case ir.KindCommand:
		root, err := ir.ParseStatement(sql, e.dialect)
		if err != nil {
			return e.fragmentErr(err, "replacement statement")
		}
		e.stmt.Root = root

	default:
		return stepErr(e.step, CodeNotReplaceable, nil, "%s nodes cannot be replaced", target.Kind)
	}

	markModified(path[:len(path)-1])
	return nil
}

// queryReplacement parses sql for a query-shaped target. Bodies of a larger
// query (select, set operation, values) take a bare body when possible and
// a parenthesised query otherwise.
func (e *editor) queryReplacement(sql string, target *ir.Node) (*ir.Node, error) {
	q, err := ir.ParseQuery(sql, e.dialect)
	if err != nil {
		return nil, e.fragmentErr(err, "replacement query")
	}
	switch {
	case target.Kind != ir.KindQuery && len(q.Children) == 1:
		return q.Children[0], nil
	case target.Kind != ir.KindQuery, target.Paren:
		wrapped, err := ir.ParseQuery("("+sql+"\n)", e.dialect)
		if err != nil {
			return nil, e.fragmentErr(err, "replacement query")
		}
		return wrapped.Children[0], nil
	}
	return q, nil
}

// parenthesizeDisjunctions wraps top-level OR predicates so that joining
// them with AND keeps their meaning.
func (e *editor) parenthesizeDisjunctions(preds []*ir.Node) ([]*ir.Node, error) {
	out := make([]*ir.Node, len(preds))
	for i, p := range preds {
		if !ir.HasTopLevelOr(p) {
			out[i] = p
			continue
		}
		wrapped, err := ir.ParsePredicates("("+ir.Render(p)+")", e.dialect)
		if err != nil {
			return nil, e.fragmentErr(err, "replacement predicate")
		}
		out[i] = wrapped[0]
	}
	return out, nil
}

func (e *editor) delete(anchor string) error {
	target, path, err := e.resolve(anchor)
	if err != nil {
		return err
	}
	if len(path) < 2 {
		return stepErr(e.step, CodeNotDeletable, nil, "cannot delete the statement root")
	}
	parent := path[len(path)-2]
	var grand *ir.Node
	if len(path) > 2 {
		grand = path[len(path)-3]
	}

	switch target.Kind {
	case ir.KindPredicate:
		switch {
		case !parent.Kind.IsCondition():
			return stepErr(e.step, CodeNotDeletable, nil, "predicate is not part of a condition")
		case len(parent.Children) > 1:
			splice(parent, target)
		case parent.Kind == ir.KindOn:
			return stepErr(e.step, CodeNotDeletable, nil, "join condition would be empty")
		default:
			splice(grand, parent)
		}

	case ir.KindSelectItem:
		n := 0
		for _, c := range parent.Children {
			if c.Kind == ir.KindSelectItem {
				n++
			}
		}
		if n <= 1 {
			return stepErr(e.step, CodeNotDeletable, nil, "cannot delete the only select item")
		}
		splice(parent, target)

	case ir.KindExpr:
		if len(parent.Children) > 1 {
			splice(parent, target)
		} else {
			splice(grand, parent)
		}

	case ir.KindTable, ir.KindDerived, ir.KindJoin:
		if parent.Kind == ir.KindJoin {
			target, parent = parent, grand
		}
		if len(parent.Children) == 1 {
			return stepErr(e.step, CodeNotDeletable, nil, "FROM needs at least one item")
		}
		if parent.Children[0] == target && parent.Children[1].Kind == ir.KindJoin {
			return stepErr(e.step, CodeNotDeletable, nil, "cannot delete the left side of a join")
		}
		splice(parent, target)

	case ir.KindWhere, ir.KindHaving, ir.KindQualify, ir.KindGroupBy, ir.KindOrderBy,
		ir.KindWindow, ir.KindLimit, ir.KindFrom, ir.KindWith:
		splice(parent, target)

	case ir.KindCTE:
		if len(parent.Children) > 1 {
			splice(parent, target)
		} else {
			splice(grand, parent)
		}

	default:
		return stepErr(e.step, CodeNotDeletable, nil, "%s nodes cannot be deleted", target.Kind)
	}

	markModified(path[:len(path)-1])
	return nil
}

// splice replaces target among parent's children with repl (or removes it
// when repl is empty).
func splice(parent, target *ir.Node, repl ...*ir.Node) {
	out := make([]*ir.Node, 0, len(parent.Children)+len(repl))
	for _, c := range parent.Children {
		if c == target {
			out = append(out, repl...)
			continue
		}
		out = append(out, c)
	}
	parent.Children = out
	parent.MarkModified()
}

func markModified(nodes []*ir.Node) {
	for _, n := range nodes {
		n.MarkModified()
	}
}

func trimSQL(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}
