package ir

import (
	"fmt"
	"strings"
)

// Parse splits sql into top-level statements and builds a tree for each.
// Queries (SELECT, WITH, VALUES) are parsed clause by clause; every other
// statement is kept as an opaque command. Anchors are assigned before
// returning. Any malformed input yields a *ParseError.
func Parse(sql string, dialect Dialect) ([]*Statement, error) {
	d, err := ParseDialect(string(dialect))
	if err != nil {
		return nil, &ParseError{Line: 1, Column: 1, Message: err.Error()}
	}
	toks, err := lex(sql, d)
	if err != nil {
		return nil, err
	}
	groups, err := splitStatements(sql, toks)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, newParseError(sql, 0, 0, "", "no statements found")
	}

	stmts := make([]*Statement, 0, len(groups))
	for i, g := range groups {
		p := &parser{src: sql, toks: g, dialect: d, stmt: i + 1}
		root, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		st := &Statement{
			ID:      fmt.Sprintf("s%d", i+1),
			Dialect: d,
			SQL:     sql[g[0].Pos:g[len(g)-2].End],
			Root:    root,
		}
		AssignAnchors(st)
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// splitStatements cuts the token stream on depth-0 semicolons. Each group
// ends with a synthetic EOF token.
func splitStatements(src string, toks []Token) ([][]Token, error) {
	var groups [][]Token
	var cur []Token
	depth := 0
	closeGroup := func(at int) {
		if len(cur) > 0 {
			cur = append(cur, Token{Kind: TokEOF, Pos: at, End: at})
			groups = append(groups, cur)
		}
		cur = nil
	}
	for _, t := range toks {
		switch t.Kind {
		case TokEOF:
			if depth > 0 {
				return nil, newParseError(src, len(groups)+1, t.Pos, "", "unbalanced parenthesis")
			}
			closeGroup(t.Pos)
			return groups, nil
		case TokLParen:
			depth++
		case TokRParen:
			depth--
		case TokSemicolon:
			if depth == 0 {
				closeGroup(t.Pos)
				continue
			}
		}
		cur = append(cur, t)
	}
	closeGroup(len(src))
	return groups, nil
}

type parser struct {
	src     string
	toks    []Token
	pos     int
	dialect Dialect
	stmt    int
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) peekN(n int) Token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return p.toks[0].Pos
	}
	return p.toks[p.pos-1].End
}

func (p *parser) prev() Token {
	if p.pos == 0 {
		return Token{Kind: TokEOF}
	}
	return p.toks[p.pos-1]
}

func (p *parser) errorf(t Token, format string, args ...any) error {
	return newParseError(p.src, p.stmt, t.Pos, t.Text, format, args...)
}

func (p *parser) expect(kind TokenKind, what string) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return t, p.errorf(t, "expected %s", what)
	}
	return p.advance(), nil
}

func (p *parser) expectWord(kw string) (Token, error) {
	t := p.peek()
	if !t.Is(kw) {
		return t, p.errorf(t, "expected %s", kw)
	}
	return p.advance(), nil
}

// finish stamps span and source text on a node that started at start and
// ends at the last consumed token.
func (p *parser) finish(n *Node, start int) *Node {
	end := p.prevEnd()
	if end < start {
		end = start
	}
	n.Span = Span{Start: start, End: end}
	n.raw = p.src[start:end]
	return n
}

func (p *parser) tokenRun(kind Kind, pieces []Piece) *Node {
	n := &Node{Kind: kind, Pieces: pieces}
	n.syncSubs()
	start, end := pieces[0].Pos, pieces[len(pieces)-1].End
	n.Span = Span{Start: start, End: end}
	n.raw = p.src[start:end]
	return n
}

func (p *parser) parseStatement() (*Node, error) {
	var root *Node
	var err error
	if p.startsQuery() {
		root, err = p.parseQuery()
	} else {
		root, err = p.parseCommand()
	}
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Kind != TokEOF {
		return nil, p.errorf(t, "unexpected %q", t.Text)
	}
	return root, nil
}

func (p *parser) startsQuery() bool {
	t := p.peek()
	if t.Is("SELECT") || t.Is("WITH") || t.Is("VALUES") {
		return true
	}
	return t.Kind == TokLParen && p.queryInParens(0)
}

// queryInParens reports whether the "(" at offset n opens a query,
// looking through nested parentheses.
func (p *parser) queryInParens(n int) bool {
	for p.peekN(n).Kind == TokLParen {
		n++
	}
	t := p.peekN(n)
	return t.Is("SELECT") || t.Is("WITH") || t.Is("VALUES")
}

func (p *parser) parseCommand() (*Node, error) {
	start := p.peek().Pos
	pieces, err := p.collectPieces(nil)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, p.errorf(p.peek(), "empty statement")
	}
	n := p.tokenRun(KindCommand, pieces)
	n.Keyword = strings.ToUpper(pieces[0].Text)
	return p.finish(n, start), nil
}

func (p *parser) parseQuery() (*Node, error) {
	start := p.peek().Pos
	q := &Node{Kind: KindQuery}
	if p.peek().Is("WITH") {
		w, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		q.Children = append(q.Children, w)
	}
	body, err := p.parseSetExpr()
	if err != nil {
		return nil, err
	}
	q.Children = append(q.Children, body)
	if p.atOrderBy() {
		ob, err := p.parseExprClause(KindOrderBy)
		if err != nil {
			return nil, err
		}
		q.Children = append(q.Children, ob)
	}
	if t := p.peek(); t.Is("LIMIT") || t.Is("OFFSET") || t.Is("FETCH") {
		pieces, err := p.collectPieces(nil)
		if err != nil {
			return nil, err
		}
		if err := p.checkLimit(pieces); err != nil {
			return nil, err
		}
		q.Children = append(q.Children, p.tokenRun(KindLimit, pieces))
	}
	return p.finish(q, start), nil
}

func (p *parser) parseWith() (*Node, error) {
	start := p.advance().Pos
	w := &Node{Kind: KindWith, Keyword: "WITH"}
	if p.peek().Is("RECURSIVE") {
		p.advance()
		w.Keyword = "WITH RECURSIVE"
	}
	for {
		c, err := p.parseCTE()
		if err != nil {
			return nil, err
		}
		w.Children = append(w.Children, c)
		if p.peek().Kind != TokComma {
			break
		}
		p.advance()
	}
	return p.finish(w, start), nil
}

func (p *parser) parseCTE() (*Node, error) {
	t := p.peek()
	if t.Kind != TokIdent && t.Kind != TokQuotedIdent {
		return nil, p.errorf(t, "expected CTE name")
	}
	p.advance()
	c := &Node{Kind: KindCTE, Name: t.Text}
	if p.peek().Kind == TokLParen {
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		c.Columns = cols
	}
	if _, err := p.expectWord("AS"); err != nil {
		return nil, err
	}
	switch {
	case p.peek().Is("MATERIALIZED"):
		p.advance()
		c.Keyword = "MATERIALIZED"
	case p.peek().Is("NOT") && p.peekN(1).Is("MATERIALIZED"):
		p.advance()
		p.advance()
		c.Keyword = "NOT MATERIALIZED"
	}
	if _, err := p.expect(TokLParen, `"(" before CTE body`); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen, `")" after CTE body`); err != nil {
		return nil, err
	}
	c.Children = []*Node{q}
	return p.finish(c, t.Pos), nil
}

func (p *parser) parseIdentList() ([]string, error) {
	p.advance()
	var out []string
	for {
		t := p.peek()
		if t.Kind != TokIdent && t.Kind != TokQuotedIdent {
			return nil, p.errorf(t, "expected column name")
		}
		out = append(out, p.advance().Text)
		if p.peek().Kind == TokComma {
			p.advance()
			continue
		}
		if _, err := p.expect(TokRParen, `")"`); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (p *parser) parseSetExpr() (*Node, error) {
	left, err := p.parseSetPrimary()
	if err != nil {
		return nil, err
	}
	for p.atSetOp() {
		kw := []string{p.advance().Upper()}
		if t := p.peek(); t.Is("ALL") || t.Is("DISTINCT") {
			kw = append(kw, p.advance().Upper())
		}
		if p.peek().Is("BY") && p.peekN(1).Is("NAME") {
			p.advance()
			p.advance()
			kw = append(kw, "BY", "NAME")
		}
		right, err := p.parseSetPrimary()
		if err != nil {
			return nil, err
		}
		n := &Node{Kind: KindSetOp, Keyword: strings.Join(kw, " "), Children: []*Node{left, right}}
		left = p.finish(n, left.Span.Start)
	}
	return left, nil
}

func (p *parser) parseSetPrimary() (*Node, error) {
	t := p.peek()
	switch {
	case t.Is("SELECT"):
		return p.parseSelect()
	case t.Is("VALUES"):
		p.advance()
		pieces, err := p.collectPieces(p.clauseStop)
		if err != nil {
			return nil, err
		}
		if len(pieces) == 0 {
			return nil, p.errorf(p.peek(), "expected row list after VALUES")
		}
		if err := p.checkRun(pieces); err != nil {
			return nil, err
		}
		n := p.tokenRun(KindValues, pieces)
		return p.finish(n, t.Pos), nil
	case t.Kind == TokLParen && p.queryInParens(0):
		p.advance()
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, `")"`); err != nil {
			return nil, err
		}
		q.Paren = true
		return p.finish(q, t.Pos), nil
	}
	return nil, p.errorf(t, "expected SELECT")
}

func (p *parser) parseSelect() (*Node, error) {
	start := p.advance().Pos
	s := &Node{Kind: KindSelect}

modifiers:
	for {
		t := p.peek()
		switch {
		case t.Kind == TokHint, t.Is("ALL"):
			s.Pieces = append(s.Pieces, pieceOf(p.advance()))
		case t.Is("DISTINCT"):
			s.Pieces = append(s.Pieces, pieceOf(p.advance()))
			if p.peek().Is("ON") && p.peekN(1).Kind == TokLParen {
				s.Pieces = append(s.Pieces, pieceOf(p.advance()))
				group, err := p.balancedGroup()
				if err != nil {
					return nil, err
				}
				s.Pieces = append(s.Pieces, group...)
			}
		case t.Is("TOP"):
			s.Pieces = append(s.Pieces, pieceOf(p.advance()))
			if p.peek().Kind == TokLParen {
				group, err := p.balancedGroup()
				if err != nil {
					return nil, err
				}
				s.Pieces = append(s.Pieces, group...)
			} else {
				s.Pieces = append(s.Pieces, pieceOf(p.advance()))
			}
		default:
			break modifiers
		}
	}

	for {
		pieces, err := p.collectPieces(p.selectItemStop)
		if err != nil {
			return nil, err
		}
		if len(pieces) == 0 {
			return nil, p.errorf(p.peek(), "expected select item")
		}
		if err := p.checkRun(pieces); err != nil {
			return nil, err
		}
		item := p.tokenRun(KindSelectItem, pieces)
		item.Alias = trailingAlias(pieces)
		s.Children = append(s.Children, item)
		if p.peek().Kind != TokComma {
			break
		}
		p.advance()
	}

	seen := map[Kind]bool{}
	for {
		t := p.peek()
		var (
			c   *Node
			err error
		)
		switch {
		case t.Is("FROM"):
			c, err = p.parseFrom()
		case t.Is("WHERE"):
			c, err = p.parseCondition(KindWhere)
		case t.Is("GROUP") && p.peekN(1).Is("BY"):
			c, err = p.parseExprClause(KindGroupBy)
		case t.Is("HAVING"):
			c, err = p.parseCondition(KindHaving)
		case t.Is("WINDOW"):
			p.advance()
			var pieces []Piece
			pieces, err = p.collectPieces(p.clauseStop)
			if err == nil && len(pieces) == 0 {
				err = p.errorf(p.peek(), "expected window definition")
			}
			if err == nil {
				err = p.checkRun(pieces)
			}
			if err == nil {
				c = p.finish(&Node{Kind: KindWindow, Pieces: pieces}, t.Pos)
				c.syncSubs()
			}
		case t.Is("QUALIFY") && p.dialect.SupportsQualify():
			c, err = p.parseCondition(KindQualify)
		default:
			return p.finish(s, start), nil
		}
		if err != nil {
			return nil, err
		}
		if seen[c.Kind] {
			return nil, p.errorf(t, "duplicate %s clause", strings.ToUpper(strings.ReplaceAll(string(c.Kind), "_", " ")))
		}
		seen[c.Kind] = true
		s.Children = append(s.Children, c)
	}
}

func (p *parser) parseFrom() (*Node, error) {
	start := p.advance().Pos
	f := &Node{Kind: KindFrom}
	item, err := p.parseFromItem()
	if err != nil {
		return nil, err
	}
	f.Children = append(f.Children, item)
	for {
		t := p.peek()
		switch {
		case t.Kind == TokComma:
			p.advance()
			item, err := p.parseFromItem()
			if err != nil {
				return nil, err
			}
			f.Children = append(f.Children, item)
		case p.atJoin():
			j, err := p.parseJoin()
			if err != nil {
				return nil, err
			}
			f.Children = append(f.Children, j)
		default:
			return p.finish(f, start), nil
		}
	}
}

func (p *parser) parseJoin() (*Node, error) {
	start := p.peek().Pos
	var kw []string
	for !p.peek().Is("JOIN") {
		t := p.peek()
		if t.Kind != TokIdent || !joinWords[t.Upper()] {
			return nil, p.errorf(t, "expected JOIN")
		}
		kw = append(kw, p.advance().Upper())
	}
	p.advance()
	kw = append(kw, "JOIN")
	j := &Node{Kind: KindJoin, Keyword: strings.Join(kw, " ")}
	item, err := p.parseFromItem()
	if err != nil {
		return nil, err
	}
	j.Children = []*Node{item}
	switch t := p.peek(); {
	case t.Is("ON"):
		on, err := p.parseCondition(KindOn)
		if err != nil {
			return nil, err
		}
		j.Children = append(j.Children, on)
	case t.Is("USING"):
		j.Pieces = append(j.Pieces, pieceOf(p.advance()))
		if p.peek().Kind != TokLParen {
			return nil, p.errorf(p.peek(), `expected "(" after USING`)
		}
		group, err := p.balancedGroup()
		if err != nil {
			return nil, err
		}
		j.Pieces = append(j.Pieces, group...)
	}
	return p.finish(j, start), nil
}

func (p *parser) parseFromItem() (*Node, error) {
	start := p.peek()
	lateral := start.Is("LATERAL") && p.peekN(1).Kind == TokLParen && p.queryInParens(1)
	if lateral || (start.Kind == TokLParen && p.queryInParens(0)) {
		d := &Node{Kind: KindDerived}
		if lateral {
			p.advance()
			d.Keyword = "LATERAL"
		}
		p.advance()
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, `")" after derived table`); err != nil {
			return nil, err
		}
		tail, err := p.collectPieces(p.fromItemStop)
		if err != nil {
			return nil, err
		}
		if err := p.checkAlias(tail); err != nil {
			return nil, err
		}
		d.Children = []*Node{q}
		d.Pieces = tail
		d.Alias, d.Columns = aliasClause(tail)
		return p.finish(d, start.Pos), nil
	}

	pieces, err := p.collectPieces(p.fromItemStop)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, p.errorf(p.peek(), "expected table reference")
	}
	name, rest := tableName(pieces)
	if err := p.checkAlias(pieces[rest:]); err != nil {
		return nil, err
	}
	t := p.tokenRun(KindTable, pieces)
	t.Name = name
	t.Alias, _ = aliasClause(pieces[rest:])
	return t, nil
}

func (p *parser) parseCondition(kind Kind) (*Node, error) {
	start := p.advance().Pos
	stop := p.clauseStop
	if kind == KindOn {
		stop = p.onStop
	}
	pieces, err := p.collectPieces(stop)
	if err != nil {
		return nil, err
	}
	preds, err := p.predicates(pieces)
	if err != nil {
		return nil, err
	}
	return p.finish(&Node{Kind: kind, Children: preds}, start), nil
}

// predicates splits a boolean token run into top-level conjuncts.
func (p *parser) predicates(pieces []Piece) ([]*Node, error) {
	if len(pieces) == 0 {
		return nil, p.errorf(p.peek(), "expected condition")
	}
	if err := p.checkRun(pieces); err != nil {
		return nil, err
	}
	groups := splitConjuncts(pieces)
	out := make([]*Node, 0, len(groups))
	for _, g := range groups {
		if len(g) == 0 {
			return nil, p.errorf(p.peek(), "dangling AND in condition")
		}
		out = append(out, p.tokenRun(KindPredicate, g))
	}
	return out, nil
}

func (p *parser) parseExprClause(kind Kind) (*Node, error) {
	start := p.advance().Pos
	p.advance() // BY
	n := &Node{Kind: kind}
	for {
		pieces, err := p.collectPieces(p.exprItemStop)
		if err != nil {
			return nil, err
		}
		if len(pieces) == 0 {
			return nil, p.errorf(p.peek(), "expected expression")
		}
		if err := p.checkRun(pieces); err != nil {
			return nil, err
		}
		n.Children = append(n.Children, p.tokenRun(KindExpr, pieces))
		if p.peek().Kind != TokComma {
			break
		}
		p.advance()
	}
	return p.finish(n, start), nil
}

// collectPieces consumes tokens until stop matches at paren depth zero, or
// an unmatched ")" or the end of the statement is reached. Parenthesised
// queries become subquery pieces.
func (p *parser) collectPieces(stop func(Token) bool) ([]Piece, error) {
	var out []Piece
	depth := 0
	for {
		t := p.peek()
		if t.Kind == TokEOF {
			if depth > 0 {
				return nil, p.errorf(t, "unbalanced parenthesis")
			}
			return out, nil
		}
		if depth == 0 && (t.Kind == TokRParen || t.Kind == TokSemicolon || (stop != nil && stop(t))) {
			return out, nil
		}
		switch {
		case t.Kind == TokLParen && p.queryInParens(1) && p.peekN(1).Kind != TokLParen:
			sub, err := p.parseSubquery()
			if err != nil {
				return nil, err
			}
			out = append(out, Piece{Sub: sub, Pos: sub.Span.Start, End: sub.Span.End})
			continue
		case t.Kind == TokLParen, t.Kind == TokPunct && (t.Text == "[" || t.Text == "{"):
			depth++
		case t.Kind == TokRParen, t.Kind == TokPunct && (t.Text == "]" || t.Text == "}"):
			if depth == 0 {
				return nil, p.errorf(t, "unbalanced %q", t.Text)
			}
			depth--
		}
		out = append(out, pieceOf(p.advance()))
	}
}

func (p *parser) parseSubquery() (*Node, error) {
	start := p.advance().Pos
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen, `")" after subquery`); err != nil {
		return nil, err
	}
	return p.finish(&Node{Kind: KindSubquery, Children: []*Node{q}}, start), nil
}

// balancedGroup consumes a parenthesised run as plain pieces.
func (p *parser) balancedGroup() ([]Piece, error) {
	out := []Piece{pieceOf(p.advance())}
	inner, err := p.collectPieces(nil)
	if err != nil {
		return nil, err
	}
	out = append(out, inner...)
	rp, err := p.expect(TokRParen, `")"`)
	if err != nil {
		return nil, err
	}
	return append(out, pieceOf(rp)), nil
}

func pieceOf(t Token) Piece {
	return Piece{Kind: t.Kind, Text: t.Text, Pos: t.Pos, End: t.End}
}

func (p *parser) atOrderBy() bool {
	return p.peek().Is("ORDER") && p.peekN(1).Is("BY")
}

func (p *parser) atSetOp() bool {
	t := p.peek()
	return t.Kind == TokIdent && setOpWords[t.Upper()]
}

func (p *parser) atJoin() bool {
	t := p.peek()
	return t.Kind == TokIdent && joinWords[t.Upper()]
}

// clauseStop matches any keyword that opens a clause following the current
// one inside a query.
func (p *parser) clauseStop(t Token) bool {
	if t.Kind != TokIdent {
		return false
	}
	switch t.Upper() {
	case "FROM":
		return !p.prev().Is("DISTINCT")
	case "WHERE", "HAVING", "WINDOW", "LIMIT", "OFFSET", "FETCH",
		"UNION", "INTERSECT", "MINUS":
		return true
	case "EXCEPT":
		return p.prev().Text != "*"
	case "GROUP", "ORDER":
		return p.peekN(1).Is("BY")
	case "QUALIFY":
		return true
	}
	return false
}

func (p *parser) selectItemStop(t Token) bool {
	return t.Kind == TokComma || p.clauseStop(t)
}

func (p *parser) exprItemStop(t Token) bool {
	return t.Kind == TokComma || p.clauseStop(t)
}

func (p *parser) fromItemStop(t Token) bool {
	if t.Kind == TokComma || p.clauseStop(t) {
		return true
	}
	if t.Kind != TokIdent {
		return false
	}
	u := t.Upper()
	return joinWords[u] || u == "ON" || u == "USING"
}

func (p *parser) onStop(t Token) bool {
	return t.Kind == TokComma || p.clauseStop(t) || (t.Kind == TokIdent && joinWords[t.Upper()])
}

// splitConjuncts cuts a condition on depth-0 AND. A run with a depth-0 OR
// is a single disjunction and stays whole. The AND of BETWEEN .. AND and
// ANDs inside CASE .. END are never cut points.
func splitConjuncts(pieces []Piece) [][]Piece {
	depth, caseDepth := 0, 0
	hasOr, between := false, false
	var cuts []int
	for i, pc := range pieces {
		if pc.Sub != nil {
			continue
		}
		switch {
		case pc.Kind == TokLParen, pc.Kind == TokPunct && (pc.Text == "[" || pc.Text == "{"):
			depth++
		case pc.Kind == TokRParen, pc.Kind == TokPunct && (pc.Text == "]" || pc.Text == "}"):
			depth--
		}
		if depth != 0 || pc.Kind != TokIdent {
			continue
		}
		switch strings.ToUpper(pc.Text) {
		case "CASE":
			caseDepth++
		case "END":
			if caseDepth > 0 {
				caseDepth--
			}
		case "BETWEEN":
			if caseDepth == 0 {
				between = true
			}
		case "OR":
			if caseDepth == 0 {
				hasOr = true
			}
		case "AND":
			if caseDepth != 0 {
				continue
			}
			if between {
				between = false
				continue
			}
			cuts = append(cuts, i)
		}
	}
	if hasOr || len(cuts) == 0 {
		return [][]Piece{pieces}
	}
	groups := make([][]Piece, 0, len(cuts)+1)
	prev := 0
	for _, c := range cuts {
		groups = append(groups, pieces[prev:c])
		prev = c + 1
	}
	return append(groups, pieces[prev:])
}

// HasTopLevelOr reports whether a token-run node is a disjunction at its
// outermost level.
func HasTopLevelOr(n *Node) bool {
	depth, caseDepth := 0, 0
	for _, pc := range n.Pieces {
		if pc.Sub != nil {
			continue
		}
		switch pc.Kind {
		case TokLParen:
			depth++
		case TokRParen:
			depth--
		}
		if depth != 0 || pc.Kind != TokIdent {
			continue
		}
		switch strings.ToUpper(pc.Text) {
		case "CASE":
			caseDepth++
		case "END":
			if caseDepth > 0 {
				caseDepth--
			}
		case "OR":
			if caseDepth == 0 {
				return true
			}
		}
	}
	return false
}

// trailingAlias extracts the alias of a select item: "expr AS x" or an
// implicit "expr x".
func trailingAlias(pieces []Piece) string {
	n := len(pieces)
	last := pieces[n-1]
	if last.Sub != nil || (last.Kind != TokIdent && last.Kind != TokQuotedIdent) {
		return ""
	}
	if n < 2 {
		return ""
	}
	prev := pieces[n-2]
	if prev.Sub == nil && prev.Kind == TokIdent && strings.EqualFold(prev.Text, "AS") {
		return last.Text
	}
	if isReservedPiece(last) {
		return ""
	}
	if prev.Sub != nil {
		return last.Text
	}
	switch prev.Kind {
	case TokIdent:
		switch strings.ToUpper(prev.Text) {
		case "END", "NULL", "TRUE", "FALSE":
			return last.Text
		}
		if isReservedPiece(prev) {
			return ""
		}
		return last.Text
	case TokQuotedIdent, TokNumber, TokString, TokRParen:
		return last.Text
	case TokPunct:
		if prev.Text == "]" {
			return last.Text
		}
	}
	return ""
}

// tableName reads "name[.name...] [(args)]" and returns the name and the
// index of the first piece after it.
func tableName(pieces []Piece) (string, int) {
	var name strings.Builder
	i := 0
	for i < len(pieces) {
		pc := pieces[i]
		if pc.Sub != nil || (pc.Kind != TokIdent && pc.Kind != TokQuotedIdent) {
			break
		}
		name.WriteString(pc.Text)
		i++
		if i < len(pieces) && pieces[i].Kind == TokDot && pieces[i].Sub == nil {
			name.WriteByte('.')
			i++
			continue
		}
		break
	}
	if i < len(pieces) && pieces[i].Kind == TokLParen && pieces[i].Sub == nil {
		depth := 0
		for ; i < len(pieces); i++ {
			if pieces[i].Sub != nil {
				continue
			}
			if pieces[i].Kind == TokLParen {
				depth++
			} else if pieces[i].Kind == TokRParen {
				depth--
				if depth == 0 {
					i++
					break
				}
			}
		}
	}
	return name.String(), i
}

// aliasClause reads "[AS] alias [(col, ...)]" from the head of tail.
func aliasClause(tail []Piece) (string, []string) {
	i := 0
	if i < len(tail) && tail[i].Sub == nil && tail[i].Kind == TokIdent && strings.EqualFold(tail[i].Text, "AS") {
		i++
	}
	if i >= len(tail) {
		return "", nil
	}
	pc := tail[i]
	if pc.Sub != nil || (pc.Kind != TokIdent && pc.Kind != TokQuotedIdent) || isReservedPiece(pc) {
		return "", nil
	}
	alias := pc.Text
	i++
	var cols []string
	if i < len(tail) && tail[i].Kind == TokLParen && tail[i].Sub == nil {
		for i++; i < len(tail) && tail[i].Kind != TokRParen; i++ {
			if tail[i].Kind == TokIdent || tail[i].Kind == TokQuotedIdent {
				cols = append(cols, tail[i].Text)
			}
		}
	}
	return alias, cols
}
