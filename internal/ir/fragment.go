package ir

import "fmt"

// Fragment parsers read a piece of SQL meant to be spliced into an existing
// tree. Their spans refer to the fragment text.

func parseFragment(sql string, dialect Dialect, fn func(p *parser) error) error {
	d, err := ParseDialect(string(dialect))
	if err != nil {
		return &ParseError{Line: 1, Column: 1, Message: err.Error()}
	}
	toks, err := lex(sql, d)
	if err != nil {
		return err
	}
	// A single trailing semicolon is tolerated.
	if n := len(toks); n >= 2 && toks[n-2].Kind == TokSemicolon {
		toks = append(toks[:n-2], toks[n-1])
	}
	if len(toks) == 1 {
		return newParseError(sql, 0, 0, "", "empty fragment")
	}
	p := &parser{src: sql, toks: toks, dialect: d}
	if err := fn(p); err != nil {
		return err
	}
	if t := p.peek(); t.Kind != TokEOF {
		return p.errorf(t, "unexpected %q", t.Text)
	}
	return nil
}

// ParseQuery parses a complete query expression (SELECT, WITH, VALUES or a
// set operation), optionally wrapped in parentheses.
func ParseQuery(sql string, dialect Dialect) (*Node, error) {
	var q *Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		if !p.startsQuery() {
			return p.errorf(p.peek(), "expected query")
		}
		var err error
		q, err = p.parseQuery()
		return err
	})
	return q, err
}

// ParseCTE parses "name [(cols)] AS (query)".
func ParseCTE(sql string, dialect Dialect) (*Node, error) {
	var c *Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		var err error
		c, err = p.parseCTE()
		return err
	})
	return c, err
}

// ParsePredicates parses a boolean condition into its top-level conjuncts.
// A leading WHERE, HAVING, QUALIFY or ON keyword is accepted and dropped.
func ParsePredicates(sql string, dialect Dialect) ([]*Node, error) {
	var preds []*Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		if t := p.peek(); t.Is("WHERE") || t.Is("HAVING") || t.Is("QUALIFY") || t.Is("ON") {
			p.advance()
		}
		pieces, err := p.collectPieces(nil)
		if err != nil {
			return err
		}
		preds, err = p.predicates(pieces)
		return err
	})
	return preds, err
}

// ParseSelectItems parses a comma-separated projection list.
func ParseSelectItems(sql string, dialect Dialect) ([]*Node, error) {
	var items []*Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		for {
			pieces, err := p.collectPieces(func(t Token) bool { return t.Kind == TokComma })
			if err != nil {
				return err
			}
			if len(pieces) == 0 {
				return p.errorf(p.peek(), "expected select item")
			}
			if err := p.checkRun(pieces); err != nil {
				return err
			}
			item := p.tokenRun(KindSelectItem, pieces)
			item.Alias = trailingAlias(pieces)
			items = append(items, item)
			if p.peek().Kind != TokComma {
				return nil
			}
			p.advance()
		}
	})
	return items, err
}

// ParseExprs parses a comma-separated expression list, as found in GROUP BY
// and ORDER BY.
func ParseExprs(sql string, dialect Dialect) ([]*Node, error) {
	var exprs []*Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		for {
			pieces, err := p.collectPieces(func(t Token) bool { return t.Kind == TokComma })
			if err != nil {
				return err
			}
			if len(pieces) == 0 {
				return p.errorf(p.peek(), "expected expression")
			}
			if err := p.checkRun(pieces); err != nil {
				return err
			}
			exprs = append(exprs, p.tokenRun(KindExpr, pieces))
			if p.peek().Kind != TokComma {
				return nil
			}
			p.advance()
		}
	})
	return exprs, err
}

// ParseExpr parses a single expression, kept as one token run.
func ParseExpr(sql string, dialect Dialect) (*Node, error) {
	var e *Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		pieces, err := p.collectPieces(nil)
		if err != nil {
			return err
		}
		if len(pieces) == 0 {
			return p.errorf(p.peek(), "expected expression")
		}
		if err := p.checkRun(pieces); err != nil {
			return err
		}
		e = p.tokenRun(KindExpr, pieces)
		return nil
	})
	return e, err
}

// ParseFromItems parses FROM-clause items: table references, derived
// tables and, when the fragment starts with a join keyword, joins.
func ParseFromItems(sql string, dialect Dialect) ([]*Node, error) {
	var items []*Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		if t := p.peek(); t.Is("FROM") {
			p.advance()
		}
		for {
			var (
				item *Node
				err  error
			)
			if p.atJoin() {
				item, err = p.parseJoin()
			} else {
				item, err = p.parseFromItem()
			}
			if err != nil {
				return err
			}
			items = append(items, item)
			switch {
			case p.peek().Kind == TokComma:
				p.advance()
			case p.atJoin():
			default:
				return nil
			}
		}
	})
	return items, err
}

// ParseClause parses a whole clause that starts with its keyword, such as
// "WHERE a > 1" or "ORDER BY b DESC", and returns the clause node.
func ParseClause(sql string, dialect Dialect) (*Node, error) {
	var c *Node
	err := parseFragment(sql, dialect, func(p *parser) error {
		t := p.peek()
		var err error
		switch {
		case t.Is("WHERE"):
			c, err = p.parseCondition(KindWhere)
		case t.Is("HAVING"):
			c, err = p.parseCondition(KindHaving)
		case t.Is("QUALIFY"):
			c, err = p.parseCondition(KindQualify)
		case t.Is("ON"):
			c, err = p.parseCondition(KindOn)
		case t.Is("GROUP") && p.peekN(1).Is("BY"):
			c, err = p.parseExprClause(KindGroupBy)
		case t.Is("ORDER") && p.peekN(1).Is("BY"):
			c, err = p.parseExprClause(KindOrderBy)
		case t.Is("FROM"):
			c, err = p.parseFrom()
		default:
			err = p.errorf(t, "expected clause keyword")
		}
		return err
	})
	return c, err
}

// ParseStatement parses exactly one statement and returns its root.
func ParseStatement(sql string, dialect Dialect) (*Node, error) {
	stmts, err := Parse(sql, dialect)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, &ParseError{Line: 1, Column: 1, Message: fmt.Sprintf("expected exactly one statement, got %d", len(stmts))}
	}
	return stmts[0].Root, nil
}
