package ir

import "strings"

// prefixOps may open an operand.
var prefixOps = map[string]bool{"+": true, "-": true, "~": true, "!": true, "@": true, ":": true}

// binaryWords need an operand on both sides.
var binaryWords = wordSet("OR", "LIKE", "ILIKE", "IS", "IN", "WHEN", "THEN", "ELSE")

// runEnders are reserved words that may close an expression.
var runEnders = wordSet("END", "NULL", "TRUE", "FALSE", "ASC", "DESC", "ALL")

// aliasFollowers are reserved words allowed where a table alias would sit.
var aliasFollowers = wordSet("TABLESAMPLE", "SAMPLE", "WITH", "FOR")

// checkRun rejects a token run that cannot be an expression: an operator
// missing an operand, a doubled operator, BETWEEN without its AND, or a
// reserved word where the run should end.
func (p *parser) checkRun(pieces []Piece) error {
	if len(pieces) == 0 {
		return nil
	}
	if _, err := p.checkGroup(pieces, 0); err != nil {
		return err
	}
	last := pieces[len(pieces)-1]
	if isReservedPiece(last) && !runEnders[strings.ToUpper(last.Text)] {
		return p.errorAt(last, "unexpected %q", last.Text)
	}
	return nil
}

// checkGroup scans pieces from i up to the closing bracket of the current
// group and returns the index of that bracket (or len(pieces)).
func (p *parser) checkGroup(pieces []Piece, i int) (int, error) {
	expect := true
	var pending *Piece
	between := 0
	operand := func() { expect, pending = false, nil }

	for ; i < len(pieces); i++ {
		pc := pieces[i]
		if pc.Sub != nil {
			operand()
			continue
		}
		switch pc.Kind {
		case TokHint:
			continue
		case TokLParen:
			end, err := p.checkGroup(pieces, i+1)
			if err != nil {
				return 0, err
			}
			i = end
			operand()
			continue
		case TokRParen:
			return i, p.closeGroup(pending, between, pc)
		case TokPunct:
			switch pc.Text {
			case "[", "{":
				end, err := p.checkGroup(pieces, i+1)
				if err != nil {
					return 0, err
				}
				i = end
				operand()
			case "]", "}":
				return i, p.closeGroup(pending, between, pc)
			}
			continue
		case TokComma:
			if err := p.closeGroup(pending, between, pc); err != nil {
				return 0, err
			}
			if expect {
				return 0, p.errorAt(pc, "unexpected %q", pc.Text)
			}
			expect, between = true, 0
			continue
		case TokDot:
			if expect {
				return 0, p.errorAt(pc, "unexpected %q", pc.Text)
			}
			expect, pending = true, &pieces[i]
			continue
		case TokOperator:
			switch {
			case pc.Text == ":":
				expect, pending = true, nil
			case !expect:
				expect, pending = true, &pieces[i]
			case pc.Text == "*":
				operand()
			case prefixOps[pc.Text]:
				pending = &pieces[i]
			default:
				return 0, p.errorAt(pc, "unexpected operator %q", pc.Text)
			}
			continue
		case TokIdent:
		default:
			operand()
			continue
		}

		word := strings.ToUpper(pc.Text)
		switch {
		case word == "AND" || word == "BETWEEN" || binaryWords[word]:
			if expect {
				return 0, p.errorAt(pc, "unexpected %s", word)
			}
			switch {
			case word == "BETWEEN":
				between++
			case word == "AND" && between > 0:
				between--
			}
			expect, pending = true, &pieces[i]
		case word == "NOT":
			if expect {
				pending = &pieces[i]
			}
		default:
			operand()
		}
	}
	return i, p.closeGroup(pending, between, Piece{Pos: p.peek().Pos})
}

func (p *parser) closeGroup(pending *Piece, between int, at Piece) error {
	if pending != nil {
		return p.errorAt(*pending, "expected expression after %q", pending.Text)
	}
	if between > 0 {
		return p.errorAt(at, "BETWEEN without AND")
	}
	return nil
}

// checkLimit validates a LIMIT / OFFSET / FETCH run: every keyword needs a
// value.
func (p *parser) checkLimit(pieces []Piece) error {
	for i := 0; i < len(pieces); {
		kw := pieces[i]
		j := i + 1
		for j < len(pieces) && !isLimitWord(pieces[j]) {
			j++
		}
		body := pieces[i+1 : j]
		if len(body) == 0 {
			return p.errorAt(kw, "expected value after %s", strings.ToUpper(kw.Text))
		}
		fetch := strings.EqualFold(kw.Text, "FETCH")
		for _, pc := range body {
			if isReservedPiece(pc) && !strings.EqualFold(pc.Text, "ALL") && !(fetch && strings.EqualFold(pc.Text, "WITH")) {
				return p.errorAt(pc, "unexpected %q", pc.Text)
			}
		}
		if !fetch {
			if err := p.checkRun(body); err != nil {
				return err
			}
		}
		i = j
	}
	return nil
}

func isLimitWord(pc Piece) bool {
	if pc.Sub != nil || pc.Kind != TokIdent {
		return false
	}
	switch strings.ToUpper(pc.Text) {
	case "LIMIT", "OFFSET", "FETCH":
		return true
	}
	return false
}

// checkAlias validates what follows a table name or derived table: an
// optional [AS] alias that is not a reserved word.
func (p *parser) checkAlias(tail []Piece) error {
	if len(tail) == 0 || tail[0].Sub != nil || tail[0].Kind != TokIdent {
		return nil
	}
	head := tail[0]
	if strings.EqualFold(head.Text, "AS") {
		if len(tail) < 2 || tail[1].Sub != nil ||
			(tail[1].Kind != TokIdent && tail[1].Kind != TokQuotedIdent) || isReservedPiece(tail[1]) {
			return p.errorAt(head, "expected alias after AS")
		}
		return nil
	}
	if isReservedPiece(head) && !aliasFollowers[strings.ToUpper(head.Text)] {
		return p.errorAt(head, "unexpected %q", head.Text)
	}
	return nil
}

func (p *parser) errorAt(pc Piece, format string, args ...any) error {
	return p.errorf(Token{Kind: pc.Kind, Text: pc.Text, Pos: pc.Pos, End: pc.End}, format, args...)
}

// SameShape reports whether two trees have the same kinds and child
// counts at every level. A rendered tree that reparses to a different
// shape has changed meaning, for example a predicate absorbing its
// neighbour.
func SameShape(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !SameShape(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
