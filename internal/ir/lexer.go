package ir

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokQuotedIdent
	TokString
	TokNumber
	TokOperator
	TokParam
	TokLParen
	TokRParen
	TokComma
	TokDot
	TokSemicolon
	TokPunct
	// TokHint is an optimizer hint comment (/*+ ... */). Ordinary comments
	// never become tokens; hints do because engines act on them.
	TokHint
)

// Token is one lexical unit. Pos and End are byte offsets into the lexed
// source.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
	End  int
}

// Is reports whether t is the unquoted word kw (case-insensitive).
func (t Token) Is(kw string) bool {
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

// Upper returns the uppercased token text.
func (t Token) Upper() string { return strings.ToUpper(t.Text) }

// multi-character operators, longest first.
var multiOps = []string{
	"->>", "!~*", "!~~", "#>>", "<->", "<=>", "<#>",
	"||", "::", "<=", ">=", "<>", "!=", "->", "=>", "**", "!~", "~*", "~~",
	"<<", ">>", "@>", "<@", "&&", "#>", "@@",
}

const singleOps = "+-*/%=<>~!&|^@#?:"

type lexer struct {
	src     string
	dialect Dialect
	pos     int
	stmt    int
	toks    []Token
}

// lex splits src into tokens. Comments are dropped, except optimizer hints.
func lex(src string, dialect Dialect) ([]Token, error) {
	l := &lexer{src: src, dialect: dialect}
	for {
		if err := l.skipSpaceAndComments(); err != nil {
			return nil, err
		}
		if l.pos >= len(l.src) {
			l.toks = append(l.toks, Token{Kind: TokEOF, Pos: len(src), End: len(src)})
			return l.toks, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) emit(kind TokenKind, start int) {
	l.toks = append(l.toks, Token{Kind: kind, Text: l.src[start:l.pos], Pos: start, End: l.pos})
}

func (l *lexer) errorf(offset int, format string, args ...any) error {
	near := ""
	if offset < len(l.src) {
		r, _ := utf8.DecodeRuneInString(l.src[offset:])
		near = string(r)
	}
	return newParseError(l.src, l.stmt, offset, near, format, args...)
}

func (l *lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "--"):
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 1
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			if strings.HasPrefix(l.src[l.pos:], "/*+") {
				return nil
			}
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf(l.pos, "unterminated block comment")
			}
			l.pos += end + 4
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() error {
	start := l.pos
	c := l.src[l.pos]
	switch {
	case strings.HasPrefix(l.src[l.pos:], "/*+"):
		end := strings.Index(l.src[l.pos+3:], "*/")
		if end < 0 {
			return l.errorf(start, "unterminated hint comment")
		}
		l.pos += end + 5
		l.emit(TokHint, start)
	case c == '\'':
		if err := l.quoted('\'', start); err != nil {
			return err
		}
		l.emit(TokString, start)
	case c == '"':
		if err := l.quoted('"', start); err != nil {
			return err
		}
		l.emit(TokQuotedIdent, start)
	case c == '`':
		if !l.dialect.AllowsBacktickIdent() {
			return l.errorf(start, "backtick identifiers are not valid in dialect %s", l.dialect)
		}
		if err := l.quoted('`', start); err != nil {
			return err
		}
		l.emit(TokQuotedIdent, start)
	case c == '$':
		return l.dollar(start)
	case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		l.number()
		l.emit(TokNumber, start)
	case c == '(':
		l.pos++
		l.emit(TokLParen, start)
	case c == ')':
		l.pos++
		l.emit(TokRParen, start)
	case c == ',':
		l.pos++
		l.emit(TokComma, start)
	case c == '.':
		l.pos++
		l.emit(TokDot, start)
	case c == ';':
		l.pos++
		l.emit(TokSemicolon, start)
	case c == '[' || c == ']' || c == '{' || c == '}':
		l.pos++
		l.emit(TokPunct, start)
	case c == '?':
		l.pos++
		l.emit(TokParam, start)
	case c == ':' && l.pos+1 < len(l.src) && isIdentStart(rune(l.src[l.pos+1])) && !l.prevIs(':'):
		l.pos++
		l.ident()
		l.emit(TokParam, start)
	default:
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		if isIdentStart(r) {
			l.ident()
			// Prefixed string literals: E'..', N'..', X'..', B'..'.
			if l.pos-start == 1 && l.pos < len(l.src) && l.src[l.pos] == '\'' && strings.ContainsRune("eEnNxXbB", rune(c)) {
				if err := l.quoted('\'', start); err != nil {
					return err
				}
				l.emit(TokString, start)
				return nil
			}
			l.emit(TokIdent, start)
			return nil
		}
		for _, op := range multiOps {
			if strings.HasPrefix(l.src[l.pos:], op) {
				l.pos += len(op)
				l.emit(TokOperator, start)
				return nil
			}
		}
		if strings.IndexByte(singleOps, c) >= 0 {
			l.pos++
			l.emit(TokOperator, start)
			return nil
		}
		return l.errorf(start, "unexpected character")
	}
	return nil
}

func (l *lexer) prevIs(c byte) bool {
	return l.pos > 0 && l.src[l.pos-1] == c
}

// quoted consumes a quoted run whose delimiter is escaped by doubling.
// l.pos may sit on a prefix character; scanning starts at the first quote.
func (l *lexer) quoted(q byte, start int) error {
	for l.pos < len(l.src) && l.src[l.pos] != q {
		l.pos++
	}
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && q == '\'' && l.dialect == DialectMySQL && l.pos+1 < len(l.src) {
			l.pos += 2
			continue
		}
		if c == q {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == q {
				l.pos += 2
				continue
			}
			l.pos++
			return nil
		}
		l.pos++
	}
	return l.errorf(start, "unterminated quoted literal")
}

// dollar handles $1 parameters and $tag$...$tag$ strings.
func (l *lexer) dollar(start int) error {
	l.pos++
	if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		l.emit(TokParam, start)
		return nil
	}
	tagEnd := strings.IndexByte(l.src[l.pos:], '$')
	if tagEnd < 0 {
		return l.errorf(start, "unexpected character")
	}
	tag := l.src[start : l.pos+tagEnd+1]
	for _, r := range tag[1 : len(tag)-1] {
		if !isIdentPart(r) {
			return l.errorf(start, "malformed dollar-quoted string")
		}
	}
	body := l.pos + tagEnd + 1
	end := strings.Index(l.src[body:], tag)
	if end < 0 {
		return l.errorf(start, "unterminated dollar-quoted string")
	}
	l.pos = body + end + len(tag)
	l.emit(TokString, start)
	return nil
}

func (l *lexer) number() {
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && !strings.HasPrefix(l.src[l.pos:], "..") {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		p := l.pos + 1
		if p < len(l.src) && (l.src[p] == '+' || l.src[p] == '-') {
			p++
		}
		if p < len(l.src) && isDigit(l.src[p]) {
			l.pos = p
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}
}

func (l *lexer) ident() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentPart(r) {
			return
		}
		l.pos += size
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
