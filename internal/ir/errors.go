package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports malformed SQL. It is fatal for the statement it names.
//
// Offset is a byte offset into the text handed to Parse (or to a fragment
// parser). Line and Column are 1-based and derived from Offset.
type ParseError struct {
	// Statement is the 1-based statement index, or 0 for fragments.
	Statement int
	Offset    int
	Line      int
	Column    int
	Message   string
	// Near is the offending token text, if any.
	Near string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.Statement > 0 {
		fmt.Fprintf(&b, " in statement %d", e.Statement)
	}
	fmt.Fprintf(&b, " at %d:%d: %s", e.Line, e.Column, e.Message)
	if e.Near != "" {
		fmt.Fprintf(&b, " (near %q)", e.Near)
	}
	return b.String()
}

// IsParseError reports whether err (or anything it wraps) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// newParseError builds a ParseError with line/column resolved against src.
func newParseError(src string, stmt, offset int, near, format string, args ...any) *ParseError {
	line, col := lineCol(src, offset)
	return &ParseError{
		Statement: stmt,
		Offset:    offset,
		Line:      line,
		Column:    col,
		Message:   fmt.Sprintf(format, args...),
		Near:      near,
	}
}

func lineCol(src string, offset int) (int, int) {
	if offset > len(src) {
		offset = len(src)
	}
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
