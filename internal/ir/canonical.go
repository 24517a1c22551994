package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// anchorInput builds the byte string hashed into an anchor:
// stmtID 0x00 kind 0x00 NFC(canonical).
func anchorInput(stmtID string, kind Kind, canonical string) []byte {
	var b strings.Builder
	b.WriteString(stmtID)
	b.WriteByte(0x00)
	b.WriteString(string(kind))
	b.WriteByte(0x00)
	b.Write(normalizeText(canonical))
	return []byte(b.String())
}

// normalizeText applies Unicode NFC so visually identical identifiers and
// literals hash identically.
func normalizeText(s string) []byte {
	return norm.NFC.Bytes([]byte(s))
}

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// lower-cases the result. It is the comparison key for SQL that failed to
// parse.
func NormalizeWhitespace(sql string) string {
	return strings.ToLower(norm.NFC.String(strings.Join(strings.Fields(sql), " ")))
}
