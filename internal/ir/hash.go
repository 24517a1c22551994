package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainAnchor    = "qfleet/anchor/v1"
	DomainCandidate = "qfleet/candidate/v1"
)

// AnchorLen is the number of hex characters kept from the anchor digest.
const AnchorLen = 16

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// AnchorOf computes the anchor for a node of the given kind whose canonical
// text is canonical, inside statement stmtID. The statement id is part of
// the digest, so equal subtrees in different statements never collide.
func AnchorOf(stmtID string, kind Kind, canonical string) string {
	return hashWithDomain(DomainAnchor, anchorInput(stmtID, kind, canonical))[:AnchorLen]
}

// AnchorFor computes the anchor n would carry inside statement stmtID.
// It does not modify n.
func AnchorFor(stmtID string, n *Node) string {
	return AnchorOf(stmtID, n.Kind, Canonical(n))
}

// AssignAnchors recomputes the anchor of every node in the statement.
func AssignAnchors(s *Statement) {
	r := &renderer{
		mode: modeCanonical,
		visit: func(n *Node, text string) {
			n.Anchor = AnchorOf(s.ID, n.Kind, text)
		},
	}
	r.node(s.Root)
}

// Fingerprint returns a full-length digest of the canonical text of a
// statement list. Whitespace, comments and keyword case do not affect it.
func Fingerprint(stmts []*Statement) string {
	return hashWithDomain(DomainCandidate, normalizeText(CanonicalAll(stmts)))
}
