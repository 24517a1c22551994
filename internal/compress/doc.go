// Package compress collapses validated candidates to a ranked shortlist.
//
// Candidates whose normalised SQL is identical are merged, keeping the
// faster one. Survivors are scored by impact, confidence and
// invasiveness, each tiered 1 to 5, and sorted best first. Compress is
// idempotent: compressing its own output changes nothing.
package compress
