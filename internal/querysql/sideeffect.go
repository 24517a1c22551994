package querysql

import (
	"strings"

	"github.com/roach88/qfleet/internal/ir"
)

// SideEffect is what deploying a statement changes beyond the query text.
// Larger values are more invasive.
type SideEffect int

const (
	EffectNone SideEffect = iota
	// EffectHint is an optimizer hint comment inside the query.
	EffectHint
	// EffectSession changes session state (SET, RESET, PRAGMA).
	EffectSession
	// EffectStatistics refreshes planner statistics (ANALYZE).
	EffectStatistics
	// EffectIndex creates or drops an index.
	EffectIndex
	// EffectSchema changes tables, views or other schema objects.
	EffectSchema
)

var effectNames = map[SideEffect]string{
	EffectNone:       "none",
	EffectHint:       "hint",
	EffectSession:    "session",
	EffectStatistics: "statistics",
	EffectIndex:      "index",
	EffectSchema:     "schema",
}

func (e SideEffect) String() string {
	if s, ok := effectNames[e]; ok {
		return s
	}
	return "unknown"
}

// Classify returns the most invasive side effect among stmts.
func Classify(stmts []*ir.Statement) SideEffect {
	worst := EffectNone
	for _, s := range stmts {
		if e := classify(s.Root); e > worst {
			worst = e
		}
	}
	return worst
}

func classify(root *ir.Node) SideEffect {
	if root.Kind != ir.KindCommand {
		hint := false
		ir.Walk(root, func(n, _ *ir.Node) bool {
			for _, p := range n.Pieces {
				if p.Sub == nil && p.Kind == ir.TokHint {
					hint = true
				}
			}
			return !hint
		})
		if hint {
			return EffectHint
		}
		return EffectNone
	}

	words := commandWords(root, 4)
	switch words[0] {
	case "SET", "RESET", "PRAGMA", "USE", "LOAD":
		return EffectSession
	case "ANALYZE", "VACUUM":
		return EffectStatistics
	case "CREATE", "DROP", "ALTER":
		for _, w := range words[1:] {
			if w == "INDEX" {
				return EffectIndex
			}
		}
		return EffectSchema
	case "EXPLAIN":
		return EffectNone
	}
	return EffectSchema
}

// commandWords returns the first n upper-cased words of a command, padded
// with empty strings.
func commandWords(root *ir.Node, n int) []string {
	out := make([]string, n)
	i := 0
	for _, p := range root.Pieces {
		if i == n {
			break
		}
		if p.Sub == nil && p.Kind == ir.TokIdent {
			out[i] = strings.ToUpper(p.Text)
			i++
		}
	}
	return out
}
