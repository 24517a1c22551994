package compress

import (
	"sort"

	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/querysql"
	"github.com/roach88/qfleet/internal/validate"
)

// Entry is a validated candidate.
type Entry struct {
	ID       string          `json:"id"`
	WorkerID int             `json:"worker_id"`
	SQL      string          `json:"sql"`
	Steps    int             `json:"steps"`
	Speedup  float64         `json:"speedup"`
	Status   validate.Status `json:"status"`
	Method   validate.Method `json:"method"`

	// Runs is the number of timed executions behind Speedup.
	Runs int `json:"runs"`

	Effect querysql.SideEffect `json:"side_effect"`
	Score  Score               `json:"score"`
}

// Score is the product of three 1-5 tiers, so Total is in [1, 125].
type Score struct {
	Impact       int `json:"impact"`
	Confidence   int `json:"confidence"`
	Invasiveness int `json:"invasiveness"`
	Total        int `json:"total"`
}

// Compress drops ERROR and WRONG_RESULTS entries, merges duplicates,
// scores the rest and sorts them by score, then by fewer steps.
func Compress(entries []Entry, dialect ir.Dialect) []Entry {
	if dialect == "" {
		dialect = ir.DefaultDialect
	}
	byKey := make(map[string]int)
	var out []Entry
	for _, e := range entries {
		if !e.Status.Survives() {
			continue
		}
		key, stmts := normalize(e.SQL, dialect)
		if stmts != nil {
			e.Effect = querysql.Classify(stmts)
		}
		e.Score = score(e)

		if i, ok := byKey[key]; ok {
			if better(e, out[i]) {
				out[i] = e
			}
			continue
		}
		byKey[key] = len(out)
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Score.Total != b.Score.Total:
			return a.Score.Total > b.Score.Total
		case a.Steps != b.Steps:
			return a.Steps < b.Steps
		case a.Speedup != b.Speedup:
			return a.Speedup > b.Speedup
		}
		return a.ID < b.ID
	})
	return out
}

// better decides which of two duplicates to keep.
func better(a, b Entry) bool {
	switch {
	case a.Speedup != b.Speedup:
		return a.Speedup > b.Speedup
	case a.Steps != b.Steps:
		return a.Steps < b.Steps
	}
	return a.ID < b.ID
}

// normalize returns the dedupe key for sql: its canonical text when it
// parses and its whitespace-normalised text otherwise.
func normalize(sql string, dialect ir.Dialect) (string, []*ir.Statement) {
	stmts, err := ir.Parse(sql, dialect)
	if err != nil {
		return "raw:" + ir.NormalizeWhitespace(sql), nil
	}
	return "ast:" + ir.CanonicalAll(stmts), stmts
}

func score(e Entry) Score {
	s := Score{
		Impact:       ImpactTier(e.Speedup),
		Confidence:   ConfidenceTier(e.Method, e.Runs),
		Invasiveness: InvasivenessTier(e.Effect),
	}
	s.Total = s.Impact * s.Confidence * s.Invasiveness
	return s
}

// ImpactTier grades a speedup.
func ImpactTier(speedup float64) int {
	switch {
	case speedup >= 3.0:
		return 5
	case speedup >= 2.0:
		return 4
	case speedup >= 1.5:
		return 3
	case speedup >= validate.WinSpeedup:
		return 2
	}
	return 1
}

// ConfidenceTier grades how a speedup was measured. A barrier race is the
// strongest evidence; a trimmed mean gains confidence with more runs.
func ConfidenceTier(m validate.Method, runs int) int {
	switch {
	case m == validate.MethodRace:
		return 5
	case m != validate.MethodTrimmedMean:
		return 1
	case runs >= 3:
		return 4
	case runs == 2:
		return 3
	}
	return 2
}

// InvasivenessTier grades what deploying a candidate touches: 5 for SQL
// text alone down to 1 for schema changes.
func InvasivenessTier(e querysql.SideEffect) int {
	switch e {
	case querysql.EffectNone:
		return 5
	case querysql.EffectHint:
		return 4
	case querysql.EffectSession, querysql.EffectStatistics:
		return 3
	case querysql.EffectIndex:
		return 2
	}
	return 1
}
