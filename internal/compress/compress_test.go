package compress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/querysql"
	"github.com/roach88/qfleet/internal/validate"
)

func entry(id, sql string, speedup float64, steps int) Entry {
	return Entry{
		ID:      id,
		SQL:     sql,
		Steps:   steps,
		Speedup: speedup,
		Status:  validate.Classify(speedup, true),
		Method:  validate.MethodTrimmedMean,
		Runs:    3,
	}
}

func ids(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestCompressDedupesKeepingFaster(t *testing.T) {
	got := Compress([]Entry{
		entry("a", "SELECT id FROM orders WHERE amount > 10", 1.6, 1),
		entry("b", "select id\n  from ORDERS -- hot path\n where amount > 10", 2.4, 1),
	}, ir.DialectDuckDB)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 2.4, got[0].Speedup)
}

func TestCompressDedupesUnparseableByWhitespace(t *testing.T) {
	got := Compress([]Entry{
		entry("a", "SELECT ((( broken", 1.3, 1),
		entry("b", "SELECT   (((\n broken", 1.2, 1),
		entry("c", "SELECT ((( mended", 1.5, 1),
	}, ir.DialectDuckDB)

	assert.ElementsMatch(t, []string{"a", "c"}, ids(got))
}

func TestCompressDropsFailures(t *testing.T) {
	wrong := entry("wrong", "SELECT 1", 5, 1)
	wrong.Status = validate.StatusWrongResults
	failed := entry("failed", "SELECT 2", 0, 1)
	failed.Status = validate.StatusError

	got := Compress([]Entry{wrong, failed, entry("ok", "SELECT 3", 1.2, 1)}, "")
	assert.Equal(t, []string{"ok"}, ids(got))
}

func TestCompressRanks(t *testing.T) {
	race := entry("race", "SELECT a FROM t WHERE x = 1", 2.1, 3)
	race.Method = validate.MethodRace

	got := Compress([]Entry{
		entry("modest", "SELECT a FROM t WHERE x = 2", 1.2, 1),
		entry("big", "SELECT a FROM t WHERE x = 3", 3.5, 4),
		entry("session", "SET threads = 8; SELECT a FROM t WHERE x = 4", 3.5, 1),
		race,
		entry("big_simple", "SELECT a FROM t WHERE x = 5", 3.2, 2),
	}, ir.DialectDuckDB)

	// big: 5*4*5=100, big_simple: 100 with fewer steps, race: 4*5*5=100
	// with three steps, session: 5*4*3=60, modest: 2*4*5=40.
	assert.Equal(t, []string{"big_simple", "race", "big", "session", "modest"}, ids(got))
	assert.Equal(t, Score{Impact: 5, Confidence: 4, Invasiveness: 3, Total: 60}, got[3].Score)
	assert.Equal(t, querysql.EffectSession, got[3].Effect)
}

func TestCompressIsIdempotent(t *testing.T) {
	in := []Entry{
		entry("a", "SELECT id FROM orders WHERE amount > 10", 1.6, 1),
		entry("b", "SELECT id FROM orders WHERE amount > 10", 2.4, 2),
		entry("c", "SELECT id FROM orders WHERE amount > 20", 1.05, 1),
		entry("d", "CREATE INDEX i ON orders(amount); SELECT id FROM orders WHERE amount > 30", 4, 1),
		entry("e", "SELECT /*+ HASH_JOIN */ id FROM orders WHERE amount > 40", 1.9, 1),
	}
	once := Compress(in, ir.DialectDuckDB)
	twice := Compress(once, ir.DialectDuckDB)
	assert.Equal(t, once, twice)
}

func TestTiers(t *testing.T) {
	assert.Equal(t, 1, ImpactTier(1.05))
	assert.Equal(t, 2, ImpactTier(1.10))
	assert.Equal(t, 3, ImpactTier(1.5))
	assert.Equal(t, 4, ImpactTier(2.99))
	assert.Equal(t, 5, ImpactTier(3))

	assert.Equal(t, 5, ConfidenceTier(validate.MethodRace, 1))
	assert.Equal(t, 4, ConfidenceTier(validate.MethodTrimmedMean, 5))
	assert.Equal(t, 3, ConfidenceTier(validate.MethodTrimmedMean, 2))
	assert.Equal(t, 2, ConfidenceTier(validate.MethodTrimmedMean, 1))
	assert.Equal(t, 1, ConfidenceTier("", 0))

	assert.Equal(t, 5, InvasivenessTier(querysql.EffectNone))
	assert.Equal(t, 4, InvasivenessTier(querysql.EffectHint))
	assert.Equal(t, 3, InvasivenessTier(querysql.EffectStatistics))
	assert.Equal(t, 2, InvasivenessTier(querysql.EffectIndex))
	assert.Equal(t, 1, InvasivenessTier(querysql.EffectSchema))
}
