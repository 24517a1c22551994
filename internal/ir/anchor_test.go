package ir

import (
	"regexp"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchors(root *Node) []string {
	var out []string
	Walk(root, func(n, _ *Node) bool {
		out = append(out, string(n.Kind)+":"+n.Anchor)
		return true
	})
	return out
}

func TestAnchorsStableUnderReformatting(t *testing.T) {
	reformatted := `select o.id,
       sum(o.amount) as total   -- revenue per order
  from orders o
 where o.status = 'paid'
   and /* threshold */ o.amount > 10
 group by o.id
 order by total desc
 limit 5;`

	a := mustParse(t, ordersSQL)
	b := mustParse(t, reformatted)
	assert.Equal(t, anchors(a[0].Root), anchors(b[0].Root))
}

func TestAnchorsChangeUnderSemanticEdit(t *testing.T) {
	a := mustParse(t, ordersSQL)[0]
	b := mustParse(t, "SELECT o.id, SUM(o.amount) AS total FROM orders o "+
		"WHERE o.status = 'paid' AND o.amount > 20 GROUP BY o.id ORDER BY total DESC LIMIT 5")[0]

	assert.NotEqual(t, a.Root.Anchor, b.Root.Anchor)

	wa := a.Root.Child(KindSelect).Child(KindWhere)
	wb := b.Root.Child(KindSelect).Child(KindWhere)
	assert.NotEqual(t, wa.Anchor, wb.Anchor)
	assert.Equal(t, wa.Children[0].Anchor, wb.Children[0].Anchor, "untouched conjunct keeps its anchor")
	assert.NotEqual(t, wa.Children[1].Anchor, wb.Children[1].Anchor)
}

func TestAnchorsScopedByStatement(t *testing.T) {
	stmts := mustParse(t, "SELECT 1; SELECT 1")
	require.Len(t, stmts, 2)
	assert.Equal(t, stmts[0].Canonical(), stmts[1].Canonical())
	assert.NotEqual(t, stmts[0].Root.Anchor, stmts[1].Root.Anchor)
}

func TestAnchorFormat(t *testing.T) {
	root := mustParse(t, ordersSQL)[0].Root
	hex := regexp.MustCompile(`^[0-9a-f]{16}$`)
	Walk(root, func(n, _ *Node) bool {
		assert.Regexp(t, hex, n.Anchor, "kind %s", n.Kind)
		return true
	})
}

func TestAnchorForMatchesAssigned(t *testing.T) {
	s := mustParse(t, ordersSQL)[0]
	pred := s.Root.Child(KindSelect).Child(KindWhere).Children[1]
	assert.Equal(t, pred.Anchor, AnchorFor(s.ID, pred))

	// A fragment parsed on its own anchors the same way once placed in s1.
	frag, err := ParsePredicates("o.amount   >   10", DialectDuckDB)
	require.NoError(t, err)
	assert.Equal(t, pred.Anchor, AnchorFor("s1", frag[0]))
}

func TestFindReportsDuplicates(t *testing.T) {
	s := mustParse(t, "SELECT a FROM t WHERE x = 1 UNION SELECT a FROM t WHERE x = 1")[0]
	preds := collect(s.Root, KindPredicate)
	require.Len(t, preds, 2)
	assert.Equal(t, preds[0].Anchor, preds[1].Anchor)
	assert.Len(t, Find(s.Root, preds[0].Anchor), 2)
}

func TestFingerprintIgnoresFormatting(t *testing.T) {
	a := mustParse(t, "SELECT a FROM t")
	b := mustParse(t, "select A\nfrom T -- comment")
	c := mustParse(t, "SELECT b FROM t")
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

var anchorPattern = regexp.MustCompile(`\[[0-9a-f]{16}\]`)

func TestRenderNodeMapGolden(t *testing.T) {
	stmts := mustParse(t, "WITH recent AS (SELECT id FROM orders WHERE ts > 10) SELECT r.id FROM recent r")
	out := anchorPattern.ReplaceAllString(RenderNodeMap(stmts), "[anchor]")

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "nodemap_cte", []byte(out))
}

func TestRenderNodeMapCarriesAnchors(t *testing.T) {
	stmts := mustParse(t, ordersSQL)
	out := RenderNodeMap(stmts)
	Walk(stmts[0].Root, func(n, _ *Node) bool {
		assert.Contains(t, out, "["+n.Anchor+"]")
		return true
	})
	assert.Contains(t, out, `predicate "o.amount > 10" [`)
}

func TestRenderNodeMapTruncatesLongLabels(t *testing.T) {
	long := "SELECT a + b + c + d + e + f + g + h + i + j + k + l + m + n + o + p + q + r + s + t + u AS total FROM x"
	out := RenderNodeMap(mustParse(t, long))
	assert.Contains(t, out, `..." [`)
}
