package dag

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/ir"
)

const ordersSQL = `WITH recent AS (SELECT id, customer_id, amount FROM orders WHERE ts > 10),
big AS (SELECT customer_id, SUM(amount) AS total FROM recent GROUP BY customer_id)
SELECT c.name, b.total FROM big b JOIN customers c ON c.id = b.customer_id
WHERE EXISTS (SELECT 1 FROM refunds f WHERE f.customer_id = c.id)`

func build(t *testing.T, sql string) *Graph {
	t.Helper()
	stmts, err := ir.Parse(sql, ir.DialectDuckDB)
	require.NoError(t, err)
	g, err := Build(stmts[len(stmts)-1])
	require.NoError(t, err)
	return g
}

func TestBuildCTEChain(t *testing.T) {
	g := build(t, ordersSQL)

	require.Len(t, g.Nodes, 4)
	assert.Equal(t, []string{"recent", "big", "main_query.sq1", "main_query"}, g.TopologicalOrder())

	recent := g.Node("recent")
	require.NotNil(t, recent)
	assert.Equal(t, KindCTE, recent.Kind)
	assert.Equal(t, []string{"orders"}, recent.Tables)
	assert.Equal(t, "SELECT id, customer_id, amount FROM orders WHERE ts > 10", recent.SQL)
	assert.NotEmpty(t, recent.Anchor)

	assert.Equal(t, []string{"recent"}, g.Dependencies("big"))
	assert.Equal(t, []string{"big", "main_query.sq1"}, g.Dependencies(MainID))
	assert.Equal(t, []string{"customers"}, g.Node(MainID).Tables)
	assert.False(t, g.Node(MainID).Correlated)
}

func TestBuildGolden(t *testing.T) {
	g := build(t, ordersSQL)
	gold := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	gold.Assert(t, "dag_orders", []byte(g.String()))
}

func TestBuildIsDeterministic(t *testing.T) {
	first := build(t, ordersSQL)
	for i := 0; i < 5; i++ {
		again := build(t, ordersSQL)
		assert.Equal(t, first.String(), again.String())
		assert.Equal(t, first.Edges, again.Edges)
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		id         string
		correlated bool
		outer      []string
		tables     []string
	}{
		{
			name:       "scalar subquery on outer alias",
			sql:        "SELECT o.id FROM orders o WHERE o.amount > (SELECT AVG(amount) FROM orders i WHERE i.customer_id = o.customer_id)",
			id:         "main_query.sq1",
			correlated: true,
			outer:      []string{"o"},
			tables:     []string{"orders"},
		},
		{
			name:   "IN subquery without outer reference",
			sql:    "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers WHERE tier = 'gold')",
			id:     "main_query.sq1",
			tables: []string{"customers"},
		},
		{
			name:   "derived table",
			sql:    "SELECT d.total FROM (SELECT SUM(x) AS total FROM t) d",
			id:     "main_query.d",
			tables: []string{"t"},
		},
		{
			name:       "nested subquery reaching the outermost block",
			sql:        "SELECT * FROM a WHERE EXISTS (SELECT 1 FROM b WHERE b.id IN (SELECT c.id FROM c WHERE c.k = a.k))",
			id:         "main_query.sq1.sq1",
			correlated: true,
			outer:      []string{"a"},
			tables:     []string{"c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.sql)
			n := g.Node(tt.id)
			require.NotNil(t, n, g.String())
			assert.Equal(t, tt.correlated, n.Correlated)
			assert.Equal(t, tt.outer, n.OuterRefs)
			assert.Equal(t, tt.tables, n.Tables)
			assert.Equal(t, MainID, g.TopologicalOrder()[len(g.Nodes)-1])
		})
	}
}

func TestNestedCorrelationMarksIntermediateBlocks(t *testing.T) {
	g := build(t, "SELECT * FROM a WHERE EXISTS (SELECT 1 FROM b WHERE b.id IN (SELECT c.id FROM c WHERE c.k = a.k))")
	assert.True(t, g.Node("main_query.sq1").Correlated)
	assert.Empty(t, g.Node("main_query.sq1").OuterRefs)
}

func TestTopologicalOrderFollowsSourcePosition(t *testing.T) {
	g := build(t, "WITH b AS (SELECT 1 AS y), a AS (SELECT 2 AS x) SELECT * FROM a, b")
	assert.Equal(t, []string{"b", "a", "main_query"}, g.TopologicalOrder())

	g = build(t, "WITH a AS (SELECT * FROM t), b AS (SELECT * FROM a) SELECT * FROM b")
	assert.Equal(t, []string{"a", "b", "main_query"}, g.TopologicalOrder())
	assert.Equal(t, []string{"t"}, g.Node("a").Tables)
	assert.Empty(t, g.Node("b").Tables)
}

func TestTopologicalOrderIsValid(t *testing.T) {
	g := build(t, ordersSQL)
	pos := make(map[string]int)
	for i, id := range g.TopologicalOrder() {
		pos[id] = i
	}
	require.Len(t, pos, len(g.Nodes))
	for _, e := range g.Edges {
		assert.Less(t, pos[e.From], pos[e.To], "%s -> %s", e.From, e.To)
	}
}

func TestCTEShadowsTableOnlyAfterDefinition(t *testing.T) {
	g := build(t, "WITH orders AS (SELECT * FROM raw.orders) SELECT * FROM orders")
	assert.Equal(t, []string{"raw.orders"}, g.Node("orders").Tables)
	assert.Empty(t, g.Node(MainID).Tables)
	assert.Equal(t, []string{"orders"}, g.Dependencies(MainID))
}

func TestRecursiveCTEHasNoSelfEdge(t *testing.T) {
	g := build(t, "WITH RECURSIVE r AS (SELECT 1 AS n UNION ALL SELECT n + 1 FROM r WHERE n < 10) SELECT n FROM r")
	assert.Empty(t, g.Dependencies("r"))
	assert.Empty(t, g.Node("r").Tables)
	assert.Equal(t, []string{"r", "main_query"}, g.TopologicalOrder())
}

func TestTableFunctionIsNotATable(t *testing.T) {
	g := build(t, "SELECT * FROM range(10) r")
	assert.Empty(t, g.Node(MainID).Tables)
}

func TestBuildErrors(t *testing.T) {
	stmts, err := ir.Parse("SELECT * FROM orders o JOIN customers o ON o.id = o.cid", ir.DialectDuckDB)
	require.NoError(t, err)
	_, err = Build(stmts[0])
	var ae *AmbiguousReferenceError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MainID, ae.Block)
	assert.Equal(t, "o", ae.Name)

	stmts, err = ir.Parse("WITH a AS (SELECT 1), A AS (SELECT 2) SELECT * FROM a", ir.DialectDuckDB)
	require.NoError(t, err)
	_, err = Build(stmts[0])
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "A", ae.Name)

	stmts, err = ir.Parse("SET threads = 4", ir.DialectDuckDB)
	require.NoError(t, err)
	_, err = Build(stmts[0])
	assert.ErrorIs(t, err, ErrNotQuery)
}
