package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/ir"
)

func TestDecodePlan(t *testing.T) {
	doc := `{
  "plan_id": "p-7",
  "dialect": "duckdb",
  "steps": [
    {"op": "insert_cte", "by_node_id": "s1", "cte_name": "big", "cte_query_sql": "SELECT id FROM orders"},
    {"op": "replace_where_predicate", "by_node_id": "s1", "by_anchor_hash": "0a1b2c3d4e5f6071", "expr_sql": "amount > 10", "description": "tighten filter"},
    {"op": "replace_expr_subtree", "by_node_id": "s1", "by_anchor_hash": "ffff000011112222", "expr_sql": "b"},
    {"op": "delete_expr_subtree", "by_node_id": "s2", "by_anchor_hash": "1234567890abcdef", "future_field": true}
  ]
}`
	plan, err := DecodePlan([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "p-7", plan.ID)
	assert.Equal(t, ir.DialectDuckDB, plan.Dialect)
	require.Len(t, plan.Steps, 4)
	assert.Equal(t, InsertCTE{StmtID: "s1", Name: "big", SQL: "SELECT id FROM orders"}, plan.Steps[0])
	assert.Equal(t, ReplaceWherePredicate{
		StmtID:      "s1",
		Anchor:      "0a1b2c3d4e5f6071",
		SQL:         "amount > 10",
		Description: "tighten filter",
	}, plan.Steps[1])
	assert.Equal(t, OpReplaceExprSubtree, plan.Steps[2].Kind())
	assert.Equal(t, DeleteExprSubtree{StmtID: "s2", Anchor: "1234567890abcdef"}, plan.Steps[3])
}

func TestDecodePlanRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{"plan_id": `, ErrInvalidPlan},
		{"missing plan id", `{"steps": [{"op": "delete_expr_subtree", "by_node_id": "s1", "by_anchor_hash": "ab"}]}`, ErrInvalidPlan},
		{"unknown op", `{"plan_id": "p", "steps": [{"op": "drop_table", "by_node_id": "s1"}]}`, ErrInvalidPlan},
		{"replace without sql", `{"plan_id": "p", "steps": [{"op": "replace_expr_subtree", "by_node_id": "s1", "by_anchor_hash": "ab"}]}`, ErrInvalidPlan},
		{"anchor not hex", `{"plan_id": "p", "steps": [{"op": "delete_expr_subtree", "by_node_id": "s1", "by_anchor_hash": "XYZ"}]}`, ErrInvalidPlan},
		{"cte without name", `{"plan_id": "p", "steps": [{"op": "insert_cte", "by_node_id": "s1", "cte_query_sql": "SELECT 1"}]}`, ErrInvalidPlan},
		{"unknown dialect", `{"plan_id": "p", "dialect": "oracle", "steps": [{"op": "delete_expr_subtree", "by_node_id": "s1", "by_anchor_hash": "ab"}]}`, ErrInvalidPlan},
		{"no steps", `{"plan_id": "p", "steps": []}`, ErrEmptyPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlan([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodePlanReportsSchemaField(t *testing.T) {
	_, err := DecodePlan([]byte(`{"plan_id": "p", "steps": [{"op": "delete_expr_subtree", "by_node_id": "", "by_anchor_hash": "ab"}]}`))
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Field, "by_node_id")
}

func TestEncodePlanDecodes(t *testing.T) {
	plan := Plan{
		ID:      "p-enc",
		Dialect: ir.DialectPostgres,
		Steps: []Op{
			InsertCTE{StmtID: "s1", Name: "x", SQL: "SELECT 1"},
			DeleteExprSubtree{StmtID: "s1", Anchor: "abcdef0123456789", Description: "drop filter"},
		},
	}
	data, err := EncodePlan(plan)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op": "insert_cte"`)

	got, err := DecodePlan(data)
	require.NoError(t, err)
	assert.Equal(t, plan, got)
}
