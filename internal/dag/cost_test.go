package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/executor"
)

func TestAttributeCost(t *testing.T) {
	g := build(t, ordersSQL)
	plan := &executor.Plan{
		Operator:  "Hash Join",
		TotalCost: 110,
		Children: []*executor.Plan{
			{Operator: "CTE Scan", CTEName: "big", Alias: "b", TotalCost: 40},
			{Operator: "Hash", TotalCost: 20, Children: []*executor.Plan{
				{Operator: "Seq Scan", Relation: "customers", Alias: "c", TotalCost: 20},
			}},
			{Operator: "Seq Scan", Relation: "orders", SubplanName: "CTE recent", TotalCost: 30},
			{Operator: "Function Scan", TotalCost: 10},
		},
	}

	cm := AttributeCost(g, plan)

	assert.InDelta(t, 100, cm.MatchedCost, 1e-9)
	assert.InDelta(t, 10, cm.UnmatchedCost, 1e-9)
	assert.Equal(t, []string{"Function Scan"}, cm.Unmatched)

	require.Len(t, cm.Entries, 4)
	assert.Equal(t, "recent", cm.Entries[0].NodeID)
	assert.Equal(t, MainID, cm.Entries[3].NodeID)
	assert.InDelta(t, 70, cm.Percent(MainID), 1e-9)
	assert.InDelta(t, 30, cm.Percent("recent"), 1e-9)
	assert.Zero(t, cm.Percent("big"))
	assert.Equal(t, 4, cm.Entries[3].Operators)

	var total float64
	for _, e := range cm.Entries {
		total += e.Percent
	}
	assert.InDelta(t, 100, total, 1e-9)

	hot := cm.Hotspots()
	require.Len(t, hot, 2)
	assert.Equal(t, MainID, hot[0].NodeID)
	assert.Equal(t, "recent", hot[1].NodeID)
}

func TestAttributeCostUsesAliasToBreakTies(t *testing.T) {
	g := build(t, "WITH a AS (SELECT * FROM orders x) SELECT * FROM a JOIN orders o ON o.id = a.id")
	plan := &executor.Plan{
		Operator:  "Append",
		TotalCost: 9,
		Children: []*executor.Plan{
			{Operator: "Seq Scan", Relation: "orders", Alias: "o", TotalCost: 4},
			{Operator: "Seq Scan", Relation: "public.orders", Alias: "x", TotalCost: 3},
			{Operator: "Seq Scan", Relation: "orders", Alias: "z", TotalCost: 2},
		},
	}
	cm := AttributeCost(g, plan)

	assert.InDelta(t, 4, entry(cm, MainID).Cost, 1e-9)
	assert.InDelta(t, 3, entry(cm, "a").Cost, 1e-9)
	assert.Equal(t, []string{"Seq Scan on orders"}, cm.Unmatched)
	assert.InDelta(t, 2, cm.UnmatchedCost, 1e-9)
}

func TestAttributeCostWithoutPlan(t *testing.T) {
	g := build(t, ordersSQL)
	cm := AttributeCost(g, nil)
	require.Len(t, cm.Entries, 4)
	assert.Zero(t, cm.MatchedCost)
	assert.Empty(t, cm.Hotspots())
}

func entry(cm CostMap, id string) CostEntry {
	for _, e := range cm.Entries {
		if e.NodeID == id {
			return e
		}
	}
	return CostEntry{}
}
