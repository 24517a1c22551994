package candidate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(es []Example) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func catalogFixture(t *testing.T) []Example {
	t.Helper()
	c, err := LoadCatalog("testdata/catalog.yaml")
	require.NoError(t, err)
	return c.Examples
}

func TestAllocateInterleavesFamilies(t *testing.T) {
	got := Allocate(catalogFixture(t), 5, 1)

	// Best of each family first, families ordered by their best example.
	assert.Equal(t, []string{"pushdown_filter_cte"}, ids(got[0]))
	assert.Equal(t, []string{"exists_to_semijoin"}, ids(got[1]))
	assert.Equal(t, []string{"union_or_split"}, ids(got[2]))
	assert.Equal(t, []string{"pushdown_join_filter"}, ids(got[3]))
	assert.Equal(t, []string{"scalar_subquery_to_join"}, ids(got[4]))
}

func TestAllocateNoDuplicatesWhileDistinctRemain(t *testing.T) {
	examples := make([]Example, 12)
	for i := range examples {
		examples[i] = Example{
			ID:      fmt.Sprintf("e%02d", i),
			Family:  fmt.Sprintf("f%d", i%3),
			Speedup: float64(20 - i),
		}
	}
	got := Allocate(examples, 4, 3)

	seen := make(map[string]int)
	for w, es := range got {
		assert.Len(t, es, 3, "worker %d", w)
		for _, e := range es {
			seen[e.ID]++
		}
	}
	assert.Len(t, seen, 12)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestAllocateReusesOnlyAfterExhaustion(t *testing.T) {
	got := Allocate(catalogFixture(t), 4, 3)

	seen := make(map[string]int)
	for w, es := range got {
		require.Len(t, es, 3, "worker %d", w)
		own := make(map[string]bool)
		for _, e := range es {
			assert.False(t, own[e.ID], "worker %d got %s twice", w, e.ID)
			own[e.ID] = true
			seen[e.ID]++
		}
	}
	// 12 slots over 5 distinct examples: every example is dealt.
	assert.Len(t, seen, 5)
}

func TestAllocateCapsAtCatalogSize(t *testing.T) {
	got := Allocate(catalogFixture(t)[:2], 2, 5)
	for _, es := range got {
		assert.Len(t, es, 2)
	}
}

func TestAllocateEmpty(t *testing.T) {
	got := Allocate(nil, 3, 2)
	require.Len(t, got, 3)
	for _, es := range got {
		assert.Empty(t, es)
	}
	assert.Empty(t, Allocate(catalogFixture(t), 0, 2))
}
