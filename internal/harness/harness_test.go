package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtures = `
fixtures:
  - CREATE TABLE items (id INTEGER PRIMARY KEY, qty INTEGER NOT NULL)
  - INSERT INTO items VALUES (1, 5), (2, 0), (3, 7)
`

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

// TestScenarioFiles runs every scenario under testdata/scenarios and
// compares it with its golden file.
func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_CorrectRewrite(t *testing.T) {
	s := mustParse(t, `
name: positive_stock
original: SELECT id FROM items WHERE qty > 0
`+fixtures+`
candidates:
  - id: not_zero
    sql: SELECT id FROM items WHERE qty <> 0
assertions:
  - type: original_rows
    count: 2
  - type: verdict
    candidate: not_zero
    verdict: correct
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	o, ok := result.Outcome("not_zero")
	require.True(t, ok)
	assert.True(t, o.RowsMatch)
	assert.Equal(t, 2, o.CandidateRows)
	assert.Equal(t, "SELECT id FROM items WHERE qty <> 0", o.SQL)
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectation
original: SELECT id FROM items WHERE qty > 0
`+fixtures+`
candidates:
  - id: everything
    sql: SELECT id FROM items
assertions:
  - type: verdict
    candidate: everything
    verdict: correct
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "candidate everything is correct")
	assert.Contains(t, result.Errors[0], "wrong_results")
}

func TestRun_NothingGenerated(t *testing.T) {
	s := mustParse(t, `
name: all_unchanged
original: SELECT id FROM items WHERE qty > 0
`+fixtures+`
candidates:
  - id: same
    sql: select id from items where qty > 0
assertions:
  - type: original_rows
    count: 2
  - type: generation_failed
    candidate: same
    reason: unchanged
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadFixture(t *testing.T) {
	s := mustParse(t, `
name: bad_fixture
original: SELECT 1
fixtures:
  - CREATE TABLE broken (
candidates:
  - id: a
    sql: SELECT 2
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixtures[0]")
}

func TestRun_OriginalFails(t *testing.T) {
	s := mustParse(t, `
name: original_fails
original: SELECT id FROM nowhere
candidates:
  - id: a
    sql: SELECT 1
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
}

func TestRun_IsolatedDatabases(t *testing.T) {
	doc := `
name: isolated
original: SELECT id FROM items
` + fixtures + `
candidates:
  - id: ordered
    sql: SELECT id FROM items ORDER BY id
`
	for i := 0; i < 2; i++ {
		result, err := Run(context.Background(), mustParse(t, doc))
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, 3, result.OriginalRows)
	}
}
