package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/sqlexec"
)

func sampleResult() *Result {
	r := NewResult()
	r.OriginalRows = 3
	r.Outcomes = []Outcome{
		{Candidate: "a", Verdict: VerdictCorrect, RowsMatch: true, CandidateRows: 3},
		{Candidate: "b", Verdict: VerdictNotGenerated, Failure: "unchanged"},
		{Candidate: "c", Verdict: VerdictError, Error: "no such column: x"},
	}
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(context.Background(), r, []Assertion{
		{Type: AssertVerdict, Candidate: "a", Verdict: VerdictCorrect},
		{Type: AssertGenerationFailed, Candidate: "b", Reason: "unchanged"},
		{Type: AssertGenerationFailed, Candidate: "b"},
		{Type: AssertVerdict, Candidate: "c", Verdict: VerdictError},
		{Type: AssertOriginalRows, Count: 3},
	}, nil)
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(context.Background(), r, []Assertion{
		{Type: AssertVerdict, Candidate: "a", Verdict: VerdictWrongResults},
		{Type: AssertGenerationFailed, Candidate: "a"},
		{Type: AssertGenerationFailed, Candidate: "b", Reason: "panic"},
		{Type: AssertOriginalRows, Count: 4},
		{Type: AssertVerdict, Candidate: "zzz", Verdict: VerdictCorrect},
		{Type: AssertFinalState, Table: "t", Expect: map[string]any{"a": 1}},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 7)
	assert.Contains(t, errs[0], "Expected: candidate a is wrong_results")
	assert.Contains(t, errs[1], "verdict correct")
	assert.Contains(t, errs[2], "failure reason unchanged")
	assert.Contains(t, errs[3], "4 rows")
	assert.Contains(t, errs[4], "no outcome recorded")
	assert.Contains(t, errs[5], "requires database context")
	assert.Contains(t, errs[6], "unknown assertion type")
}

func TestAssertionError_ListsOutcomes(t *testing.T) {
	err := &AssertionError{Type: AssertVerdict, Expected: "x", Actual: "y", Outcomes: sampleResult().Outcomes}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: verdict")
	assert.Contains(t, msg, "[2] b not_generated (unchanged)")
	assert.Contains(t, msg, "[3] c error: no such column: x")
}

func TestFinalState(t *testing.T) {
	ctx := context.Background()
	db, err := sqlexec.Open(ctx, "sqlite", fmt.Sprintf("file:assert_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Exec(ctx, "CREATE TABLE stock (sku TEXT, qty INTEGER, price REAL)"))
	require.NoError(t, db.Exec(ctx, "INSERT INTO stock VALUES ('a', 3, 1.5), ('b', 0, 2.0), ('b', 1, 2.0)"))

	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"match", Assertion{Table: "stock", Where: map[string]any{"sku": "a"}, Expect: map[string]any{"qty": 3, "price": 1.5}}, ""},
		{"int as float", Assertion{Table: "stock", Where: map[string]any{"sku": "a"}, Expect: map[string]any{"qty": 3.0}}, ""},
		{"value differs", Assertion{Table: "stock", Where: map[string]any{"sku": "a"}, Expect: map[string]any{"qty": 4}}, `field "qty" = 4`},
		{"missing column", Assertion{Table: "stock", Where: map[string]any{"sku": "a"}, Expect: map[string]any{"colour": "red"}}, "not present"},
		{"no row", Assertion{Table: "stock", Where: map[string]any{"sku": "z"}, Expect: map[string]any{"qty": 1}}, "row not found"},
		{"ambiguous", Assertion{Table: "stock", Where: map[string]any{"sku": "b"}, Expect: map[string]any{"qty": 1}}, "ambiguous"},
		{"bad table", Assertion{Table: "stock; DROP TABLE stock", Expect: map[string]any{"qty": 1}}, "invalid table name"},
		{"bad column", Assertion{Table: "stock", Where: map[string]any{"sku OR 1=1": "a"}, Expect: map[string]any{"qty": 1}}, "invalid column name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, db, tt.a)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "a = ? AND b = ?", sql)
	assert.Equal(t, []any{"x", 2}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, int64(1)))
	assert.True(t, stateValuesEqual(1, int64(1)))
	assert.True(t, stateValuesEqual(2.0, int64(2)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.False(t, stateValuesEqual("1", int64(1)))
	assert.True(t, stateValuesEqual([]any{"a"}, []any{"a"}))
}
