package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
)

func rowsOf(vals ...[]any) *executor.Rows {
	return &executor.Rows{Columns: []string{"a", "b"}, Values: vals}
}

func TestRowSignatureIgnoresOrder(t *testing.T) {
	a := rowsOf([]any{int64(1), "x"}, []any{int64(2), "y"})
	b := rowsOf([]any{int64(2), "y"}, []any{int64(1), "x"})

	assert.Nil(t, Compare(RowSignature(a, false), RowSignature(b, false)))
	assert.NotNil(t, Compare(RowSignature(a, true), RowSignature(b, true)))
}

func TestRowSignatureCountsDuplicates(t *testing.T) {
	a := rowsOf([]any{int64(1), "x"}, []any{int64(1), "x"}, []any{int64(2), "y"})
	b := rowsOf([]any{int64(1), "x"}, []any{int64(2), "y"}, []any{int64(2), "y"})

	m := Compare(RowSignature(a, false), RowSignature(b, false))
	if assert.NotNil(t, m) {
		assert.Equal(t, "row contents differ", m.Reason)
	}
}

func TestRowSignatureNormalisesValues(t *testing.T) {
	a := rowsOf([]any{int64(2), []byte("x")}, []any{nil, "y"})
	b := rowsOf([]any{2.0, "x"}, []any{nil, "y"})
	assert.Nil(t, Compare(RowSignature(a, false), RowSignature(b, false)))

	c := rowsOf([]any{2.5, "x"}, []any{nil, "y"})
	assert.NotNil(t, Compare(RowSignature(a, false), RowSignature(c, false)))

	// A string "2" is not the number 2.
	d := rowsOf([]any{"2", "x"}, []any{nil, "y"})
	assert.NotNil(t, Compare(RowSignature(a, false), RowSignature(d, false)))
}

func TestCompareColumns(t *testing.T) {
	a := rowsOf([]any{int64(1), "x"})
	b := &executor.Rows{Columns: []string{"a"}, Values: [][]any{{int64(1)}}}
	m := Compare(RowSignature(a, false), RowSignature(b, false))
	if assert.NotNil(t, m) {
		assert.Contains(t, m.Reason, "column count")
	}
}

func TestOrdersOutput(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT a FROM t ORDER BY a", true},
		{"SELECT a FROM t", false},
		{"SELECT a FROM (SELECT a FROM t ORDER BY a) s", false},
		{"SET threads = 4; SELECT a FROM t ORDER BY a DESC LIMIT 3", true},
	}
	for _, tt := range tests {
		stmts, err := ir.Parse(tt.sql, ir.DialectDuckDB)
		if assert.NoError(t, err, tt.sql) {
			assert.Equal(t, tt.want, OrdersOutput(stmts), tt.sql)
		}
	}
}
