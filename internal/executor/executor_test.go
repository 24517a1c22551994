package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	timeout := fmt.Errorf("candidate 2: %w", &ExecutionTimeout{SQL: "SELECT 1", Timeout: time.Second})
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsExecutionError(timeout))

	broken := &ExecutionError{SQL: "SELECT 1", Err: fmt.Errorf("driver: %w", ErrBadConnection)}
	assert.True(t, IsExecutionError(broken))
	assert.True(t, IsBadConnection(broken))
	assert.False(t, IsTimeout(broken))

	plain := &ExecutionError{SQL: "SELECT 1", Err: errors.New("no such table: t")}
	assert.False(t, IsBadConnection(plain))
	assert.Contains(t, plain.Error(), "no such table")
}

func TestErrorAbbreviatesSQL(t *testing.T) {
	long := "SELECT a_really_long_column_name_that_keeps_going, another_long_column_name FROM t"
	err := &ExecutionTimeout{SQL: long, Timeout: 300 * time.Second}
	assert.Contains(t, err.Error(), "...")
	assert.Contains(t, err.Error(), "5m0s")
}

type sessionExec struct {
	opened, closed int
}

func (s *sessionExec) Execute(context.Context, string, time.Duration) (*Rows, error) {
	return nil, errors.New("shared connection used")
}
func (s *sessionExec) Explain(context.Context, string) (*Plan, error) { return nil, nil }
func (s *sessionExec) SchemaInfo(context.Context) ([]Table, error)    { return nil, nil }

func (s *sessionExec) Session(context.Context) (Session, error) {
	s.opened++
	return &session{parent: s}, nil
}

type session struct{ parent *sessionExec }

func (s *session) Execute(context.Context, string, time.Duration) (*Rows, error) {
	return &Rows{Columns: []string{"x"}, Values: [][]any{{int64(1)}}}, nil
}

func (s *session) Close() error {
	s.parent.closed++
	return nil
}

func TestRunUsesExclusiveSession(t *testing.T) {
	ex := &sessionExec{}
	rows, err := Run(context.Background(), ex, "SELECT 1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	assert.Equal(t, 1, ex.opened)
	assert.Equal(t, 1, ex.closed)
}

func TestDecodePostgresJSON(t *testing.T) {
	data, err := os.ReadFile("testdata/pg_explain.json")
	require.NoError(t, err)

	plan, err := DecodePostgresJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "Hash Join", plan.Operator)
	require.Len(t, plan.Children, 2)
	assert.Equal(t, "orders", plan.Children[0].Relation)
	assert.Equal(t, "o", plan.Children[0].Alias)
	assert.Equal(t, int64(5000), plan.Children[0].Rows)
	assert.InDelta(t, 30.0, plan.SelfCost(), 1e-9)
	assert.InDelta(t, 5.0, plan.Children[1].SelfCost(), 1e-9)

	var ops []string
	plan.Walk(func(n, _ *Plan) { ops = append(ops, n.Operator) })
	assert.Equal(t, []string{"Hash Join", "Seq Scan", "Hash", "Seq Scan"}, ops)
}

func TestDecodePostgresJSONObject(t *testing.T) {
	plan, err := DecodePostgresJSON([]byte(`{"Plan": {"Node Type": "Result", "Total Cost": 0.01}}`))
	require.NoError(t, err)
	assert.Equal(t, "Result", plan.Operator)

	_, err = DecodePostgresJSON([]byte(`[]`))
	assert.Error(t, err)
	_, err = DecodePostgresJSON([]byte(`{"Plan": `))
	assert.Error(t, err)
}
