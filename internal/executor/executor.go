package executor

import (
	"context"
	"time"
)

// Rows is a fully materialised result set.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Column describes one column of a table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is schema information for one relation.
type Table struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Executor runs SQL on behalf of the validator and the DAG cost stage.
//
// Execute must honour timeout: when it elapses the call returns an
// *ExecutionTimeout. A timeout of zero means no cutoff.
type Executor interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (*Rows, error)
	Explain(ctx context.Context, sql string) (*Plan, error)
	SchemaInfo(ctx context.Context) ([]Table, error)
}

// Session is a connection owned by exactly one run until Close.
type Session interface {
	Execute(ctx context.Context, sql string, timeout time.Duration) (*Rows, error)
	Close() error
}

// Sessioner is implemented by executors that can hand out exclusive
// sessions. Races use one session per participant.
type Sessioner interface {
	Session(ctx context.Context) (Session, error)
}

// Recoverer is implemented by executors that can reconnect after a broken
// connection.
type Recoverer interface {
	Reset(ctx context.Context) error
}

// Run executes sql on a session when ex can provide one and on ex itself
// otherwise. The session is closed before Run returns.
func Run(ctx context.Context, ex Executor, sql string, timeout time.Duration) (*Rows, error) {
	s, ok := ex.(Sessioner)
	if !ok {
		return ex.Execute(ctx, sql, timeout)
	}
	sess, err := s.Session(ctx)
	if err != nil {
		return nil, &ExecutionError{SQL: sql, Err: err}
	}
	defer sess.Close()
	return sess.Execute(ctx, sql, timeout)
}
