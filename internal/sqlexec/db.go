package sqlexec

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/querysql"
)

// DB is an executor backed by a database/sql pool.
//
// Execute uses the shared pool. Session hands out a dedicated connection,
// which races use so no two participants share one. Reset reopens the
// pool after a broken connection.
type DB struct {
	driver  string
	dsn     string
	dialect ir.Dialect
	pragmas []string

	mu sync.RWMutex
	db *sql.DB
}

// Option configures a DB.
type Option func(*DB)

// WithDialect sets the dialect used for EXPLAIN and catalog queries.
// The default is sqlite.
func WithDialect(d ir.Dialect) Option {
	return func(db *DB) { db.dialect = d }
}

// WithPragmas runs statements on every new pool, for example
// "PRAGMA busy_timeout = 5000".
func WithPragmas(stmts ...string) Option {
	return func(db *DB) { db.pragmas = append(db.pragmas, stmts...) }
}

// Open connects with driver and dsn and verifies the connection.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*DB, error) {
	d := &DB{driver: driverName, dsn: dsn, dialect: ir.DialectSQLite}
	for _, opt := range opts {
		opt(d)
	}
	pool, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	d.db = pool
	return d, nil
}

func (d *DB) connect(ctx context.Context) (*sql.DB, error) {
	pool, err := sql.Open(d.driver, d.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range d.pragmas {
		if _, err := pool.ExecContext(ctx, p); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	return pool, nil
}

func (d *DB) pool() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Dialect returns the dialect the DB was opened with.
func (d *DB) Dialect() ir.Dialect { return d.dialect }

// Close closes the pool.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// Reset implements executor.Recoverer by replacing the pool.
func (d *DB) Reset(ctx context.Context) error {
	pool, err := d.connect(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	old := d.db
	d.db = pool
	d.mu.Unlock()
	if old != nil {
		old.Close()
	}
	slog.Info("executor connection reset", "driver", d.driver)
	return nil
}

// Exec runs a statement that returns no rows, such as fixture DDL.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := d.pool().ExecContext(ctx, query, args...); err != nil {
		return &executor.ExecutionError{SQL: query, Err: classify(err)}
	}
	return nil
}

// Query runs a parameterised read on the shared pool.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*executor.Rows, error) {
	rows, err := readRows(ctx, d.pool(), query, args...)
	if err != nil {
		return nil, &executor.ExecutionError{SQL: query, Err: classify(err)}
	}
	return rows, nil
}

// Execute implements executor.Executor.
func (d *DB) Execute(ctx context.Context, query string, timeout time.Duration) (*executor.Rows, error) {
	return execute(ctx, d.pool(), query, timeout)
}

// Session implements executor.Sessioner.
func (d *DB) Session(ctx context.Context) (executor.Session, error) {
	conn, err := d.pool().Conn(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &session{conn: conn}, nil
}

type session struct {
	conn *sql.Conn
}

func (s *session) Execute(ctx context.Context, query string, timeout time.Duration) (*executor.Rows, error) {
	return execute(ctx, s.conn, query, timeout)
}

func (s *session) Close() error { return s.conn.Close() }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execute(ctx context.Context, q queryer, query string, timeout time.Duration) (*executor.Rows, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rows, err := readRows(runCtx, q, query)
	if err == nil {
		return rows, nil
	}
	if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &executor.ExecutionTimeout{SQL: query, Timeout: timeout}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, &executor.ExecutionError{SQL: query, Err: classify(err)}
}

func readRows(ctx context.Context, q queryer, query string, args ...any) (*executor.Rows, error) {
	rs, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	out := &executor.Rows{Columns: cols, Values: [][]any{}}
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// classify marks connection-level failures with executor.ErrBadConnection.
func classify(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) ||
		strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %w", executor.ErrBadConnection, err)
	}
	return err
}

// Explain implements executor.Executor.
func (d *DB) Explain(ctx context.Context, query string) (*executor.Plan, error) {
	stmt, format, err := querysql.Explain(d.dialect, query)
	if err != nil {
		return nil, err
	}
	rows, err := readRows(ctx, d.pool(), stmt)
	if err != nil {
		return nil, &executor.ExecutionError{SQL: stmt, Err: classify(err)}
	}
	switch format {
	case querysql.FormatSQLiteQueryPlan:
		return DecodeSQLitePlan(rows)
	case querysql.FormatPostgresJSON:
		if rows.Len() == 0 || len(rows.Values[0]) == 0 {
			return nil, fmt.Errorf("explain returned no rows")
		}
		return executor.DecodePostgresJSON([]byte(fmt.Sprint(rows.Values[0][0])))
	}
	return nil, fmt.Errorf("explain: unknown format %d", format)
}

// SchemaInfo implements executor.Executor.
func (d *DB) SchemaInfo(ctx context.Context) ([]executor.Table, error) {
	tq, err := querysql.TablesQuery(d.dialect)
	if err != nil {
		return nil, err
	}
	names, err := readRows(ctx, d.pool(), tq)
	if err != nil {
		return nil, &executor.ExecutionError{SQL: tq, Err: classify(err)}
	}
	tables := make([]executor.Table, 0, names.Len())
	for _, r := range names.Values {
		name := fmt.Sprint(r[0])
		t := executor.Table{Name: name}

		cq, args, err := querysql.ColumnsQuery(d.dialect, name)
		if err != nil {
			return nil, err
		}
		cols, err := readRows(ctx, d.pool(), cq, args...)
		if err != nil {
			return nil, &executor.ExecutionError{SQL: cq, Err: classify(err)}
		}
		for _, c := range cols.Values {
			t.Columns = append(t.Columns, executor.Column{Name: fmt.Sprint(c[0]), Type: fmt.Sprint(c[1])})
		}

		count, err := readRows(ctx, d.pool(), querysql.CountQuery(d.dialect, name))
		if err == nil && count.Len() == 1 {
			if n, ok := count.Values[0][0].(int64); ok {
				t.RowCount = n
			}
		}
		tables = append(tables, t)
	}
	return tables, nil
}
