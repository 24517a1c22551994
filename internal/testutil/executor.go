package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
)

// Script is the canned response to one execution.
type Script struct {
	Rows  *executor.Rows
	Delay time.Duration
	Err   error
	// IgnoreTimeout runs the full Delay and returns Rows even past the
	// cutoff, like a driver that does not honour cancellation.
	IgnoreTimeout bool
}

// ScriptedExecutor answers queries from scripts keyed by their
// whitespace-normalised SQL. Each call consumes the next script for its
// query; the last one repeats.
//
// With a FakeClock, Delay advances the clock. Without one, Delay sleeps,
// honouring ctx.
//
// ScriptedExecutor implements executor.Executor, executor.Sessioner and
// executor.Recoverer.
type ScriptedExecutor struct {
	Clock *FakeClock

	// Plan and Tables answer Explain and SchemaInfo.
	Plan   *executor.Plan
	Tables []executor.Table

	mu      sync.Mutex
	scripts map[string][]Script
	calls   map[string]int
	open    int
	maxOpen int
	// openAtStart records how many sessions were open at each execution.
	openAtStart []int
	resets      int
	closed      int
}

// NewScriptedExecutor creates an executor driven by clock, which may be
// nil.
func NewScriptedExecutor(clock *FakeClock) *ScriptedExecutor {
	return &ScriptedExecutor{
		Clock:   clock,
		scripts: make(map[string][]Script),
		calls:   make(map[string]int),
	}
}

// On registers the responses for sql.
func (e *ScriptedExecutor) On(sql string, scripts ...Script) *ScriptedExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[ir.NormalizeWhitespace(sql)] = scripts
	return e
}

// Execute implements executor.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, sql string, timeout time.Duration) (*executor.Rows, error) {
	s, err := e.next(sql)
	if err != nil {
		return nil, err
	}
	if timeout > 0 && s.Delay > timeout && !s.IgnoreTimeout {
		_ = e.wait(ctx, timeout)
		return nil, &executor.ExecutionTimeout{SQL: sql, Timeout: timeout}
	}
	if err := e.wait(ctx, s.Delay); err != nil {
		return nil, &executor.ExecutionError{SQL: sql, Err: err}
	}
	if s.Err != nil {
		return nil, &executor.ExecutionError{SQL: sql, Err: s.Err}
	}
	return s.Rows, nil
}

func (e *ScriptedExecutor) next(sql string) (Script, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := ir.NormalizeWhitespace(sql)
	scripts, ok := e.scripts[key]
	if !ok || len(scripts) == 0 {
		return Script{}, &executor.ExecutionError{SQL: sql, Err: errors.New("no script for query")}
	}
	n := e.calls[key]
	e.calls[key] = n + 1
	e.openAtStart = append(e.openAtStart, e.open)
	if n >= len(scripts) {
		n = len(scripts) - 1
	}
	return scripts[n], nil
}

func (e *ScriptedExecutor) wait(ctx context.Context, d time.Duration) error {
	if e.Clock != nil {
		e.Clock.Advance(d)
		return ctx.Err()
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Explain implements executor.Executor.
func (e *ScriptedExecutor) Explain(_ context.Context, sql string) (*executor.Plan, error) {
	if e.Plan == nil {
		return nil, &executor.ExecutionError{SQL: sql, Err: errors.New("no plan scripted")}
	}
	return e.Plan, nil
}

// SchemaInfo implements executor.Executor.
func (e *ScriptedExecutor) SchemaInfo(context.Context) ([]executor.Table, error) {
	return e.Tables, nil
}

// Session implements executor.Sessioner.
func (e *ScriptedExecutor) Session(context.Context) (executor.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open++
	if e.open > e.maxOpen {
		e.maxOpen = e.open
	}
	return &scriptedSession{e: e}, nil
}

// Reset implements executor.Recoverer.
func (e *ScriptedExecutor) Reset(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	return nil
}

// Calls returns how many times sql was executed.
func (e *ScriptedExecutor) Calls(sql string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[ir.NormalizeWhitespace(sql)]
}

// Resets returns how many times Reset was called.
func (e *ScriptedExecutor) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// MaxOpenSessions returns the most sessions ever open at once.
func (e *ScriptedExecutor) MaxOpenSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxOpen
}

// OpenAtFirstExecution returns how many sessions were open when the
// first statement started.
func (e *ScriptedExecutor) OpenAtFirstExecution() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.openAtStart) == 0 {
		return 0
	}
	return e.openAtStart[0]
}

// ClosedSessions returns how many sessions have been closed.
func (e *ScriptedExecutor) ClosedSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type scriptedSession struct {
	e    *ScriptedExecutor
	once sync.Once
}

func (s *scriptedSession) Execute(ctx context.Context, sql string, timeout time.Duration) (*executor.Rows, error) {
	return s.e.Execute(ctx, sql, timeout)
}

func (s *scriptedSession) Close() error {
	s.once.Do(func() {
		s.e.mu.Lock()
		defer s.e.mu.Unlock()
		s.e.open--
		s.e.closed++
	})
	return nil
}

// IntRows builds a single-column result holding 1..n.
func IntRows(column string, n int) *executor.Rows {
	rows := &executor.Rows{Columns: []string{column}}
	for i := 1; i <= n; i++ {
		rows.Values = append(rows.Values, []any{int64(i)})
	}
	return rows
}

// Reversed returns rows in reverse order.
func Reversed(rows *executor.Rows) *executor.Rows {
	out := &executor.Rows{Columns: rows.Columns, Values: make([][]any, len(rows.Values))}
	for i, r := range rows.Values {
		out.Values[len(rows.Values)-1-i] = r
	}
	return out
}

// BadConnection is a script error that marks the connection broken.
func BadConnection(msg string) error {
	return fmt.Errorf("%s: %w", msg, executor.ErrBadConnection)
}
