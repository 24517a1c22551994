package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qfleet/internal/executor"
)

func TestScriptedExecutor_AdvancesClock(t *testing.T) {
	clock := NewFakeClock()
	ex := NewScriptedExecutor(clock).On("SELECT 1", Script{Rows: IntRows("x", 1), Delay: 40 * time.Millisecond})

	rows, err := ex.Execute(context.Background(), "select  1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	assert.Equal(t, Epoch.Add(40*time.Millisecond), clock.Now())
	assert.Equal(t, 1, ex.Calls("SELECT 1"))
}

func TestScriptedExecutor_ScriptsAdvanceThenRepeat(t *testing.T) {
	ex := NewScriptedExecutor(NewFakeClock()).On("q",
		Script{Err: errors.New("first")},
		Script{Rows: IntRows("x", 2)},
	)
	_, err := ex.Execute(context.Background(), "q", 0)
	assert.True(t, executor.IsExecutionError(err))

	for i := 0; i < 2; i++ {
		rows, err := ex.Execute(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Equal(t, 2, rows.Len())
	}
}

func TestScriptedExecutor_Timeout(t *testing.T) {
	clock := NewFakeClock()
	ex := NewScriptedExecutor(clock).On("slow", Script{Delay: time.Hour})

	_, err := ex.Execute(context.Background(), "slow", time.Minute)
	assert.True(t, executor.IsTimeout(err))
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())
}

func TestScriptedExecutor_IgnoreTimeout(t *testing.T) {
	clock := NewFakeClock()
	ex := NewScriptedExecutor(clock).On("slow", Script{Rows: IntRows("x", 1), Delay: time.Hour, IgnoreTimeout: true})

	rows, err := ex.Execute(context.Background(), "slow", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, rows.Len())
	assert.Equal(t, Epoch.Add(time.Hour), clock.Now())
}

func TestScriptedExecutor_UnknownQuery(t *testing.T) {
	ex := NewScriptedExecutor(nil)
	_, err := ex.Execute(context.Background(), "SELECT 2", 0)
	assert.True(t, executor.IsExecutionError(err))
}

func TestScriptedExecutor_Sessions(t *testing.T) {
	ex := NewScriptedExecutor(nil).On("q", Script{Rows: IntRows("x", 1)})
	ctx := context.Background()

	a, err := ex.Session(ctx)
	require.NoError(t, err)
	b, err := ex.Session(ctx)
	require.NoError(t, err)

	_, err = a.Execute(ctx, "q", 0)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, 2, ex.MaxOpenSessions())
	assert.Equal(t, 2, ex.OpenAtFirstExecution())
	assert.Equal(t, 2, ex.ClosedSessions())
}

func TestScriptedExecutor_SleepHonoursContext(t *testing.T) {
	ex := NewScriptedExecutor(nil).On("q", Script{Delay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Execute(ctx, "q", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadConnection(t *testing.T) {
	err := &executor.ExecutionError{SQL: "q", Err: BadConnection("reset by peer")}
	assert.True(t, executor.IsBadConnection(err))
	assert.Equal(t, Reversed(IntRows("x", 3)).Values[0][0], int64(3))
}
