package executor

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadConnection marks a failure that left the connection unusable.
// Wrap it in ExecutionError.Err so the validator knows to reset.
var ErrBadConnection = errors.New("bad connection")

// ExecutionError reports that the database rejected or failed a statement.
type ExecutionError struct {
	SQL string
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", abbreviate(e.SQL), e.Err)
}

// Unwrap returns the underlying driver error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// ExecutionTimeout reports that a statement exceeded its cutoff.
type ExecutionTimeout struct {
	SQL     string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execute %s: timed out after %s", abbreviate(e.SQL), e.Timeout)
}

// IsTimeout reports whether err is an ExecutionTimeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *ExecutionTimeout
	return errors.As(err, &te)
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsBadConnection reports whether err says the connection must be reset.
func IsBadConnection(err error) bool {
	return errors.Is(err, ErrBadConnection)
}

func abbreviate(sql string) string {
	const limit = 60
	r := []rune(sql)
	if len(r) <= limit {
		return fmt.Sprintf("%q", sql)
	}
	return fmt.Sprintf("%q", string(r[:limit])+"...")
}
