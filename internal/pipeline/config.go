package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/qfleet/internal/ir"
)

// Config holds pipeline settings.
type Config struct {
	Dialect           ir.Dialect
	Workers           int
	ExamplesPerWorker int
	Runs              int
	Timeout           time.Duration
	Race              bool
	RequireApproval   bool
	BusCapacity       int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Dialect:           ir.DefaultDialect,
		Workers:           4,
		ExamplesPerWorker: 3,
		Runs:              3,
		Timeout:           300 * time.Second,
		BusCapacity:       1000,
	}
}

// Config validation errors.
var (
	ErrInvalidWorkers  = errors.New("workers must be at least 1")
	ErrInvalidRuns     = errors.New("runs must be at least 1")
	ErrInvalidTimeout  = errors.New("timeout must not be negative")
	ErrInvalidCapacity = errors.New("bus capacity must be at least 1")
)

// Validate checks the settings.
func (c Config) Validate() error {
	if _, err := ir.ParseDialect(string(c.Dialect)); err != nil {
		return fmt.Errorf("invalid dialect: %w", err)
	}
	switch {
	case c.Workers < 1:
		return ErrInvalidWorkers
	case c.Runs < 1:
		return ErrInvalidRuns
	case c.Timeout < 0:
		return ErrInvalidTimeout
	case c.BusCapacity < 1:
		return ErrInvalidCapacity
	case c.ExamplesPerWorker < 0:
		return fmt.Errorf("examples per worker must not be negative")
	}
	return nil
}
