package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
)

// DefaultTimeout is the per-execution cutoff when none is configured.
const DefaultTimeout = 300 * time.Second

// Variant is a query to measure.
type Variant struct {
	ID  string
	SQL string
}

// Result is the verdict on one candidate.
type Result struct {
	CandidateID string  `json:"candidate_id"`
	Status      Status  `json:"status"`
	Method      Method  `json:"method"`
	Speedup     float64 `json:"speedup"`
	RowsMatch   bool    `json:"rows_match"`

	// Raw samples, warmup included.
	OriginalTimes  []time.Duration `json:"original_times_ns"`
	CandidateTimes []time.Duration `json:"candidate_times_ns"`
	OriginalAvg    time.Duration   `json:"original_avg_ns"`
	CandidateAvg   time.Duration   `json:"candidate_avg_ns"`

	Original  Signature `json:"original_signature"`
	Candidate Signature `json:"candidate_signature"`

	Mismatch *ResultMismatch `json:"mismatch,omitempty"`
	Error    string          `json:"error,omitempty"`
	Timeout  bool            `json:"timeout,omitempty"`
	Cached   bool            `json:"-"`
}

// Clock supplies the timestamps timings are taken from.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Validator measures candidates against an original query.
//
// Thread-safety: a Validator holds no per-run state and may be shared.
// Each call runs its executions one after another except Race.
type Validator struct {
	runs    int
	timeout time.Duration
	clock   Clock
	cache   Cache
	cacheNS string
	dialect ir.Dialect
	logger  *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithRuns sets how many times each query runs for trimmed-mean timing.
// The first run is a discarded warmup when runs > 1. The default is 3.
func WithRuns(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.runs = n
		}
	}
}

// WithTimeout sets the per-execution cutoff.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.timeout = d }
}

// WithClock replaces the wall clock. Tests use a clock the executor
// advances.
func WithClock(c Clock) Option {
	return func(v *Validator) { v.clock = c }
}

// WithCache memoises results across calls.
func WithCache(c Cache) Option {
	return func(v *Validator) { v.cache = c }
}

// WithCacheNamespace scopes cached results to one database, so a shared
// cache never answers for a database it did not measure.
func WithCacheNamespace(ns string) Option {
	return func(v *Validator) { v.cacheNS = ns }
}

// WithDialect sets the dialect used to parse queries for cache keys and
// order detection.
func WithDialect(d ir.Dialect) Option {
	return func(v *Validator) { v.dialect = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// NewValidator creates a Validator.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		runs:    3,
		timeout: DefaultTimeout,
		clock:   systemClock{},
		dialect: ir.DefaultDialect,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate measures one candidate with trimmed-mean timing. Failures,
// the original's included, come back as an ERROR result.
func (v *Validator) Validate(ctx context.Context, ex executor.Executor, original string, candidate Variant) Result {
	results, err := v.ValidateAll(ctx, ex, original, []Variant{candidate})
	if err != nil {
		return Result{
			CandidateID: candidate.ID,
			Status:      StatusError,
			Method:      MethodTrimmedMean,
			Error:       err.Error(),
			Timeout:     executor.IsTimeout(err),
		}
	}
	return results[0]
}

// ValidateAll measures the original once and then each candidate in turn.
// A candidate failure is recorded on its Result and the next candidate
// proceeds, after a reconnect when the failure broke the connection. The
// error is non-nil only when the original cannot be measured.
func (v *Validator) ValidateAll(ctx context.Context, ex executor.Executor, original string, candidates []Variant) ([]Result, error) {
	results := make([]Result, len(candidates))
	keys := make([]string, len(candidates))
	var pending []int
	for i, c := range candidates {
		if v.cache != nil {
			keys[i] = CacheKey(v.cacheNS, v.dialect, original, c.SQL, MethodTrimmedMean, v.runs)
			if r, ok := v.cacheGet(keys[i]); ok {
				r.CandidateID = c.ID
				r.Cached = true
				results[i] = r
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	ordered := v.ordersOutput(original)
	base, err := v.measure(ctx, ex, original)
	if err != nil {
		v.recover(ctx, ex, err)
		return nil, fmt.Errorf("%w: %w", ErrOriginalFailed, err)
	}
	baseSig := RowSignature(base.rows, ordered)
	baseAvg := TrimmedMean(base.samples)

	for _, i := range pending {
		c := candidates[i]
		r := Result{
			CandidateID:   c.ID,
			Method:        MethodTrimmedMean,
			OriginalTimes: base.samples,
			OriginalAvg:   baseAvg,
			Original:      baseSig,
		}
		m, err := v.measure(ctx, ex, c.SQL)
		if err != nil {
			r.Status = StatusError
			r.Error = err.Error()
			r.Timeout = executor.IsTimeout(err)
			r.CandidateTimes = m.samples
			v.recover(ctx, ex, err)
		} else {
			r.CandidateTimes = m.samples
			r.CandidateAvg = TrimmedMean(m.samples)
			r.Candidate = RowSignature(m.rows, ordered)
			judge(&r)
			if v.cache != nil {
				v.cachePut(keys[i], r)
			}
		}
		v.logResult(r)
		results[i] = r
	}
	return results, nil
}

// judge fills speedup, row match and status from the measured fields.
func judge(r *Result) {
	r.Speedup = Speedup(r.OriginalAvg, r.CandidateAvg)
	r.Mismatch = Compare(r.Original, r.Candidate)
	r.RowsMatch = r.Mismatch == nil
	r.Status = Classify(r.Speedup, r.RowsMatch)
}

type measurement struct {
	samples []time.Duration
	rows    *executor.Rows
}

// measure runs sql v.runs times. The rows of the last run are kept.
func (v *Validator) measure(ctx context.Context, ex executor.Executor, sql string) (measurement, error) {
	var m measurement
	for i := 0; i < v.runs; i++ {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		start := v.clock.Now()
		rows, err := executor.Run(ctx, ex, sql, v.timeout)
		if err != nil {
			return m, err
		}
		elapsed := v.clock.Now().Sub(start)
		if err := v.overran(sql, elapsed); err != nil {
			return m, err
		}
		m.samples = append(m.samples, elapsed)
		m.rows = rows
	}
	return m, nil
}

// overran reports a run that outlived the cutoff as a timeout, whether or
// not the executor enforced it.
func (v *Validator) overran(sql string, elapsed time.Duration) error {
	if v.timeout > 0 && elapsed > v.timeout {
		return &executor.ExecutionTimeout{SQL: sql, Timeout: v.timeout}
	}
	return nil
}

// recover resets the executor when err says the connection is gone.
func (v *Validator) recover(ctx context.Context, ex executor.Executor, err error) {
	if !executor.IsBadConnection(err) {
		return
	}
	r, ok := ex.(executor.Recoverer)
	if !ok {
		v.logger.Warn("connection broken and executor cannot reconnect", "error", err)
		return
	}
	if rerr := r.Reset(ctx); rerr != nil {
		v.logger.Error("reconnect failed", "error", rerr)
		return
	}
	v.logger.Info("reconnected after broken connection", "error", err)
}

func (v *Validator) ordersOutput(sql string) bool {
	stmts, err := ir.Parse(sql, v.dialect)
	if err != nil {
		return false
	}
	return OrdersOutput(stmts)
}

func (v *Validator) cacheGet(key string) (Result, bool) {
	r, ok, err := v.cache.Get(key)
	if err != nil {
		v.logger.Warn("validation cache read failed", "error", err)
		return Result{}, false
	}
	return r, ok
}

func (v *Validator) cachePut(key string, r Result) {
	if r.Status == StatusError {
		return
	}
	if err := v.cache.Put(key, r); err != nil && !errors.Is(err, context.Canceled) {
		v.logger.Warn("validation cache write failed", "error", err)
	}
}

func (v *Validator) logResult(r Result) {
	attrs := []any{
		"candidate_id", r.CandidateID,
		"method", r.Method,
		"status", r.Status,
		"speedup", r.Speedup,
		"rows_match", r.RowsMatch,
	}
	if r.Error != "" {
		attrs = append(attrs, "error", r.Error)
	}
	v.logger.Info("candidate validated", attrs...)
}
