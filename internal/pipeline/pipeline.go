package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/qfleet/internal/candidate"
	"github.com/roach88/qfleet/internal/compress"
	"github.com/roach88/qfleet/internal/dag"
	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/fleet"
	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/report"
	"github.com/roach88/qfleet/internal/validate"
)

// Stage names, in order.
const (
	StageParse    = "parse"
	StageDAG      = "dag"
	StageGenerate = "generate"
	StageValidate = "validate"
	StageCompress = "compress"
	StagePublish  = "publish"
)

// Query is one input query.
type Query struct {
	ID  string `json:"id" yaml:"id"`
	SQL string `json:"sql" yaml:"sql"`
}

// QueryResult is everything learned about one query.
type QueryResult struct {
	Query       Query
	Statements  []*ir.Statement
	Graph       *dag.Graph
	Cost        *dag.CostMap
	Candidates  []candidate.Candidate
	Failures    []*candidate.GenerationFailure
	Validations []validate.Result
	Ranked      []compress.Entry
	Entry       report.Entry
}

// Pipeline runs queries against one executor.
type Pipeline struct {
	cfg       Config
	exec      executor.Executor
	generator *candidate.Generator
	validator *validate.Validator
	bus       *fleet.Bus
	ctl       *fleet.Controller
	runID     string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBus sets the event bus.
func WithBus(b *fleet.Bus) Option {
	return func(p *Pipeline) { p.bus = b }
}

// WithController sets the operator controller.
func WithController(c *fleet.Controller) Option {
	return func(p *Pipeline) { p.ctl = c }
}

// WithValidator replaces the validator built from Config.
func WithValidator(v *validate.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithRunID sets the run id. The default is a fresh UUIDv7.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline.
func New(cfg Config, ex executor.Executor, gen *candidate.Generator, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, errors.New("pipeline needs an executor")
	}
	if gen == nil {
		return nil, errors.New("pipeline needs a candidate generator")
	}
	p := &Pipeline{
		cfg:       cfg,
		exec:      ex,
		generator: gen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.validator == nil {
		p.validator = validate.NewValidator(
			validate.WithRuns(cfg.Runs),
			validate.WithTimeout(cfg.Timeout),
			validate.WithDialect(cfg.Dialect),
			validate.WithLogger(p.logger),
		)
	}
	if p.bus == nil {
		p.bus = fleet.NewBus(fleet.WithCapacity(cfg.BusCapacity))
	}
	if p.ctl == nil {
		p.ctl = fleet.NewController(p.bus)
	}
	if p.runID == "" {
		p.runID = uuid.Must(uuid.NewV7()).String()
	}
	return p, nil
}

// Bus returns the event bus.
func (p *Pipeline) Bus() *fleet.Bus { return p.bus }

// Controller returns the operator controller.
func (p *Pipeline) Controller() *fleet.Controller { return p.ctl }

// RunID returns the run id.
func (p *Pipeline) RunID() string { return p.runID }

// Run takes one query through every stage. It fails only when the query
// does not parse, the original cannot be measured, or ctx ends; candidate
// failures are part of the result.
func (p *Pipeline) Run(ctx context.Context, q Query) (*QueryResult, error) {
	res := &QueryResult{Query: q}
	p.emit(fleet.EventQueryStarted, map[string]any{"query_id": q.ID})

	err := p.stages(ctx, res)
	if err != nil {
		p.logger.Warn("query failed", "query_id", q.ID, "error", err)
		p.emit(fleet.EventQueryFailed, map[string]any{"query_id": q.ID, "error": err.Error()})
		res.Entry = report.Entry{
			QueryID:      q.ID,
			Status:       validate.StatusError,
			OriginalSQL:  q.SQL,
			OptimizedSQL: q.SQL,
			Candidates:   len(res.Candidates),
			Error:        err.Error(),
		}
		return res, err
	}
	p.emit(fleet.EventQueryCompleted, map[string]any{
		"query_id": q.ID,
		"status":   string(res.Entry.Status),
		"speedup":  res.Entry.Speedup,
	})
	return res, nil
}

func (p *Pipeline) stages(ctx context.Context, res *QueryResult) error {
	steps := []struct {
		name string
		fn   func(context.Context, *QueryResult) error
	}{
		{StageParse, p.parse},
		{StageDAG, p.decompose},
		{StageGenerate, p.generate},
		{StageValidate, p.validate},
		{StageCompress, p.compress},
		{StagePublish, p.publish},
	}
	for _, s := range steps {
		if err := p.ctl.Checkpoint(ctx, s.name); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.emit(fleet.EventStageStarted, map[string]any{"query_id": res.Query.ID, "stage": s.name})
		if err := s.fn(ctx, res); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		p.emit(fleet.EventStageCompleted, map[string]any{"query_id": res.Query.ID, "stage": s.name})
	}
	return nil
}

func (p *Pipeline) parse(_ context.Context, res *QueryResult) error {
	stmts, err := ir.Parse(res.Query.SQL, p.cfg.Dialect)
	if err != nil {
		return err
	}
	res.Statements = stmts
	return nil
}

// decompose builds the DAG of the last query statement and attributes
// plan cost when the executor can explain it. Neither is required for
// the later stages, so failures are logged and skipped.
func (p *Pipeline) decompose(ctx context.Context, res *QueryResult) error {
	var target *ir.Statement
	for _, s := range res.Statements {
		if s.Root.Kind == ir.KindQuery {
			target = s
		}
	}
	if target == nil {
		return nil
	}
	g, err := dag.Build(target)
	if err != nil {
		p.logger.Warn("query decomposition failed", "query_id", res.Query.ID, "error", err)
		return nil
	}
	res.Graph = g

	plan, err := p.exec.Explain(ctx, target.Render())
	if err != nil {
		p.logger.Debug("no plan for cost attribution", "query_id", res.Query.ID, "error", err)
		return nil
	}
	cost := dag.AttributeCost(g, plan)
	res.Cost = &cost
	return nil
}

func (p *Pipeline) generate(ctx context.Context, res *QueryResult) error {
	out, err := p.generator.Generate(ctx, candidate.Request{
		QueryID:    res.Query.ID,
		SQL:        res.Query.SQL,
		Dialect:    p.cfg.Dialect,
		Statements: res.Statements,
		DAG:        res.Graph,
		Cost:       res.Cost,
	})
	if err != nil {
		return err
	}
	res.Candidates = out.Candidates
	res.Failures = out.Failures
	for _, c := range out.Candidates {
		p.emit(fleet.EventCandidateGenerated, map[string]any{
			"query_id":     res.Query.ID,
			"candidate_id": c.ID,
			"worker":       c.WorkerID,
			"strategy":     c.Strategy,
			"steps":        c.Steps,
		})
	}
	for _, f := range out.Failures {
		p.emit(fleet.EventGenerationFailed, map[string]any{
			"query_id": res.Query.ID,
			"worker":   f.WorkerID,
			"reason":   f.Reason,
		})
	}
	return nil
}

func (p *Pipeline) validate(ctx context.Context, res *QueryResult) error {
	if len(res.Candidates) == 0 {
		return nil
	}
	variants := make([]validate.Variant, len(res.Candidates))
	for i, c := range res.Candidates {
		variants[i] = validate.Variant{ID: c.ID, SQL: c.SQL}
	}

	if p.cfg.Race {
		race, err := p.validator.Race(ctx, p.exec, res.Query.SQL, variants)
		if err != nil {
			return err
		}
		res.Validations = race.Results
	} else {
		results, err := p.validator.ValidateAll(ctx, p.exec, res.Query.SQL, variants)
		if err != nil {
			return err
		}
		res.Validations = results
	}
	for _, r := range res.Validations {
		p.emit(fleet.EventCandidateValidated, map[string]any{
			"query_id":     res.Query.ID,
			"candidate_id": r.CandidateID,
			"status":       string(r.Status),
			"speedup":      r.Speedup,
		})
	}
	return nil
}

func (p *Pipeline) compress(_ context.Context, res *QueryResult) error {
	runs := p.cfg.Runs
	if p.cfg.Race {
		runs = 1
	}
	entries := make([]compress.Entry, 0, len(res.Candidates))
	for i, c := range res.Candidates {
		v := res.Validations[i]
		entries = append(entries, compress.Entry{
			ID:       c.ID,
			WorkerID: c.WorkerID,
			SQL:      c.SQL,
			Steps:    c.Steps,
			Speedup:  v.Speedup,
			Status:   v.Status,
			Method:   v.Method,
			Runs:     runs,
		})
	}
	res.Ranked = compress.Compress(entries, p.cfg.Dialect)
	return nil
}

// publish picks the query's leaderboard entry, waiting for approval
// first when the config asks for it.
func (p *Pipeline) publish(ctx context.Context, res *QueryResult) error {
	if p.cfg.RequireApproval {
		if err := p.ctl.AwaitApproval(ctx, res.Query.ID); err != nil {
			return err
		}
	}
	res.Entry = p.entry(res)
	return nil
}

func (p *Pipeline) entry(res *QueryResult) report.Entry {
	e := report.Entry{
		QueryID:      res.Query.ID,
		OriginalSQL:  res.Query.SQL,
		OptimizedSQL: res.Query.SQL,
		Candidates:   len(res.Candidates),
	}
	if len(res.Ranked) > 0 {
		best := res.Ranked[0]
		c := findCandidate(res.Candidates, best.ID)
		e.Status = best.Status
		e.Speedup = best.Speedup
		e.CandidateID = best.ID
		e.WorkerID = best.WorkerID
		e.Method = best.Method
		e.Score = best.Score.Total
		if c != nil {
			e.Transforms = c.Transforms
		}
		if best.Status == validate.StatusWin || best.Status == validate.StatusImproved {
			e.OptimizedSQL = best.SQL
		}
		return e
	}

	e.Status = validate.StatusError
	switch {
	case len(res.Candidates) == 0:
		e.Error = "no candidates generated"
	default:
		e.Error = "no candidate passed validation"
		for _, v := range res.Validations {
			if v.Status == validate.StatusWrongResults {
				e.Status = validate.StatusWrongResults
				e.Error = ""
				break
			}
		}
	}
	return e
}

func findCandidate(cs []candidate.Candidate, id string) *candidate.Candidate {
	for i := range cs {
		if cs[i].ID == id {
			return &cs[i]
		}
	}
	return nil
}

// RunBatch runs every query. One query's failure never stops the others;
// it becomes an ERROR entry. Cancelling ctx stops the batch.
func (p *Pipeline) RunBatch(ctx context.Context, queries []Query) (*report.Leaderboard, []*QueryResult, error) {
	board := report.New(p.runID)
	p.emit(fleet.EventPipelineStarted, map[string]any{"run_id": p.runID, "queries": len(queries)})

	var results []*QueryResult
	for _, q := range queries {
		res, err := p.Run(ctx, q)
		results = append(results, res)
		board.Add(res.Entry)
		if err != nil && ctx.Err() != nil {
			return board, results, ctx.Err()
		}
	}
	board.Sort()

	s := board.Summary()
	p.emit(fleet.EventPipelineCompleted, map[string]any{
		"run_id":  p.runID,
		"queries": s.Total,
		"wins":    s.Counts[validate.StatusWin],
	})
	p.logger.Info("pipeline completed",
		"run_id", p.runID,
		"queries", s.Total,
		"wins", s.Counts[validate.StatusWin],
		"dropped_events", p.bus.Dropped(),
	)
	return board, results, nil
}

func (p *Pipeline) emit(typ fleet.EventType, data map[string]any) {
	p.bus.Emit(typ, data)
}
