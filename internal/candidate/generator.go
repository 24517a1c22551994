package candidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/qfleet/internal/dag"
	"github.com/roach88/qfleet/internal/ir"
	"github.com/roach88/qfleet/internal/patch"
)

// DefaultStrategies are assigned to workers round-robin when none are
// configured.
var DefaultStrategies = []string{
	"conservative",
	"decorrelate",
	"pushdown",
	"restructure",
}

// Request describes the query to rewrite.
type Request struct {
	QueryID string
	SQL     string
	Dialect ir.Dialect

	// Statements is the parsed SQL. Generate parses SQL when it is nil.
	Statements []*ir.Statement

	// DAG and Cost are optional context for the proposer.
	DAG  *dag.Graph
	Cost *dag.CostMap
}

// Assignment is what one worker hands its Proposer.
type Assignment struct {
	Request
	WorkerID int
	Strategy string
	Examples []Example

	// NodeMap lists the addressable nodes and their anchors, for proposers
	// that answer with a patch plan.
	NodeMap string
}

// Proposal is a Proposer's answer: either a full rewritten query or a patch
// plan against the original, never both.
type Proposal struct {
	SQL        string
	Plan       *patch.Plan
	Transforms []string
}

// Proposer suggests one rewrite for an assignment.
type Proposer interface {
	Propose(ctx context.Context, a Assignment) (Proposal, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, a Assignment) (Proposal, error)

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, a Assignment) (Proposal, error) {
	return f(ctx, a)
}

// Candidate is a proposal that parses and differs from the original.
type Candidate struct {
	ID       string
	QueryID  string
	WorkerID int
	Strategy string

	// SQL is the full candidate query. For a patch proposal it is the
	// patched output.
	SQL  string
	Plan *patch.Plan

	// Steps counts the rewrite steps: the plan length, or 1 for a full
	// rewrite.
	Steps      int
	Transforms []string
	Examples   []string
	Statements []*ir.Statement
}

// Failure reasons.
const (
	FailureUnavailable   = "unavailable"
	FailureProposer      = "proposer_error"
	FailurePanic         = "panic"
	FailureEmpty         = "empty_proposal"
	FailureAmbiguous     = "ambiguous_proposal"
	FailureInvalidPlan   = "invalid_plan"
	FailurePlanFailed    = "plan_failed"
	FailureUnparseable   = "unparseable"
	FailureUnchanged     = "unchanged"
	FailureContextCancel = "cancelled"
)

// GenerationFailure is a worker that produced no candidate.
type GenerationFailure struct {
	QueryID  string
	WorkerID int
	Strategy string
	Reason   string
	Err      error
}

func (f *GenerationFailure) Error() string {
	msg := fmt.Sprintf("worker %d (%s): %s", f.WorkerID, f.Strategy, f.Reason)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *GenerationFailure) Unwrap() error { return f.Err }

// IsGenerationFailure reports whether err is a GenerationFailure.
func IsGenerationFailure(err error) bool {
	var f *GenerationFailure
	return errors.As(err, &f)
}

// Outcome collects every worker's result. Each worker appears exactly once
// across Candidates and Failures, both ordered by worker id.
type Outcome struct {
	Candidates []Candidate
	Failures   []*GenerationFailure
}

// Generator runs workers against a Proposer.
type Generator struct {
	proposer   Proposer
	catalog    []Example
	workers    int
	perWorker  int
	strategies []string
	ids        IDGenerator
	avail      *AvailabilityCheck
	logger     *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkers sets the number of workers. The default is 4.
func WithWorkers(n int) Option {
	return func(g *Generator) { g.workers = n }
}

// WithExamplesPerWorker sets how many catalog examples each worker gets.
// The default is 3.
func WithExamplesPerWorker(k int) Option {
	return func(g *Generator) { g.perWorker = k }
}

// WithCatalog sets the example catalog.
func WithCatalog(examples []Example) Option {
	return func(g *Generator) { g.catalog = examples }
}

// WithStrategies sets the strategies assigned round-robin to workers.
func WithStrategies(s ...string) Option {
	return func(g *Generator) { g.strategies = s }
}

// WithIDGenerator sets the candidate id source.
func WithIDGenerator(ids IDGenerator) Option {
	return func(g *Generator) { g.ids = ids }
}

// WithAvailability gates generation on an availability check. When the
// proposer implements Prober and no check is given, one is created.
func WithAvailability(c *AvailabilityCheck) Option {
	return func(g *Generator) { g.avail = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator around p.
func NewGenerator(p Proposer, opts ...Option) *Generator {
	g := &Generator{
		proposer:   p,
		workers:    4,
		perWorker:  3,
		strategies: DefaultStrategies,
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.avail == nil {
		if pr, ok := p.(Prober); ok {
			g.avail = NewAvailabilityCheck(pr)
		}
	}
	if len(g.strategies) == 0 {
		g.strategies = DefaultStrategies
	}
	return g
}

// Availability returns the gate's current answer, or Available when there
// is no gate.
func (g *Generator) Availability(ctx context.Context) Availability {
	if g.avail == nil {
		return Available()
	}
	return g.avail.Check(ctx)
}

// ResetAvailability makes the next Generate probe the proposer again.
func (g *Generator) ResetAvailability() {
	if g.avail != nil {
		g.avail.Reset()
	}
}

// Generate runs every worker concurrently and collects their results. It
// returns an error only when the request itself cannot be parsed.
func (g *Generator) Generate(ctx context.Context, req Request) (*Outcome, error) {
	if req.Dialect == "" {
		req.Dialect = ir.DefaultDialect
	}
	if req.Statements == nil {
		stmts, err := ir.Parse(req.SQL, req.Dialect)
		if err != nil {
			return nil, fmt.Errorf("failed to parse query %s: %w", req.QueryID, err)
		}
		req.Statements = stmts
	}
	if req.SQL == "" {
		req.SQL = ir.RenderAll(req.Statements)
	}

	n := g.workers
	if n <= 0 {
		n = 1
	}
	assignments := make([]Assignment, n)
	examples := Allocate(g.catalog, n, g.perWorker)
	nodeMap := ir.RenderNodeMap(req.Statements)
	for i := range assignments {
		assignments[i] = Assignment{
			Request:  req,
			WorkerID: i + 1,
			Strategy: g.strategies[i%len(g.strategies)],
			Examples: examples[i],
			NodeMap:  nodeMap,
		}
	}

	if a := g.Availability(ctx); !a.OK() {
		g.logger.Warn("proposer unavailable",
			"query_id", req.QueryID,
			"reason", a.Reason,
		)
		out := &Outcome{}
		for _, as := range assignments {
			out.Failures = append(out.Failures, &GenerationFailure{
				QueryID:  req.QueryID,
				WorkerID: as.WorkerID,
				Strategy: as.Strategy,
				Reason:   FailureUnavailable,
				Err:      errors.New(a.Reason),
			})
		}
		return out, nil
	}

	// Each worker writes only its own slot, so results keep worker order.
	results := make([]*Candidate, n)
	failures := make([]*GenerationFailure, n)
	var wg sync.WaitGroup
	for i := range assignments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], failures[i] = g.work(ctx, assignments[i])
		}(i)
	}
	wg.Wait()

	out := &Outcome{}
	for i := range assignments {
		if results[i] != nil {
			// Ids follow worker order, not finishing order.
			results[i].ID = g.ids.Generate()
			out.Candidates = append(out.Candidates, *results[i])
		} else {
			out.Failures = append(out.Failures, failures[i])
		}
	}
	g.logger.Info("candidates generated",
		"query_id", req.QueryID,
		"workers", n,
		"candidates", len(out.Candidates),
		"failures", len(out.Failures),
	)
	return out, nil
}

func (g *Generator) work(ctx context.Context, a Assignment) (c *Candidate, f *GenerationFailure) {
	fail := func(reason string, err error) (*Candidate, *GenerationFailure) {
		g.logger.Debug("worker produced no candidate",
			"query_id", a.QueryID,
			"worker", a.WorkerID,
			"strategy", a.Strategy,
			"reason", reason,
			"error", err,
		)
		return nil, &GenerationFailure{
			QueryID:  a.QueryID,
			WorkerID: a.WorkerID,
			Strategy: a.Strategy,
			Reason:   reason,
			Err:      err,
		}
	}
	defer func() {
		if r := recover(); r != nil {
			c, f = fail(FailurePanic, fmt.Errorf("%v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(FailureContextCancel, err)
	}
	p, err := g.proposer.Propose(ctx, a)
	if err != nil {
		return fail(FailureProposer, err)
	}

	hasSQL := strings.TrimSpace(p.SQL) != ""
	switch {
	case p.Plan == nil && !hasSQL:
		return fail(FailureEmpty, nil)
	case p.Plan != nil && hasSQL:
		return fail(FailureAmbiguous, errors.New("proposal carries both SQL and a patch plan"))
	}

	cand := &Candidate{
		QueryID:    a.QueryID,
		WorkerID:   a.WorkerID,
		Strategy:   a.Strategy,
		Transforms: p.Transforms,
	}
	for _, e := range a.Examples {
		cand.Examples = append(cand.Examples, e.ID)
	}

	if p.Plan != nil {
		plan := *p.Plan
		if plan.Dialect == "" {
			plan.Dialect = a.Dialect
		}
		res, err := patch.Apply(a.Statements, plan)
		if err != nil {
			return fail(FailureInvalidPlan, err)
		}
		if !res.Success {
			return fail(FailurePlanFailed, errors.Join(res.Errors...))
		}
		cand.Plan = &plan
		cand.SQL = res.OutputSQL
		cand.Statements = res.Statements
		cand.Steps = len(plan.Steps)
	} else {
		stmts, err := ir.Parse(p.SQL, a.Dialect)
		if err != nil {
			return fail(FailureUnparseable, err)
		}
		cand.SQL = strings.TrimSpace(p.SQL)
		cand.Statements = stmts
		cand.Steps = 1
	}

	if ir.Fingerprint(cand.Statements) == ir.Fingerprint(a.Statements) {
		return fail(FailureUnchanged, nil)
	}
	return cand, nil
}
