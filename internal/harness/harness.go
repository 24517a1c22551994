package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/qfleet/internal/candidate"
	"github.com/roach88/qfleet/internal/sqlexec"
	"github.com/roach88/qfleet/internal/validate"
)

// dbSeq keeps every scenario's in-memory database private.
var dbSeq atomic.Int64

// Harness runs scenarios against a throwaway SQLite database.
type Harness struct {
	db     *sqlexec.DB
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and load fixtures
// 2. Generate candidates from the scenario's proposals
// 3. Validate the candidates against the original
// 4. Evaluate assertions and return the result
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dsn := fmt.Sprintf("file:harness_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := sqlexec.Open(ctx, "sqlite", dsn, sqlexec.WithDialect(scenario.Dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()

	h := &Harness{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.loadFixtures(ctx, scenario.Fixtures); err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}

	result := NewResult()
	if err := h.execute(ctx, scenario, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, db) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) loadFixtures(ctx context.Context, fixtures []string) error {
	for i, stmt := range fixtures {
		if err := h.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("fixtures[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, sc *Scenario, result *Result) error {
	plans := make([]candidate.Proposal, len(sc.Candidates))
	for i, c := range sc.Candidates {
		p, err := c.PlanFor()
		if err != nil {
			return err
		}
		plans[i] = candidate.Proposal{SQL: c.SQL, Plan: p, Transforms: c.Transforms}
	}

	gen := candidate.NewGenerator(fixedProposer(plans),
		candidate.WithWorkers(len(sc.Candidates)),
		candidate.WithExamplesPerWorker(0),
		candidate.WithLogger(h.logger),
	)
	out, err := gen.Generate(ctx, candidate.Request{
		QueryID: sc.Name,
		SQL:     sc.Original,
		Dialect: sc.Dialect,
	})
	if err != nil {
		return fmt.Errorf("failed to generate candidates: %w", err)
	}

	outcomes := make([]Outcome, len(sc.Candidates))
	for i, c := range sc.Candidates {
		outcomes[i] = Outcome{Candidate: c.ID}
	}
	for _, f := range out.Failures {
		o := &outcomes[f.WorkerID-1]
		o.Verdict = VerdictNotGenerated
		o.Failure = f.Reason
		if f.Err != nil {
			o.Error = f.Err.Error()
		}
	}

	byID := make(map[string]int, len(out.Candidates))
	variants := make([]validate.Variant, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		byID[c.ID] = c.WorkerID - 1
		outcomes[c.WorkerID-1].SQL = c.SQL
		variants = append(variants, validate.Variant{ID: c.ID, SQL: c.SQL})
	}

	v := validate.NewValidator(
		validate.WithRuns(sc.Runs),
		validate.WithTimeout(sc.Timeout),
		validate.WithDialect(sc.Dialect),
		validate.WithLogger(h.logger),
	)
	if len(variants) == 0 {
		rows, err := h.db.Execute(ctx, sc.Original, sc.Timeout)
		if err != nil {
			return fmt.Errorf("original query failed: %w", err)
		}
		result.OriginalRows = rows.Len()
		result.Outcomes = outcomes
		return nil
	}

	results, err := v.ValidateAll(ctx, h.db, sc.Original, variants)
	if err != nil {
		return err
	}
	for _, r := range results {
		o := &outcomes[byID[r.CandidateID]]
		result.OriginalRows = r.Original.Rows
		o.Status = string(r.Status)
		o.RowsMatch = r.RowsMatch
		o.CandidateRows = r.Candidate.Rows
		o.Error = r.Error
		if r.Mismatch != nil {
			o.Mismatch = r.Mismatch.Reason
		}
		switch {
		case r.Status == validate.StatusError:
			o.Verdict = VerdictError
		case r.Status == validate.StatusWrongResults:
			o.Verdict = VerdictWrongResults
		default:
			o.Verdict = VerdictCorrect
		}
	}
	result.Outcomes = outcomes
	return nil
}

// fixedProposer answers worker n with proposals[n-1].
func fixedProposer(proposals []candidate.Proposal) candidate.Proposer {
	return candidate.ProposerFunc(func(_ context.Context, a candidate.Assignment) (candidate.Proposal, error) {
		return proposals[a.WorkerID-1], nil
	})
}
