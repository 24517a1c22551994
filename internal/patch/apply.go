package patch

import (
	"fmt"
	"log/slog"

	"github.com/roach88/qfleet/internal/ir"
)

// Result reports the outcome of Apply. OutputSQL and Statements are set
// only when every step succeeded and the output reparsed cleanly.
type Result struct {
	PlanID       string
	Success      bool
	StepsApplied int
	StepsTotal   int
	Errors       []error
	OutputSQL    string
	Statements   []*ir.Statement
}

// ErrorMessages returns the step errors as strings.
func (r *Result) ErrorMessages() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

// Apply runs plan against a clone of stmts. The input statements are never
// modified.
//
// The returned error is non-nil only for fatal plan problems (ErrEmptyPlan,
// ErrInvalidPlan). A step failure is reported in the Result, with
// StepsApplied counting the steps that succeeded before it.
func Apply(stmts []*ir.Statement, plan Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: no statements to patch", ErrInvalidPlan)
	}
	dialect := plan.Dialect
	if dialect == "" {
		dialect = stmts[0].Dialect
	}

	work := ir.CloneAll(stmts)
	res := &Result{PlanID: plan.ID, StepsTotal: len(plan.Steps)}
	for i, op := range plan.Steps {
		step := i + 1
		if err := applyStep(work, op, dialect, step); err != nil {
			slog.Debug("patch step failed",
				"plan_id", plan.ID,
				"step", step,
				"op", op.Kind(),
				"error", err,
			)
			res.Errors = append(res.Errors, err)
			return res, nil
		}
		res.StepsApplied++
	}

	out := ir.RenderAll(work)
	reparsed, err := ir.Parse(out, dialect)
	if err != nil {
		res.Errors = append(res.Errors, stepErr(len(plan.Steps), CodeRenderVerify, err, "patched SQL does not parse"))
		return res, nil
	}
	if len(reparsed) != len(work) {
		res.Errors = append(res.Errors, stepErr(len(plan.Steps), CodeRenderVerify, nil,
			"patched SQL has %d statements, want %d", len(reparsed), len(work)))
		return res, nil
	}
	for i := range work {
		if !ir.SameShape(work[i].Root, reparsed[i].Root) {
			res.Errors = append(res.Errors, stepErr(len(plan.Steps), CodeRenderVerify, nil,
				"patched SQL of %s reparses to a different structure", work[i].ID))
			return res, nil
		}
	}

	res.Success = true
	res.OutputSQL = out
	res.Statements = reparsed
	slog.Debug("patch plan applied", "plan_id", plan.ID, "steps", res.StepsApplied)
	return res, nil
}

// ApplySQL parses sql and applies plan to it. A parse failure of sql is
// returned as an error.
func ApplySQL(sql string, plan Plan) (*Result, error) {
	dialect := plan.Dialect
	if dialect == "" {
		dialect = ir.DefaultDialect
	}
	stmts, err := ir.Parse(sql, dialect)
	if err != nil {
		return nil, err
	}
	return Apply(stmts, plan)
}

func applyStep(stmts []*ir.Statement, op Op, dialect ir.Dialect, step int) error {
	st := findStatement(stmts, op.Target())
	if st == nil {
		return stepErr(step, CodeUnknownStatement, nil, "no statement %q", op.Target())
	}
	e := &editor{stmt: st, dialect: dialect, step: step}

	var err error
	switch o := op.(type) {
	case InsertCTE:
		err = e.insertCTE(o.Name, o.SQL)
	case ReplaceExprSubtree:
		err = e.replace(o.Anchor, o.SQL, false)
	case ReplaceWherePredicate:
		err = e.replace(o.Anchor, o.SQL, true)
	case DeleteExprSubtree:
		err = e.delete(o.Anchor)
	default:
		panic(fmt.Sprintf("patch: unhandled op %T", op))
	}
	if err != nil {
		return err
	}
	ir.AssignAnchors(st)
	return nil
}

func findStatement(stmts []*ir.Statement, id string) *ir.Statement {
	for _, s := range stmts {
		if s.ID == id {
			return s
		}
	}
	return nil
}
