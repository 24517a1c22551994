package patch

import (
	"fmt"

	"github.com/roach88/qfleet/internal/ir"
)

// OpKind is the wire name of a patch operation.
type OpKind string

const (
	OpInsertCTE             OpKind = "insert_cte"
	OpReplaceExprSubtree    OpKind = "replace_expr_subtree"
	OpReplaceWherePredicate OpKind = "replace_where_predicate"
	OpDeleteExprSubtree     OpKind = "delete_expr_subtree"
)

// Op is one patch step. Implementations are limited to this package.
type Op interface {
	isOp()
	Kind() OpKind
	// Target returns the statement id the step edits.
	Target() string
}

// InsertCTE appends a CTE named Name with body SQL to the statement's WITH
// clause, creating the clause if absent.
type InsertCTE struct {
	StmtID      string
	Name        string
	SQL         string
	Description string
}

// ReplaceExprSubtree substitutes the node whose current anchor is Anchor
// with SQL parsed in the plan's dialect.
type ReplaceExprSubtree struct {
	StmtID      string
	Anchor      string
	SQL         string
	Description string
}

// ReplaceWherePredicate replaces one top-level conjunct of a WHERE (or
// HAVING, QUALIFY, ON) condition, leaving its siblings in place.
type ReplaceWherePredicate struct {
	StmtID      string
	Anchor      string
	SQL         string
	Description string
}

// DeleteExprSubtree removes the node whose current anchor is Anchor and
// reconnects the surrounding structure.
type DeleteExprSubtree struct {
	StmtID      string
	Anchor      string
	Description string
}

func (InsertCTE) isOp()             {}
func (ReplaceExprSubtree) isOp()    {}
func (ReplaceWherePredicate) isOp() {}
func (DeleteExprSubtree) isOp()     {}

func (InsertCTE) Kind() OpKind             { return OpInsertCTE }
func (ReplaceExprSubtree) Kind() OpKind    { return OpReplaceExprSubtree }
func (ReplaceWherePredicate) Kind() OpKind { return OpReplaceWherePredicate }
func (DeleteExprSubtree) Kind() OpKind     { return OpDeleteExprSubtree }

func (o InsertCTE) Target() string             { return o.StmtID }
func (o ReplaceExprSubtree) Target() string    { return o.StmtID }
func (o ReplaceWherePredicate) Target() string { return o.StmtID }
func (o DeleteExprSubtree) Target() string     { return o.StmtID }

// Plan is an ordered list of steps. A plan is applied once and never
// modified by Apply.
type Plan struct {
	ID      string
	Dialect ir.Dialect
	Steps   []Op
}

// Validate checks the plan's shape. It returns ErrEmptyPlan for a plan with
// no steps and an error wrapping ErrInvalidPlan for any malformed step.
func (p Plan) Validate() error {
	if len(p.Steps) == 0 {
		return ErrEmptyPlan
	}
	if p.Dialect != "" {
		if _, err := ir.ParseDialect(string(p.Dialect)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
	}
	for i, op := range p.Steps {
		if err := validateOp(op); err != nil {
			return fmt.Errorf("%w: step %d: %s", ErrInvalidPlan, i+1, err)
		}
	}
	return nil
}

func validateOp(op Op) error {
	if op == nil {
		return fmt.Errorf("missing operation")
	}
	if op.Target() == "" {
		return fmt.Errorf("%s: statement id is required", op.Kind())
	}
	switch o := op.(type) {
	case InsertCTE:
		if o.Name == "" || o.SQL == "" {
			return fmt.Errorf("%s: cte name and query are required", o.Kind())
		}
	case ReplaceExprSubtree:
		if o.Anchor == "" || o.SQL == "" {
			return fmt.Errorf("%s: anchor and replacement SQL are required", o.Kind())
		}
	case ReplaceWherePredicate:
		if o.Anchor == "" || o.SQL == "" {
			return fmt.Errorf("%s: anchor and replacement SQL are required", o.Kind())
		}
	case DeleteExprSubtree:
		if o.Anchor == "" {
			return fmt.Errorf("%s: anchor is required", o.Kind())
		}
	default:
		return fmt.Errorf("unknown operation %T", op)
	}
	return nil
}
