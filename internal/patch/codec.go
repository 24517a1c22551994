package patch

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qfleet/internal/ir"
)

//go:embed plan.cue
var planSchemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	planDef    cue.Value
	schemaErr  error
)

func planSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(planSchemaSource, cue.Filename("plan.cue"))
		if err := v.Err(); err != nil {
			schemaErr = formatCUEError(err)
			return
		}
		planDef = v.LookupPath(cue.ParsePath("#Plan"))
	})
	return schemaCtx, planDef, schemaErr
}

// SchemaError reports a plan document that does not satisfy the wire schema.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	se := &SchemaError{Field: "plan", Message: first.Error()}
	if path := errors.Path(first); len(path) > 0 {
		se.Field = strings.Join(path, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}

type wirePlan struct {
	PlanID  string     `json:"plan_id"`
	Dialect string     `json:"dialect,omitempty"`
	Steps   []wireStep `json:"steps"`
}

type wireStep struct {
	Op          string `json:"op"`
	ByNodeID    string `json:"by_node_id"`
	ByAnchor    string `json:"by_anchor_hash,omitempty"`
	CTEName     string `json:"cte_name,omitempty"`
	CTEQuerySQL string `json:"cte_query_sql,omitempty"`
	ExprSQL     string `json:"expr_sql,omitempty"`
	Description string `json:"description,omitempty"`
}

// DecodePlan validates a JSON plan document against the wire schema and
// converts it to a Plan. Any schema violation wraps ErrInvalidPlan; a plan
// with no steps returns ErrEmptyPlan.
func DecodePlan(data []byte) (Plan, error) {
	ctx, def, err := planSchema()
	if err != nil {
		return Plan{}, fmt.Errorf("plan schema: %w", err)
	}
	doc := ctx.CompileBytes(data, cue.Filename("plan.json"))
	if err := doc.Err(); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrInvalidPlan, formatCUEError(err))
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrInvalidPlan, formatCUEError(err))
	}

	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	plan := Plan{ID: w.PlanID}
	if w.Dialect != "" {
		d, err := ir.ParseDialect(w.Dialect)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
		plan.Dialect = d
	}
	for _, s := range w.Steps {
		plan.Steps = append(plan.Steps, s.toOp())
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (s wireStep) toOp() Op {
	switch OpKind(s.Op) {
	case OpInsertCTE:
		return InsertCTE{StmtID: s.ByNodeID, Name: s.CTEName, SQL: s.CTEQuerySQL, Description: s.Description}
	case OpReplaceExprSubtree:
		return ReplaceExprSubtree{StmtID: s.ByNodeID, Anchor: s.ByAnchor, SQL: s.ExprSQL, Description: s.Description}
	case OpReplaceWherePredicate:
		return ReplaceWherePredicate{StmtID: s.ByNodeID, Anchor: s.ByAnchor, SQL: s.ExprSQL, Description: s.Description}
	case OpDeleteExprSubtree:
		return DeleteExprSubtree{StmtID: s.ByNodeID, Anchor: s.ByAnchor, Description: s.Description}
	}
	return nil
}

// EncodePlan renders a Plan in the wire format.
func EncodePlan(p Plan) ([]byte, error) {
	w := wirePlan{PlanID: p.ID, Dialect: string(p.Dialect), Steps: make([]wireStep, 0, len(p.Steps))}
	for i, op := range p.Steps {
		var s wireStep
		switch o := op.(type) {
		case InsertCTE:
			s = wireStep{ByNodeID: o.StmtID, CTEName: o.Name, CTEQuerySQL: o.SQL, Description: o.Description}
		case ReplaceExprSubtree:
			s = wireStep{ByNodeID: o.StmtID, ByAnchor: o.Anchor, ExprSQL: o.SQL, Description: o.Description}
		case ReplaceWherePredicate:
			s = wireStep{ByNodeID: o.StmtID, ByAnchor: o.Anchor, ExprSQL: o.SQL, Description: o.Description}
		case DeleteExprSubtree:
			s = wireStep{ByNodeID: o.StmtID, ByAnchor: o.Anchor, Description: o.Description}
		default:
			return nil, fmt.Errorf("%w: step %d: unknown operation %T", ErrInvalidPlan, i+1, op)
		}
		s.Op = string(op.Kind())
		w.Steps = append(w.Steps, s)
	}
	return json.MarshalIndent(w, "", "  ")
}
