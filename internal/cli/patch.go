package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qfleet/internal/patch"
)

// PatchResult is the JSON payload of the patch command.
type PatchResult struct {
	PlanID       string `json:"plan_id"`
	StepsApplied int    `json:"steps_applied"`
	StepsTotal   int    `json:"steps_total"`
	OutputSQL    string `json:"output_sql"`
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <sql-file|-> <plan.json>",
		Short: "Apply a patch plan to a query",
		Long: `Apply a JSON patch plan to SQL and print the patched query.

The plan is checked against the plan schema first. Steps run in order
against the result of the previous step; if any step fails nothing is
printed and the failing step is reported.

Exit codes:
  0 - Plan applied
  1 - Plan rejected, a step failed, or the SQL does not parse
  2 - Command error (unreadable files, bad configuration)

Examples:
  qfleet patch query.sql plan.json
  qfleet patch query.sql plan.json --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(rootOpts, args[0], args[1], cmd)
		},
	}
	addDialectFlag(cmd)
	return cmd
}

func runPatch(opts *RootOptions, sqlPath, planPath string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, sqlPath)
	if err != nil {
		return err
	}
	planJSON, err := readInput(cmd, planPath)
	if err != nil {
		return err
	}

	plan, err := patch.DecodePlan(planJSON)
	if err != nil {
		_ = f.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid patch plan", err)
	}
	if plan.Dialect == "" {
		plan.Dialect = s.Dialect
	}
	stmts, err := parseSQL(f, string(src), plan.Dialect)
	if err != nil {
		return err
	}

	res, err := patch.Apply(stmts, plan)
	if err != nil {
		_ = f.Error(ErrCodePlan, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid patch plan", err)
	}
	if !res.Success {
		_ = f.Error(ErrCodePatch, fmt.Sprintf("patch failed after %d of %d steps", res.StepsApplied, res.StepsTotal), stepDetails(res.Errors))
		return WrapExitError(ExitFailure, "patch failed", errors.Join(res.Errors...))
	}
	f.VerboseLog("Applied %d step(s) of plan %s", res.StepsApplied, res.PlanID)

	if f.Format != "json" {
		fmt.Fprintln(f.Writer, res.OutputSQL)
		return nil
	}
	return f.Success(PatchResult{
		PlanID:       res.PlanID,
		StepsApplied: res.StepsApplied,
		StepsTotal:   res.StepsTotal,
		OutputSQL:    res.OutputSQL,
	})
}

func stepDetails(errs []error) []map[string]any {
	out := make([]map[string]any, 0, len(errs))
	for _, err := range errs {
		d := map[string]any{"message": err.Error()}
		var ae *patch.AnchorResolutionError
		var se *patch.StepError
		switch {
		case errors.As(err, &ae):
			d["step"] = ae.Step
			d["anchor"] = ae.Anchor
			d["reason"] = ae.Reason
		case errors.As(err, &se):
			d["step"] = se.Step
			d["code"] = se.Code
		}
		out = append(out, d)
	}
	return out
}
