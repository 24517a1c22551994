package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qfleet/internal/dag"
	"github.com/roach88/qfleet/internal/ir"
)

// DAGOptions holds flags for the dag command.
type DAGOptions struct {
	*RootOptions
	Explain bool
}

// DAGResult is the JSON payload of the dag command.
type DAGResult struct {
	Graphs []*dag.Graph `json:"graphs"`
	Cost   *dag.CostMap `json:"cost,omitempty"`
}

// NewDAGCommand creates the dag command.
func NewDAGCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DAGOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dag <sql-file|->",
		Short: "Decompose a query into its blocks",
		Long: `Decompose every query statement into CTE, subquery and main blocks and
print them in dependency order.

With --explain the last query is explained on the configured database and
the plan's cost is attributed to its blocks.

Examples:
  qfleet dag query.sql
  qfleet dag query.sql --explain --driver sqlite --dsn ./data.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDAG(opts, args[0], cmd)
		},
	}
	addDialectFlag(cmd)
	addDatabaseFlags(cmd)
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "attribute plan cost to blocks")
	return cmd
}

func runDAG(opts *DAGOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	s, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	src, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	stmts, err := parseSQL(f, string(src), s.Dialect)
	if err != nil {
		return err
	}

	var res DAGResult
	var last *ir.Statement
	for _, st := range stmts {
		if st.Root.Kind != ir.KindQuery {
			f.VerboseLog("Skipping %s statement %s", st.Root.Kind, st.ID)
			continue
		}
		g, err := dag.Build(st)
		if err != nil {
			_ = f.Error(ErrCodeDAG, err.Error(), map[string]any{"statement": st.ID})
			return WrapExitError(ExitFailure, "query cannot be decomposed", err)
		}
		res.Graphs = append(res.Graphs, g)
		last = st
	}
	if last == nil {
		_ = f.Error(ErrCodeDAG, "no query statements", nil)
		return NewExitError(ExitFailure, "no query statements")
	}

	if opts.Explain {
		db, err := openDB(cmd, s)
		if err != nil {
			_ = f.Error(ErrCodeDatabase, err.Error(), nil)
			return err
		}
		defer db.Close()
		plan, err := db.Explain(cmd.Context(), last.Render())
		if err != nil {
			_ = f.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitFailure, "explain failed", err)
		}
		cost := dag.AttributeCost(res.Graphs[len(res.Graphs)-1], plan)
		res.Cost = &cost
	}

	if f.Format == "json" {
		return f.Success(res)
	}
	for _, g := range res.Graphs {
		fmt.Fprint(f.Writer, g.String())
	}
	if res.Cost != nil {
		fmt.Fprintln(f.Writer, "cost")
		for _, e := range res.Cost.Hotspots() {
			fmt.Fprintf(f.Writer, "  %-24s %6.1f%%  %d operator(s)\n", e.NodeID, e.Percent, e.Operators)
		}
		if res.Cost.UnmatchedCost > 0 {
			fmt.Fprintf(f.Writer, "  unmatched cost %.1f (%d operator(s))\n", res.Cost.UnmatchedCost, len(res.Cost.Unmatched))
		}
	}
	return nil
}
