package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qfleet/internal/ir"
)

// NodeMapResult is the JSON payload of the nodemap command.
type NodeMapResult struct {
	Dialect     ir.Dialect      `json:"dialect"`
	Statements  []StatementInfo `json:"statements"`
	NodeMap     string          `json:"node_map"`
	Fingerprint string          `json:"fingerprint"`
}

// StatementInfo describes one parsed statement.
type StatementInfo struct {
	ID     string  `json:"id"`
	Kind   ir.Kind `json:"kind"`
	Anchor string  `json:"anchor"`
}

// NewNodeMapCommand creates the nodemap command.
func NewNodeMapCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodemap <sql-file|->",
		Short: "Print the addressable nodes of a query",
		Long: `Parse SQL and print every addressable node with its anchor.

Anchors are what patch plans refer to. The map is indented by depth and
lists each node's kind, a short label and its text.

Examples:
  qfleet nodemap query.sql
  cat query.sql | qfleet nodemap - --dialect postgres`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodeMap(rootOpts, args[0], cmd)
		},
	}
	addDialectFlag(cmd)
	return cmd
}

func runNodeMap(opts *RootOptions, path string, cmd *cobra.Command) error {
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
	f.VerboseLog("Parsed %d statement(s) as %s", len(stmts), s.Dialect)

	nodeMap := ir.RenderNodeMap(stmts)
	if f.Format != "json" {
		fmt.Fprint(f.Writer, nodeMap)
		if !strings.HasSuffix(nodeMap, "\n") {
			fmt.Fprintln(f.Writer)
		}
		return nil
	}

	res := NodeMapResult{
		Dialect:     s.Dialect,
		NodeMap:     nodeMap,
		Fingerprint: ir.Fingerprint(stmts),
	}
	for _, st := range stmts {
		res.Statements = append(res.Statements, StatementInfo{ID: st.ID, Kind: st.Root.Kind, Anchor: st.Root.Anchor})
	}
	return f.Success(res)
}

// parseSQL parses src, reporting a parse error in the configured format.
func parseSQL(f *OutputFormatter, src string, d ir.Dialect) ([]*ir.Statement, error) {
	stmts, err := ir.Parse(src, d)
	if err == nil {
		return stmts, nil
	}
	var pe *ir.ParseError
	if errors.As(err, &pe) {
		_ = f.Error(ErrCodeParse, pe.Message, map[string]any{
			"statement": pe.Statement,
			"line":      pe.Line,
			"column":    pe.Column,
			"near":      pe.Near,
		})
	} else {
		_ = f.Error(ErrCodeParse, err.Error(), nil)
	}
	return nil, WrapExitError(ExitFailure, "SQL does not parse", err)
}
