package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Plan is one operator of an execution plan tree.
//
// TotalCost is cumulative over the operator's subtree, the way Postgres
// reports it. Use SelfCost for the operator's own share.
type Plan struct {
	Operator    string  `json:"operator"`
	Relation    string  `json:"relation,omitempty"`
	Schema      string  `json:"schema,omitempty"`
	Alias       string  `json:"alias,omitempty"`
	CTEName     string  `json:"cte_name,omitempty"`
	SubplanName string  `json:"subplan_name,omitempty"`
	Rows        int64   `json:"rows"`
	StartupCost float64 `json:"startup_cost"`
	TotalCost   float64 `json:"total_cost"`
	Children    []*Plan `json:"children,omitempty"`
}

// SelfCost is TotalCost minus the children's TotalCost, floored at zero.
func (p *Plan) SelfCost() float64 {
	c := p.TotalCost
	for _, ch := range p.Children {
		c -= ch.TotalCost
	}
	if c < 0 {
		return 0
	}
	return c
}

// Walk visits p and its descendants depth-first. The parent of the root
// is nil.
func (p *Plan) Walk(fn func(n, parent *Plan)) {
	walkPlan(p, nil, fn)
}

func walkPlan(n, parent *Plan, fn func(n, parent *Plan)) {
	if n == nil {
		return
	}
	fn(n, parent)
	for _, c := range n.Children {
		walkPlan(c, n, fn)
	}
}

// String renders the tree one operator per line, indented by depth.
func (p *Plan) String() string {
	var b strings.Builder
	var write func(n *Plan, depth int)
	write = func(n *Plan, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Operator)
		if n.Relation != "" {
			b.WriteString(" on " + n.Relation)
		}
		if n.CTEName != "" {
			b.WriteString(" cte " + n.CTEName)
		}
		fmt.Fprintf(&b, " (cost=%.2f rows=%d)\n", n.TotalCost, n.Rows)
		for _, c := range n.Children {
			write(c, depth+1)
		}
	}
	write(p, 0)
	return b.String()
}

type pgNode struct {
	NodeType     string   `json:"Node Type"`
	RelationName string   `json:"Relation Name"`
	Schema       string   `json:"Schema"`
	Alias        string   `json:"Alias"`
	CTEName      string   `json:"CTE Name"`
	SubplanName  string   `json:"Subplan Name"`
	StartupCost  float64  `json:"Startup Cost"`
	TotalCost    float64  `json:"Total Cost"`
	PlanRows     int64    `json:"Plan Rows"`
	Plans        []pgNode `json:"Plans"`
}

type pgExplain struct {
	Plan pgNode `json:"Plan"`
}

// DecodePostgresJSON converts the output of EXPLAIN (FORMAT JSON) to a Plan.
// Both the bare object and the one-element array Postgres prints are
// accepted.
func DecodePostgresJSON(data []byte) (*Plan, error) {
	var outs []pgExplain
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &outs); err != nil {
			return nil, fmt.Errorf("decode explain json: %w", err)
		}
	} else {
		var one pgExplain
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, fmt.Errorf("decode explain json: %w", err)
		}
		outs = append(outs, one)
	}
	if len(outs) == 0 || outs[0].Plan.NodeType == "" {
		return nil, fmt.Errorf("decode explain json: no plan")
	}
	return convertPG(outs[0].Plan), nil
}

func convertPG(n pgNode) *Plan {
	p := &Plan{
		Operator:    n.NodeType,
		Relation:    n.RelationName,
		Schema:      n.Schema,
		Alias:       n.Alias,
		CTEName:     n.CTEName,
		SubplanName: n.SubplanName,
		Rows:        n.PlanRows,
		StartupCost: n.StartupCost,
		TotalCost:   n.TotalCost,
	}
	for _, c := range n.Plans {
		p.Children = append(p.Children, convertPG(c))
	}
	return p
}
