package sqlexec

import (
	"fmt"
	"strings"

	"github.com/roach88/qfleet/internal/executor"
)

// DecodeSQLitePlan builds a plan tree from EXPLAIN QUERY PLAN rows
// (id, parent, notused, detail).
//
// SQLite reports no costs, so every operator gets a self cost of one and
// cost shares follow operator counts.
func DecodeSQLitePlan(rows *executor.Rows) (*executor.Plan, error) {
	root := &executor.Plan{Operator: "QUERY PLAN"}
	byID := map[int64]*executor.Plan{0: root}
	for i, r := range rows.Values {
		if len(r) < 4 {
			return nil, fmt.Errorf("explain row %d: want 4 columns, got %d", i, len(r))
		}
		id, ok1 := toInt(r[0])
		parent, ok2 := toInt(r[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("explain row %d: non-integer id", i)
		}
		n := parseDetail(fmt.Sprint(r[3]))
		byID[id] = n
		p, ok := byID[parent]
		if !ok {
			p = root
		}
		p.Children = append(p.Children, n)
	}
	assignCounts(root)
	return root, nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// parseDetail reads lines such as "SCAN orders", "SEARCH TABLE orders AS o
// USING INDEX ...", "MATERIALIZE recent" or "CO-ROUTINE recent".
func parseDetail(detail string) *executor.Plan {
	n := &executor.Plan{Operator: detail}
	f := strings.Fields(detail)
	if len(f) < 2 {
		return n
	}
	switch f[0] {
	case "SCAN", "SEARCH":
		n.Operator = f[0]
		rest := f[1:]
		if rest[0] == "TABLE" || rest[0] == "SUBQUERY" {
			if rest[0] == "SUBQUERY" {
				return n
			}
			rest = rest[1:]
		}
		if len(rest) == 0 || strings.HasPrefix(rest[0], "(") || rest[0] == "CONSTANT" {
			return n
		}
		n.Relation = rest[0]
		if len(rest) >= 3 && rest[1] == "AS" {
			n.Alias = rest[2]
		}
	case "MATERIALIZE", "CO-ROUTINE":
		n.Operator = f[0]
		if !strings.HasPrefix(f[1], "(") {
			n.SubplanName = "CTE " + f[1]
		}
	}
	return n
}

func assignCounts(p *executor.Plan) float64 {
	total := 1.0
	for _, c := range p.Children {
		total += assignCounts(c)
	}
	p.TotalCost = total
	return total
}
