package dag

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/qfleet/internal/executor"
	"github.com/roach88/qfleet/internal/ir"
)

// CostEntry is the share of plan cost attributed to one block.
type CostEntry struct {
	NodeID    string  `json:"node_id"`
	Cost      float64 `json:"cost"`
	Percent   float64 `json:"percent"`
	Operators int     `json:"operators"`
}

// CostMap is the result of AttributeCost. Entries follow topological
// order. Percentages are relative to MatchedCost, so they sum to 100 when
// anything matched.
type CostMap struct {
	Entries       []CostEntry `json:"entries"`
	MatchedCost   float64     `json:"matched_cost"`
	UnmatchedCost float64     `json:"unmatched_cost"`
	// Unmatched describes the operators left out of the totals.
	Unmatched []string `json:"unmatched,omitempty"`
}

// Percent returns the share of the block, or 0.
func (m CostMap) Percent(id string) float64 {
	for _, e := range m.Entries {
		if e.NodeID == id {
			return e.Percent
		}
	}
	return 0
}

// Hotspots returns the entries with non-zero cost, most expensive first.
func (m CostMap) Hotspots() []CostEntry {
	var out []CostEntry
	for _, e := range m.Entries {
		if e.Cost > 0 {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	return out
}

// AttributeCost assigns the self cost of every plan operator to a block.
//
// Scans are matched by relation name, narrowed by alias and by the CTE
// subplan they sit under. CTE scans go to the block reading the CTE.
// Operators without a relation inherit the block of their children when
// one block consumes all of them. Anything else is unmatched and excluded.
func AttributeCost(g *Graph, plan *executor.Plan) CostMap {
	m := newCostMatcher(g)
	costs := make(map[string]*CostEntry, len(g.Nodes))
	for _, n := range g.Nodes {
		costs[n.ID] = &CostEntry{NodeID: n.ID}
	}

	var out CostMap
	var visit func(p *executor.Plan, ctx string) string
	visit = func(p *executor.Plan, ctx string) string {
		if id, ok := m.subplanBlock(p); ok {
			ctx = id
		}
		var childBlocks []string
		for _, c := range p.Children {
			if id := visit(c, ctx); id != "" {
				childBlocks = append(childBlocks, id)
			}
		}
		id := m.match(p, ctx, childBlocks)
		self := p.SelfCost()
		if id == "" {
			out.UnmatchedCost += self
			out.Unmatched = append(out.Unmatched, describe(p))
			return ""
		}
		costs[id].Cost += self
		costs[id].Operators++
		out.MatchedCost += self
		return id
	}
	if plan != nil {
		visit(plan, "")
	}

	for _, id := range g.TopologicalOrder() {
		e := *costs[id]
		if out.MatchedCost > 0 {
			e.Percent = e.Cost / out.MatchedCost * 100
		}
		out.Entries = append(out.Entries, e)
	}
	if len(out.Unmatched) > 0 {
		slog.Debug("cost attribution left operators unmatched",
			"stmt_id", g.StmtID,
			"unmatched", len(out.Unmatched),
			"unmatched_cost", out.UnmatchedCost,
		)
	}
	return out
}

type costMatcher struct {
	g       *Graph
	byTable map[string][]string
	readers map[string][]string
	ctes    map[string][]string
	deps    map[string]map[string]bool
}

func newCostMatcher(g *Graph) *costMatcher {
	m := &costMatcher{
		g:       g,
		byTable: make(map[string][]string),
		readers: make(map[string][]string),
		ctes:    make(map[string][]string),
		deps:    make(map[string]map[string]bool),
	}
	for _, n := range g.Nodes {
		for _, t := range n.Tables {
			base := ir.BaseName(t)
			m.byTable[base] = append(m.byTable[base], n.ID)
		}
		if n.Kind == KindCTE {
			name := n.ID[strings.LastIndexByte(n.ID, '.')+1:]
			m.ctes[name] = append(m.ctes[name], n.ID)
			for _, r := range g.Dependents(n.ID) {
				m.readers[name] = append(m.readers[name], r)
			}
		}
	}
	return m
}

// subplanBlock recognises a Postgres "CTE name" subplan.
func (m *costMatcher) subplanBlock(p *executor.Plan) (string, bool) {
	name, ok := strings.CutPrefix(p.SubplanName, "CTE ")
	if !ok {
		return "", false
	}
	return unique(m.ctes[ir.IdentKey(name)])
}

func (m *costMatcher) match(p *executor.Plan, ctx string, children []string) string {
	switch {
	case p.CTEName != "":
		return pick(m.readers[ir.IdentKey(p.CTEName)], ctx, p.Alias, m.g)
	case p.Relation != "":
		base := ir.BaseName(p.Relation)
		if cands := m.byTable[base]; len(cands) > 0 {
			return pick(cands, ctx, p.Alias, m.g)
		}
		// SQLite reports scans of a materialised CTE by the CTE name.
		return pick(m.readers[base], ctx, p.Alias, m.g)
	case ctx != "":
		return ctx
	}
	return m.consumer(children)
}

// pick chooses among candidate blocks: the enclosing CTE subplan wins,
// then a single candidate, then the single candidate exposing alias.
func pick(cands []string, ctx, alias string, g *Graph) string {
	if len(cands) == 0 {
		return ""
	}
	for _, c := range cands {
		if c == ctx {
			return c
		}
	}
	if id, ok := unique(cands); ok {
		return id
	}
	if alias == "" {
		return ""
	}
	var hits []string
	for _, c := range cands {
		if g.index[c].exposed[ir.IdentKey(alias)] {
			hits = append(hits, c)
		}
	}
	id, _ := unique(hits)
	return id
}

// consumer returns the one block among children that transitively reads
// all the others.
func (m *costMatcher) consumer(children []string) string {
	set := make(map[string]bool)
	for _, c := range children {
		set[c] = true
	}
	if len(set) == 0 {
		return ""
	}
	var found []string
	for cand := range set {
		reach := m.reachable(cand)
		all := true
		for other := range set {
			if other != cand && !reach[other] {
				all = false
				break
			}
		}
		if all {
			found = append(found, cand)
		}
	}
	id, _ := unique(found)
	return id
}

// reachable returns every block id reads, directly or not.
func (m *costMatcher) reachable(id string) map[string]bool {
	if r, ok := m.deps[id]; ok {
		return r
	}
	r := make(map[string]bool)
	m.deps[id] = r
	for _, d := range m.g.Dependencies(id) {
		r[d] = true
		for k := range m.reachable(d) {
			r[k] = true
		}
	}
	return r
}

func unique(ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			return "", false
		}
	}
	return ids[0], true
}

func describe(p *executor.Plan) string {
	switch {
	case p.Relation != "":
		return fmt.Sprintf("%s on %s", p.Operator, p.Relation)
	case p.CTEName != "":
		return fmt.Sprintf("%s on %s", p.Operator, p.CTEName)
	}
	return p.Operator
}
