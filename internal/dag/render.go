package dag

import (
	"fmt"
	"strings"
)

// String renders the graph in topological order, one block per line.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dag %s\n", g.StmtID)
	for _, id := range g.TopologicalOrder() {
		n := g.index[id]
		fmt.Fprintf(&b, "  %s (%s)", n.ID, n.Kind)
		if n.Correlated {
			fmt.Fprintf(&b, " correlated outer=[%s]", strings.Join(n.OuterRefs, ","))
		}
		if len(n.Tables) > 0 {
			fmt.Fprintf(&b, " tables=[%s]", strings.Join(n.Tables, ","))
		}
		if deps := g.Dependencies(id); len(deps) > 0 {
			fmt.Fprintf(&b, " reads=[%s]", strings.Join(deps, ","))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
