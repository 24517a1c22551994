package dag

import "github.com/google/btree"

// readyItem orders blocks in the ready set by source position, then id.
type readyItem struct {
	n *Node
}

func (i readyItem) Less(than btree.Item) bool {
	o := than.(readyItem).n
	if i.n.Pos != o.Pos {
		return i.n.Pos < o.Pos
	}
	return i.n.ID < o.ID
}

// TopologicalOrder returns block ids so that every block follows the
// blocks it reads. Among blocks that are ready at the same time the one
// appearing first in the source comes first.
func (g *Graph) TopologicalOrder() []string {
	indeg := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		indeg[e.To]++
	}
	ready := btree.New(8)
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			ready.ReplaceOrInsert(readyItem{n})
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for ready.Len() > 0 {
		n := ready.DeleteMin().(readyItem).n
		order = append(order, n.ID)
		for _, to := range g.Dependents(n.ID) {
			indeg[to]--
			if indeg[to] == 0 {
				ready.ReplaceOrInsert(readyItem{g.index[to]})
			}
		}
	}
	return order
}
