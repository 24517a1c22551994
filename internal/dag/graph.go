package dag

import (
	"errors"
	"fmt"
)

// BlockKind classifies a DAG node.
type BlockKind string

const (
	KindCTE      BlockKind = "cte"
	KindMain     BlockKind = "main_query"
	KindSubquery BlockKind = "subquery"
	KindDerived  BlockKind = "derived"
)

// MainID is the node id of the outermost query block.
const MainID = "main_query"

// ErrNotQuery is returned by Build for statements that are not queries.
var ErrNotQuery = errors.New("statement is not a query")

// AmbiguousReferenceError reports a name that resolves to more than one
// relation in the same scope.
type AmbiguousReferenceError struct {
	Block string
	Name  string
}

// Error implements the error interface.
func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("block %s: ambiguous reference %q", e.Block, e.Name)
}

// Node is one logical block.
type Node struct {
	ID     string    `json:"id"`
	Kind   BlockKind `json:"kind"`
	Anchor string    `json:"anchor"`
	// Parent is the enclosing block of a subquery, derived table or nested
	// CTE. Top-level CTEs and the main query have none.
	Parent string `json:"parent,omitempty"`
	// Tables lists base relations read directly by the block, normalised
	// and sorted.
	Tables     []string `json:"tables"`
	Correlated bool     `json:"correlated"`
	// OuterRefs lists qualifiers resolved in an enclosing block.
	OuterRefs []string `json:"outer_refs,omitempty"`
	SQL       string   `json:"sql"`
	Pos       int      `json:"pos"`

	exposed map[string]bool
	quals   map[string]bool
}

// Edge says To reads From's output.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the block decomposition of one statement.
type Graph struct {
	StmtID string  `json:"stmt_id"`
	Nodes  []*Node `json:"nodes"`
	Edges  []Edge  `json:"edges"`

	index map[string]*Node
	seen  map[Edge]bool
}

func newGraph(stmtID string) *Graph {
	return &Graph{
		StmtID: stmtID,
		index:  make(map[string]*Node),
		seen:   make(map[Edge]bool),
	}
}

// Node returns the block with the given id, or nil.
func (g *Graph) Node(id string) *Node { return g.index[id] }

// Dependencies returns the ids of blocks that id reads, in edge order.
func (g *Graph) Dependencies(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// Dependents returns the ids of blocks that read id, in edge order.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

func (g *Graph) add(n *Node) error {
	if _, dup := g.index[n.ID]; dup {
		return &AmbiguousReferenceError{Block: n.Parent, Name: n.ID}
	}
	g.Nodes = append(g.Nodes, n)
	g.index[n.ID] = n
	return nil
}

func (g *Graph) link(from, to string) {
	e := Edge{From: from, To: to}
	if from == to || g.seen[e] {
		return
	}
	g.seen[e] = true
	g.Edges = append(g.Edges, e)
}
