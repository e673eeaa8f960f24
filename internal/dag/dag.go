// Package dag models table lineage as a directed acyclic graph.
// Edges point from the table a statement reads to the table it writes.
package dag

import (
	"fmt"
	"slices"
)

// NodeKind classifies a node in the lineage graph.
type NodeKind string

// Node kinds.
const (
	KindSource    NodeKind = "source"
	KindStaging   NodeKind = "staging"
	KindFact      NodeKind = "fact"
	KindDimension NodeKind = "dimension"
)

// Node is a table or an external source.
type Node struct {
	ID   string
	Kind NodeKind
}

// Graph is a lineage graph. The zero value is not usable; call NewGraph.
type Graph struct {
	nodes    map[string]*Node
	children map[string][]string // upstream -> downstream
	parents  map[string][]string // downstream -> upstream
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node, or updates the kind of an existing one.
func (g *Graph) AddNode(id string, kind NodeKind) {
	if n, ok := g.nodes[id]; ok {
		n.Kind = kind
		return
	}
	g.nodes[id] = &Node{ID: id, Kind: kind}
}

// AddEdge records that to is derived from from.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("node %q does not exist", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("node %q does not exist", to)
	}
	if from == to {
		return fmt.Errorf("self-loop detected: %s", from)
	}

	if !slices.Contains(g.children[from], to) {
		g.children[from] = append(g.children[from], to)
		g.parents[to] = append(g.parents[to], from)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the direct upstream nodes of id, sorted.
func (g *Graph) Parents(id string) []string {
	return sorted(g.parents[id])
}

// Children returns the direct downstream nodes of id, sorted.
func (g *Graph) Children(id string) []string {
	return sorted(g.children[id])
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, c := range g.children {
		count += len(c)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle and, if so, one cycle
// path that starts and ends at the same node.
func (g *Graph) HasCycle() (bool, []string) {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inProgress
		stack = append(stack, id)
		for _, next := range sorted(g.children[id]) {
			switch state[next] {
			case inProgress:
				start := slices.Index(stack, next)
				cycle = append(slices.Clone(stack[start:]), next)
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, n := range g.Nodes() {
		if state[n.ID] == unvisited && visit(n.ID) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with every node after all of its parents.
// Ties are broken by ID so the order is deterministic.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", path)
	}

	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.parents[id])
	}

	ready := g.Roots()
	out := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, g.nodes[id])

		for _, child := range g.children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
				slices.Sort(ready)
			}
		}
	}
	return out, nil
}

// Levels groups nodes by their distance from the roots. Level 0 holds the
// roots; a node's level is one more than its deepest parent.
func (g *Graph) Levels() ([][]string, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(order))
	var levels [][]string
	for _, n := range order {
		l := 0
		for _, p := range g.parents[n.ID] {
			l = max(l, level[p]+1)
		}
		level[n.ID] = l
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], n.ID)
	}

	for i := range levels {
		slices.Sort(levels[i])
	}
	return levels, nil
}

// Upstream returns every node id is derived from, transitively.
func (g *Graph) Upstream(id string) []string {
	return g.walk(id, g.parents)
}

// Downstream returns every node derived from id, transitively.
func (g *Graph) Downstream(id string) []string {
	return g.walk(id, g.children)
}

// Roots returns nodes with no parents.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	slices.Sort(roots)
	return roots
}

// Leaves returns nodes with no children.
func (g *Graph) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	slices.Sort(leaves)
	return leaves
}

func (g *Graph) walk(id string, next map[string][]string) []string {
	seen := make(map[string]bool)
	queue := slices.Clone(next[id])
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, next[cur]...)
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
