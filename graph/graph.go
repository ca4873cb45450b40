// Package graph holds the weighted, undirected hospital layout: departments
// as nodes, corridors as symmetric positive-weight edges (seconds of travel).
// The graph is populated once at startup by a builder and is read-only
// thereafter, so no locking is required on the query paths.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownNode is returned when an edge references a node that was
	// never added.
	ErrUnknownNode = errors.New("graph: unknown node")
	// ErrBadWeight is returned for non-positive corridor weights.
	ErrBadWeight = errors.New("graph: edge weight must be positive")
)

// Edge is a half-edge as seen from some node: the far endpoint plus the
// corridor weight.
type Edge struct {
	To     string
	Weight float64
}

// Graph is a weighted undirected graph keyed by department name.
type Graph struct {
	adj map[string]map[string]float64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{adj: map[string]map[string]float64{}}
}

// AddNode registers a department. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.adj[name]; !ok {
		g.adj[name] = map[string]float64{}
	}
}

// AddEdge registers a corridor between u and v in both directions. Both
// endpoints must already exist and the weight must be positive.
func (g *Graph) AddEdge(u, v string, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("%w: %s-%s weight=%v", ErrBadWeight, u, v, weight)
	}
	for _, n := range []string{u, v} {
		if _, ok := g.adj[n]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, n)
		}
	}
	g.adj[u][v] = weight
	g.adj[v][u] = weight
	return nil
}

// HasNode reports whether name is a known department.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.adj[name]
	return ok
}

// EdgeWeight returns the corridor weight between u and v, if one exists.
func (g *Graph) EdgeWeight(u, v string) (float64, bool) {
	w, ok := g.adj[u][v]
	return w, ok
}

// Neighbors returns u's incident edges sorted by far-endpoint name, for
// deterministic iteration.
func (g *Graph) Neighbors(u string) []Edge {
	edges := make([]Edge, 0, len(g.adj[u]))
	for v, w := range g.adj[u] {
		edges = append(edges, Edge{To: v, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// Nodes returns all department names, sorted.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.adj))
	for n := range g.adj {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.adj) }

// Edges lists every corridor exactly once, ordered by (From, To) with
// From < To.
func (g *Graph) Edges() []Corridor {
	var out []Corridor
	for _, u := range g.Nodes() {
		for _, e := range g.Neighbors(u) {
			if u < e.To {
				out = append(out, Corridor{From: u, To: e.To, Weight: e.Weight})
			}
		}
	}
	return out
}

// Connected reports whether every node is reachable from every other.
// The builder checks this once after population; an empty graph counts
// as connected.
func (g *Graph) Connected() bool {
	if len(g.adj) == 0 {
		return true
	}
	var start string
	for n := range g.adj {
		start = n
		break
	}
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for v := range g.adj[u] {
			if !seen[v] {
				seen[v] = true
				stack = append(stack, v)
			}
		}
	}
	return len(seen) == len(g.adj)
}

// Corridor is one builder input tuple.
type Corridor struct {
	From   string
	To     string
	Weight float64
}

// Build populates a graph from a department list and corridor tuples and
// verifies connectivity, which the pathfinder relies on only softly (an
// unreachable pair is a normal no-path result) but a disconnected hospital
// is always a configuration mistake.
func Build(departments []string, corridors []Corridor) (*Graph, error) {
	g := New()
	for _, d := range departments {
		g.AddNode(d)
	}
	for _, c := range corridors {
		if err := g.AddEdge(c.From, c.To, c.Weight); err != nil {
			return nil, err
		}
	}
	if !g.Connected() {
		return nil, errors.New("graph: hospital layout is not connected")
	}
	return g, nil
}
