// Package graph holds the road network: an immutable weighted directed graph
// whose edges carry a travel time and a capacity.
package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Node names an intersection or location.
type Node string

// Edge is a directed connection with a travel time and a capacity.
type Edge struct {
	From     Node    `json:"from" yaml:"from"`
	To       Node    `json:"to" yaml:"to"`
	Time     float64 `json:"time" yaml:"time"`
	Capacity int     `json:"capacity" yaml:"capacity"`
}

// Road is the undirected key of an edge, used for capacity accounting.
// A is always the lexically smaller endpoint.
type Road struct{ A, B Node }

// RoadOf returns the road joining a and b regardless of direction.
func RoadOf(a, b Node) Road {
	if b < a {
		a, b = b, a
	}
	return Road{A: a, B: b}
}

func (r Road) String() string { return string(r.A) + "<->" + string(r.B) }

var ErrInvalidGraph = errors.New("invalid graph")

// Graph is safe for concurrent reads; nothing mutates it after New.
type Graph struct {
	adj   map[Node]map[Node]Edge
	roads map[Road]int
	nodes []Node
	edges int
}

// New validates edges and builds a graph from them.
func New(edges []Edge) (*Graph, error) {
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: no edges", ErrInvalidGraph)
	}
	g := &Graph{
		adj:   map[Node]map[Node]Edge{},
		roads: map[Road]int{},
	}
	for i, e := range edges {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("%w: edge %d has an empty endpoint", ErrInvalidGraph, i)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("%w: edge %d is a self-loop on %s", ErrInvalidGraph, i, e.From)
		}
		if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) || e.Time < 0 {
			return nil, fmt.Errorf("%w: edge %s->%s has time %v", ErrInvalidGraph, e.From, e.To, e.Time)
		}
		if e.Capacity < 1 {
			return nil, fmt.Errorf("%w: edge %s->%s has capacity %d", ErrInvalidGraph, e.From, e.To, e.Capacity)
		}
		if g.adj[e.From] == nil {
			g.adj[e.From] = map[Node]Edge{}
		}
		if _, dup := g.adj[e.From][e.To]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s->%s", ErrInvalidGraph, e.From, e.To)
		}
		if g.adj[e.To] == nil {
			g.adj[e.To] = map[Node]Edge{}
		}
		g.adj[e.From][e.To] = e
		g.edges++

		// both directions share one capacity: the tighter of the two wins
		r := RoadOf(e.From, e.To)
		if c, ok := g.roads[r]; !ok || e.Capacity < c {
			g.roads[r] = e.Capacity
		}
	}
	for n := range g.adj {
		g.nodes = append(g.nodes, n)
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i] < g.nodes[j] })
	return g, nil
}

// Edge looks up the directed edge from -> to.
func (g *Graph) Edge(from, to Node) (Edge, bool) {
	e, ok := g.adj[from][to]
	return e, ok
}

// Has reports whether n appears as an endpoint of any edge.
func (g *Graph) Has(n Node) bool {
	_, ok := g.adj[n]
	return ok
}

// RoadCapacity returns the shared capacity of the road, if any edge joins its endpoints.
func (g *Graph) RoadCapacity(r Road) (int, bool) {
	c, ok := g.roads[r]
	return c, ok
}

// Nodes returns every node in sorted order. The slice is a copy.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Neighbors returns the outgoing edges of n sorted by destination.
func (g *Graph) Neighbors(n Node) []Edge {
	out := make([]Edge, 0, len(g.adj[n]))
	for _, e := range g.adj[n] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// Edges returns every directed edge, ordered by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for _, n := range g.nodes {
		out = append(out, g.Neighbors(n)...)
	}
	return out
}

func (g *Graph) Len() int       { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return g.edges }

// PathTime sums the edge times along path. A single-node path costs 0.
func PathTime(g *Graph, path []Node) (float64, error) {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		e, ok := g.Edge(path[i], path[i+1])
		if !ok {
			return 0, fmt.Errorf("no edge %s->%s", path[i], path[i+1])
		}
		total += e.Time
	}
	return total, nil
}
