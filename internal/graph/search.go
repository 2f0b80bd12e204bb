package graph

import (
	"container/heap"
	"fmt"
	"math"
	"time"
)

// Point places a node in the plane. Only the heuristic searches use it.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Heuristic estimates the remaining travel time from n to goal.
type Heuristic func(n, goal Node) float64

// ZeroHeuristic turns A* into Dijkstra and greedy best-first into a
// node-order walk.
func ZeroHeuristic(Node, Node) float64 { return 0 }

// Euclidean estimates time as straight-line distance over the fastest speed
// seen on any edge whose endpoints both have coordinates, so it never
// overestimates on g. It falls back to ZeroHeuristic when no such edge
// exists or a zero-time edge covers a positive distance.
func Euclidean(g *Graph, coords map[Node]Point) Heuristic {
	speed := 0.0
	for _, e := range g.Edges() {
		a, okA := coords[e.From]
		b, okB := coords[e.To]
		if !okA || !okB {
			continue
		}
		d := dist(a, b)
		if d == 0 {
			continue
		}
		if e.Time == 0 {
			return ZeroHeuristic
		}
		speed = math.Max(speed, d/e.Time)
	}
	if speed == 0 {
		return ZeroHeuristic
	}
	return func(n, goal Node) float64 {
		a, okA := coords[n]
		b, okB := coords[goal]
		if !okA || !okB {
			return 0
		}
		return dist(a, b) / speed
	}
}

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// BFS returns the path with the fewest edges and its travel time.
func BFS(g *Graph, start, end Node) ([]Node, float64, error) {
	if !g.Has(start) || !g.Has(end) {
		return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
	}
	prev := map[Node]Node{}
	seen := map[Node]bool{start: true}
	queue := []Node{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == end {
			return withTime(g, reconstructPath(prev, start, end))
		}
		for _, e := range g.Neighbors(cur) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			prev[e.To] = cur
			queue = append(queue, e.To)
		}
	}
	return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
}

// DFS returns the first path a depth-first walk reaches, visiting neighbours
// in node order. It is rarely the fastest.
func DFS(g *Graph, start, end Node) ([]Node, float64, error) {
	if !g.Has(start) || !g.Has(end) {
		return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
	}
	type frame struct{ node, from Node }
	prev := map[Node]Node{}
	done := map[Node]bool{}
	stack := []frame{{node: start}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if done[f.node] {
			continue
		}
		done[f.node] = true
		if f.node != start {
			prev[f.node] = f.from
		}
		if f.node == end {
			return withTime(g, reconstructPath(prev, start, end))
		}
		next := g.Neighbors(f.node)
		for i := len(next) - 1; i >= 0; i-- {
			if !done[next[i].To] {
				stack = append(stack, frame{node: next[i].To, from: f.node})
			}
		}
	}
	return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
}

// GreedyBestFirst always expands the frontier node h rates closest to end.
// It ignores the time already spent, so the path need not be shortest.
func GreedyBestFirst(g *Graph, start, end Node, h Heuristic) ([]Node, float64, error) {
	if !g.Has(start) || !g.Has(end) {
		return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
	}
	prev := map[Node]Node{}
	seen := map[Node]bool{start: true}
	pq := &priorityQueue{}
	heap.Push(pq, pqItem{node: start, cost: h(start, end)})
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem).node
		if cur == end {
			return withTime(g, reconstructPath(prev, start, end))
		}
		for _, e := range g.Neighbors(cur) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			prev[e.To] = cur
			heap.Push(pq, pqItem{node: e.To, cost: h(e.To, end)})
		}
	}
	return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
}

// AStar is Dijkstra guided by h. The path is least-time whenever h never
// overestimates and is consistent, which Euclidean guarantees.
func AStar(g *Graph, start, end Node, h Heuristic) ([]Node, float64, error) {
	if !g.Has(start) || !g.Has(end) {
		return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
	}
	gScore := map[Node]float64{start: 0}
	prev := map[Node]Node{}
	closed := map[Node]bool{}
	pq := &priorityQueue{}
	heap.Push(pq, pqItem{node: start, cost: h(start, end)})
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem).node
		if closed[cur] {
			continue
		}
		if cur == end {
			return reconstructPath(prev, start, end), gScore[end], nil
		}
		closed[cur] = true
		for next, e := range g.adj[cur] {
			if closed[next] {
				continue
			}
			tentative := gScore[cur] + e.Time
			if old, ok := gScore[next]; !ok || tentative < old {
				gScore[next] = tentative
				prev[next] = cur
				heap.Push(pq, pqItem{node: next, cost: tentative + h(next, end)})
			}
		}
	}
	return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
}

func withTime(g *Graph, path []Node) ([]Node, float64, error) {
	t, err := PathTime(g, path)
	if err != nil {
		return nil, 0, err
	}
	return path, t, nil
}

// Finder is the shape every path search shares.
type Finder func(g *Graph, start, end Node) ([]Node, float64, error)

// Algorithm is a named Finder.
type Algorithm struct {
	Name string
	Find Finder
}

// Algorithms lists every finder in report order, the heuristic ones using h.
func Algorithms(h Heuristic) []Algorithm {
	if h == nil {
		h = ZeroHeuristic
	}
	return []Algorithm{
		{Name: "Dijkstra", Find: ShortestPath},
		{Name: "BFS", Find: BFS},
		{Name: "DFS", Find: DFS},
		{Name: "GBFS", Find: func(g *Graph, s, e Node) ([]Node, float64, error) { return GreedyBestFirst(g, s, e, h) }},
		{Name: "A*", Find: func(g *Graph, s, e Node) ([]Node, float64, error) { return AStar(g, s, e, h) }},
	}
}

// Comparison is one algorithm's answer for a start/end pair.
type Comparison struct {
	Algorithm string
	Path      []Node
	Time      float64
	Elapsed   time.Duration
	Err       error
}

// Compare runs every algorithm on the same pair and times each one.
func Compare(g *Graph, start, end Node, algs []Algorithm) []Comparison {
	out := make([]Comparison, len(algs))
	for i, a := range algs {
		began := time.Now()
		path, t, err := a.Find(g, start, end)
		out[i] = Comparison{Algorithm: a.Name, Path: path, Time: t, Elapsed: time.Since(began), Err: err}
	}
	return out
}
