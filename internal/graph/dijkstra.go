package graph

import (
	"container/heap"
	"errors"
	"fmt"
)

// ErrNoPath is returned when the end cannot be reached from the start.
var ErrNoPath = errors.New("no path")

type pqItem struct {
	node Node
	cost float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPath returns a least-time path from start to end, inclusive, and its time.
// Equal-cost frontier entries are expanded in node order.
func ShortestPath(g *Graph, start, end Node) ([]Node, float64, error) {
	if !g.Has(start) || !g.Has(end) {
		return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
	}
	if start == end {
		return []Node{start}, 0, nil
	}

	dist := map[Node]float64{start: 0}
	prev := map[Node]Node{}
	done := map[Node]bool{}

	pq := &priorityQueue{}
	heap.Push(pq, pqItem{node: start, cost: 0})
	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		cur := item.node
		if done[cur] {
			continue
		}
		done[cur] = true
		if cur == end {
			return reconstructPath(prev, start, end), item.cost, nil
		}
		for next, e := range g.adj[cur] {
			if done[next] {
				continue
			}
			alt := item.cost + e.Time
			if old, ok := dist[next]; !ok || alt < old {
				dist[next] = alt
				prev[next] = cur
				heap.Push(pq, pqItem{node: next, cost: alt})
			}
		}
	}
	return nil, 0, fmt.Errorf("%s->%s: %w", start, end, ErrNoPath)
}

func reconstructPath(prev map[Node]Node, start, end Node) []Node {
	path := []Node{end}
	for cur := end; cur != start; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
