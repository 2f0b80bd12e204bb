package graph

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cityEdges() []Edge {
	return []Edge{
		{From: "A", To: "B", Time: 5, Capacity: 2},
		{From: "B", To: "A", Time: 5, Capacity: 2},
		{From: "A", To: "C", Time: 10, Capacity: 3},
		{From: "C", To: "A", Time: 10, Capacity: 3},
		{From: "B", To: "D", Time: 15, Capacity: 2},
		{From: "D", To: "B", Time: 15, Capacity: 2},
		{From: "C", To: "D", Time: 20, Capacity: 1},
		{From: "D", To: "C", Time: 20, Capacity: 1},
	}
}

func TestNewRejectsBadEdges(t *testing.T) {
	cases := map[string][]Edge{
		"empty":     nil,
		"endpoint":  {{From: "", To: "B", Time: 1, Capacity: 1}},
		"self-loop": {{From: "A", To: "A", Time: 1, Capacity: 1}},
		"negative":  {{From: "A", To: "B", Time: -1, Capacity: 1}},
		"nan":       {{From: "A", To: "B", Time: math.NaN(), Capacity: 1}},
		"inf":       {{From: "A", To: "B", Time: math.Inf(1), Capacity: 1}},
		"capacity":  {{From: "A", To: "B", Time: 1, Capacity: 0}},
		"duplicate": {{From: "A", To: "B", Time: 1, Capacity: 1}, {From: "A", To: "B", Time: 2, Capacity: 1}},
	}
	for name, edges := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(edges)
			require.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestGraphLookups(t *testing.T) {
	g, err := New(cityEdges())
	require.NoError(t, err)

	assert.Equal(t, []Node{"A", "B", "C", "D"}, g.Nodes())
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 8, g.EdgeCount())

	e, ok := g.Edge("A", "C")
	require.True(t, ok)
	assert.Equal(t, 10.0, e.Time)
	_, ok = g.Edge("B", "C")
	assert.False(t, ok)

	c, ok := g.RoadCapacity(RoadOf("D", "C"))
	require.True(t, ok)
	assert.Equal(t, 1, c)
	assert.Equal(t, RoadOf("A", "B"), RoadOf("B", "A"))

	nb := g.Neighbors("A")
	require.Len(t, nb, 2)
	assert.Equal(t, Node("B"), nb[0].To)
	assert.Equal(t, Node("C"), nb[1].To)
}

func TestRoadCapacityTakesTighterDirection(t *testing.T) {
	g, err := New([]Edge{
		{From: "X", To: "Y", Time: 1, Capacity: 4},
		{From: "Y", To: "X", Time: 2, Capacity: 2},
	})
	require.NoError(t, err)
	c, ok := g.RoadCapacity(RoadOf("X", "Y"))
	require.True(t, ok)
	assert.Equal(t, 2, c)
}

func TestShortestPathCity(t *testing.T) {
	g, err := New(cityEdges())
	require.NoError(t, err)

	cases := []struct {
		start, end Node
		want       []Node
		cost       float64
	}{
		{"A", "D", []Node{"A", "B", "D"}, 20},
		{"B", "C", []Node{"B", "A", "C"}, 15},
		{"C", "A", []Node{"C", "A"}, 10},
		{"D", "D", []Node{"D"}, 0},
	}
	for _, tc := range cases {
		path, cost, err := ShortestPath(g, tc.start, tc.end)
		require.NoError(t, err)
		assert.Equal(t, tc.want, path, "%s->%s", tc.start, tc.end)
		assert.Equal(t, tc.cost, cost)
	}
}

func TestShortestPathUnreachable(t *testing.T) {
	g, err := New([]Edge{
		{From: "A", To: "B", Time: 1, Capacity: 1},
		{From: "C", To: "D", Time: 1, Capacity: 1},
	})
	require.NoError(t, err)

	_, _, err = ShortestPath(g, "A", "D")
	assert.ErrorIs(t, err, ErrNoPath)
	// one-way: B has no way back
	_, _, err = ShortestPath(g, "B", "A")
	assert.ErrorIs(t, err, ErrNoPath)
	_, _, err = ShortestPath(g, "A", "Z")
	assert.ErrorIs(t, err, ErrNoPath)
	_, _, err = ShortestPath(g, "Z", "Z")
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestPathTime(t *testing.T) {
	g, err := New(cityEdges())
	require.NoError(t, err)

	got, err := PathTime(g, []Node{"A", "B", "D", "C"})
	require.NoError(t, err)
	assert.Equal(t, 40.0, got)

	got, err = PathTime(g, []Node{"A"})
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = PathTime(g, []Node{"A", "D"})
	assert.Error(t, err)
}

// bruteForce enumerates every simple path and returns the cheapest time.
func bruteForce(g *Graph, start, end Node) (float64, bool) {
	best, found := math.Inf(1), false
	seen := map[Node]bool{start: true}
	var walk func(cur Node, cost float64)
	walk = func(cur Node, cost float64) {
		if cur == end {
			if cost < best {
				best = cost
			}
			found = true
			return
		}
		for _, e := range g.Neighbors(cur) {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			walk(e.To, cost+e.Time)
			seen[e.To] = false
		}
	}
	walk(start, 0)
	return best, found
}

func TestShortestPathOptimalOnRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 40; trial++ {
		n := 3 + rng.Intn(5)
		var edges []Edge
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i != j && rng.Float64() < 0.4 {
					edges = append(edges, Edge{
						From:     Node(fmt.Sprint(i)),
						To:       Node(fmt.Sprint(j)),
						Time:     float64(1 + rng.Intn(20)),
						Capacity: 1,
					})
				}
			}
		}
		g, err := New(edges)
		if err != nil {
			continue
		}
		for _, s := range g.Nodes() {
			for _, e := range g.Nodes() {
				want, ok := bruteForce(g, s, e)
				path, got, err := ShortestPath(g, s, e)
				if !ok {
					require.True(t, errors.Is(err, ErrNoPath), "trial %d %s->%s", trial, s, e)
					continue
				}
				require.NoError(t, err)
				assert.InDelta(t, want, got, 1e-9, "trial %d %s->%s", trial, s, e)
				pt, err := PathTime(g, path)
				require.NoError(t, err)
				assert.InDelta(t, got, pt, 1e-9)
				assert.Equal(t, s, path[0])
				assert.Equal(t, e, path[len(path)-1])
			}
		}
	}
}
