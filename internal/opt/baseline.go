package opt

import (
	"math"

	"roadplan/internal/graph"
)

// BaselineResult is the unconstrained shortest-path assignment.
type BaselineResult struct {
	Routes      []Route
	Times       []float64
	Total       float64
	Unreachable []int
}

// Baseline routes every vehicle independently along its shortest path,
// ignoring capacity and time windows. An unreachable vehicle gets a nil route
// and +Inf time, which makes Total +Inf too.
func Baseline(g *graph.Graph, vehicles []Vehicle) BaselineResult {
	res := BaselineResult{
		Routes: make([]Route, len(vehicles)),
		Times:  make([]float64, len(vehicles)),
	}
	for i, v := range vehicles {
		path, t, err := graph.ShortestPath(g, v.Start, v.End)
		if err != nil {
			res.Times[i] = inf
			res.Unreachable = append(res.Unreachable, i)
			res.Total = inf
			continue
		}
		res.Routes[i] = path
		res.Times[i] = t
		res.Total += t
	}
	return res
}

// Improvement is the percentage saved by optimized over baseline. It is 0
// when the baseline is not positive or either time is not finite.
func Improvement(baseline, optimized float64) float64 {
	if baseline <= 0 || math.IsInf(baseline, 0) || math.IsNaN(baseline) ||
		math.IsInf(optimized, 0) || math.IsNaN(optimized) {
		return 0
	}
	return (baseline - optimized) / baseline * 100
}
