package opt

import (
	"fmt"

	"roadplan/internal/graph"
)

// Evaluate returns the total travel time of sol, or an *Infeasible error on
// the first violated constraint. Road usage is counted from scratch on every
// call, so candidates never share counters.
func Evaluate(sol Solution, g *graph.Graph, vehicles []Vehicle) (float64, error) {
	if len(sol.Routes) != len(vehicles) {
		return 0, fmt.Errorf("%w: %d routes for %d vehicles", ErrInvalidConfiguration, len(sol.Routes), len(vehicles))
	}
	usage := make(map[graph.Road]int)
	total := 0.0
	for vi, route := range sol.Routes {
		v := vehicles[vi]
		if len(route) == 0 || route[0] != v.Start || route[len(route)-1] != v.End {
			return 0, &Infeasible{Reason: ErrInvalidEdge, Vehicle: vi, Detail: fmt.Sprintf("route does not run from %s to %s", v.Start, v.End)}
		}
		t := 0.0
		for i := 0; i+1 < len(route); i++ {
			from, to := route[i], route[i+1]
			e, ok := g.Edge(from, to)
			if !ok {
				return 0, &Infeasible{Reason: ErrInvalidEdge, Vehicle: vi, From: from, To: to}
			}
			t += e.Time

			road := graph.RoadOf(from, to)
			usage[road]++
			limit, _ := g.RoadCapacity(road)
			if usage[road] > limit {
				return 0, &Infeasible{Reason: ErrCapacityExceeded, Vehicle: vi, From: from, To: to,
					Detail: fmt.Sprintf("road %s used %d times, capacity %d", road, usage[road], limit)}
			}
		}
		if !v.Window.Contains(t) {
			return 0, &Infeasible{Reason: ErrTimeWindowViolated, Vehicle: vi,
				Detail: fmt.Sprintf("time %v outside [%v, %v]", t, v.Window.Min, v.Window.Max)}
		}
		total += t
	}
	return total, nil
}

// RouteTimes returns the raw travel time of each route, ignoring capacity and
// time windows. A route with a missing edge gets +Inf.
func RouteTimes(sol Solution, g *graph.Graph) []float64 {
	out := make([]float64, len(sol.Routes))
	for i, r := range sol.Routes {
		t, err := graph.PathTime(g, r)
		if err != nil {
			t = inf
		}
		out[i] = t
	}
	return out
}

// RoadUsage counts how many times each road is crossed by sol.
func RoadUsage(sol Solution) map[graph.Road]int {
	usage := make(map[graph.Road]int)
	for _, r := range sol.Routes {
		for i := 0; i+1 < len(r); i++ {
			usage[graph.RoadOf(r[i], r[i+1])]++
		}
	}
	return usage
}
