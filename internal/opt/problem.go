// Package opt plans one route per vehicle over a shared road network: a
// shortest-path seed, a joint feasibility check, and a simulated-annealing
// search over the whole assignment.
package opt

import (
	"fmt"
	"math"
	"strings"

	"roadplan/internal/graph"
)

// TimeWindow is an inclusive range of acceptable total travel time.
// Max may be +Inf.
type TimeWindow struct {
	Min float64
	Max float64
}

// Unbounded accepts any non-negative travel time.
func Unbounded() TimeWindow { return TimeWindow{Min: 0, Max: math.Inf(1)} }

func (w TimeWindow) Contains(t float64) bool { return t >= w.Min && t <= w.Max }

type Vehicle struct {
	ID     string
	Start  graph.Node
	End    graph.Node
	Window TimeWindow
}

// Route is the ordered node sequence driven by one vehicle.
type Route []graph.Node

func (r Route) String() string {
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = string(n)
	}
	return strings.Join(parts, " -> ")
}

// Solution holds one route per vehicle, indexed like Problem.Vehicles.
type Solution struct {
	Routes []Route
}

// Clone deep-copies every route so the copy can be mutated freely.
func (s Solution) Clone() Solution {
	out := Solution{Routes: make([]Route, len(s.Routes))}
	for i, r := range s.Routes {
		out.Routes[i] = append(Route(nil), r...)
	}
	return out
}

type Problem struct {
	Graph    *graph.Graph
	Vehicles []Vehicle
}

// Validate rejects inputs the search cannot start from.
func (p Problem) Validate() error {
	if p.Graph == nil || p.Graph.Len() == 0 {
		return fmt.Errorf("%w: empty graph", ErrInvalidConfiguration)
	}
	if len(p.Vehicles) == 0 {
		return fmt.Errorf("%w: no vehicles", ErrInvalidConfiguration)
	}
	for i, v := range p.Vehicles {
		w := v.Window
		if math.IsNaN(w.Min) || math.IsNaN(w.Max) || w.Min < 0 || w.Max < 0 || w.Min > w.Max || math.IsInf(w.Min, 0) {
			return fmt.Errorf("%w: vehicle %d has time window [%v, %v]", ErrInvalidConfiguration, i, w.Min, w.Max)
		}
		if v.Start == "" || v.End == "" {
			return fmt.Errorf("%w: vehicle %d needs a start and an end", ErrInvalidConfiguration, i)
		}
	}
	return nil
}

// CheckWarmStart verifies that a caller-supplied solution lines up with the
// vehicles: one non-empty route each, anchored at that vehicle's start and end.
// Edge validity and the other constraints are left to Evaluate.
func (p Problem) CheckWarmStart(s Solution) error {
	if len(s.Routes) != len(p.Vehicles) {
		return fmt.Errorf("%w: %d routes for %d vehicles", ErrInvalidConfiguration, len(s.Routes), len(p.Vehicles))
	}
	for i, r := range s.Routes {
		v := p.Vehicles[i]
		if len(r) == 0 || r[0] != v.Start || r[len(r)-1] != v.End {
			return fmt.Errorf("%w: route %d must run from %s to %s", ErrInvalidConfiguration, i, v.Start, v.End)
		}
	}
	return nil
}
