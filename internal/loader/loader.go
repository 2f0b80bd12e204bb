// Package loader reads problem documents from files and turns them into
// optimizer input.
package loader

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"roadplan/internal/graph"
	"roadplan/internal/model"
	"roadplan/internal/opt"
)

// Source produces a problem document. File and CSV are the two built in.
type Source interface {
	Name() string
	Load(ctx context.Context) (Document, error)
}

// Document is the on-disk form of a planning problem.
type Document struct {
	Edges         []model.EdgeIn    `json:"edges" yaml:"edges"`
	Vehicles      []model.VehicleIn `json:"vehicles" yaml:"vehicles"`
	Nodes         []model.NodeIn    `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Optimizer     *model.ParamsIn   `json:"optimizer,omitempty" yaml:"optimizer,omitempty"`
	InitialRoutes [][]string        `json:"initialRoutes,omitempty" yaml:"initialRoutes,omitempty"`
}

func (d Document) Problem() (opt.Problem, error) {
	return BuildProblem(d.Edges, d.Vehicles)
}

// Params overlays the document's optimizer section on base.
func (d Document) Params(base opt.Params) opt.Params {
	return ApplyParams(base, d.Optimizer)
}

func (d Document) Warm() *opt.Solution {
	return WarmSolution(d.InitialRoutes)
}

// Coords returns the node positions, or nil when the document has none.
func (d Document) Coords() map[graph.Node]graph.Point {
	if len(d.Nodes) == 0 {
		return nil
	}
	out := make(map[graph.Node]graph.Point, len(d.Nodes))
	for _, n := range d.Nodes {
		out[graph.Node(n.ID)] = graph.Point{X: n.X, Y: n.Y}
	}
	return out
}

// Open picks a source for path: a directory holding edges.csv,
// vehicles.csv and optionally nodes.csv is read as CSV, anything else as a
// YAML/JSON file.
func Open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return CSV{
			EdgesPath:    filepath.Join(path, "edges.csv"),
			VehiclesPath: filepath.Join(path, "vehicles.csv"),
			NodesPath:    filepath.Join(path, "nodes.csv"),
		}, nil
	}
	return File{Path: path}, nil
}

// BuildProblem converts wire edges and vehicles into a validated problem.
func BuildProblem(edges []model.EdgeIn, vehicles []model.VehicleIn) (opt.Problem, error) {
	ge := make([]graph.Edge, len(edges))
	for i, e := range edges {
		ge[i] = graph.Edge{From: graph.Node(e.From), To: graph.Node(e.To), Time: e.Time, Capacity: e.Capacity}
	}
	g, err := graph.New(ge)
	if err != nil {
		return opt.Problem{}, fmt.Errorf("%w: %w", opt.ErrInvalidConfiguration, err)
	}
	p := opt.Problem{Graph: g, Vehicles: make([]opt.Vehicle, len(vehicles))}
	for i, v := range vehicles {
		w := opt.Unbounded()
		if v.TimeWindow != nil {
			w.Min = v.TimeWindow.Min
			if v.TimeWindow.Max != nil {
				w.Max = *v.TimeWindow.Max
			}
		}
		p.Vehicles[i] = opt.Vehicle{ID: v.ID, Start: graph.Node(v.Start), End: graph.Node(v.End), Window: w}
	}
	if err := p.Validate(); err != nil {
		return opt.Problem{}, err
	}
	return p, nil
}

// ApplyParams copies the non-zero fields of in over base.
func ApplyParams(base opt.Params, in *model.ParamsIn) opt.Params {
	if in == nil {
		return base
	}
	if in.InitialTemp != 0 {
		base.InitialTemp = in.InitialTemp
	}
	if in.CoolingRate != 0 {
		base.CoolingRate = in.CoolingRate
	}
	if in.MaxIterations != 0 {
		base.MaxIterations = in.MaxIterations
	}
	if in.MinTemp != 0 {
		base.MinTemp = in.MinTemp
	}
	if in.SwapsPerRoute != 0 {
		base.SwapsPerRoute = in.SwapsPerRoute
	}
	if in.Seed != 0 {
		base.Seed = in.Seed
	}
	if in.Trials != 0 {
		base.Trials = in.Trials
	}
	if in.TimeBudgetMs != 0 {
		base.TimeBudget = msDuration(in.TimeBudgetMs)
	}
	if in.TraceEvery != 0 {
		base.TraceEvery = in.TraceEvery
	}
	return base
}

// WarmSolution returns nil for no routes.
func WarmSolution(routes [][]string) *opt.Solution {
	if len(routes) == 0 {
		return nil
	}
	sol := &opt.Solution{Routes: make([]opt.Route, len(routes))}
	for i, r := range routes {
		rt := make(opt.Route, len(r))
		for j, n := range r {
			rt[j] = graph.Node(n)
		}
		sol.Routes[i] = rt
	}
	return sol
}

// MaxOrNil is the wire form of a window bound: nil for +Inf.
func MaxOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
