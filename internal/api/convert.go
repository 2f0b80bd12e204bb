package api

import (
	"encoding/json"
	"math"
	"time"

	"roadplan/internal/loader"
	"roadplan/internal/model"
	"roadplan/internal/opt"
)

// finite returns nil for +-Inf and NaN; JSON has no representation for them.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func routeOut(p opt.Problem, i int, r opt.Route, t float64) model.RouteOut {
	nodes := make([]string, len(r))
	for j, n := range r {
		nodes[j] = string(n)
	}
	return model.RouteOut{VehicleID: p.Vehicles[i].ID, Nodes: nodes, Time: finite(t)}
}

func baselineOut(p opt.Problem, b opt.BaselineResult) *model.Baseline {
	out := &model.Baseline{Assignment: model.Assignment{TotalTime: finite(b.Total)}, Unreachable: b.Unreachable}
	for i := range b.Routes {
		out.Routes = append(out.Routes, routeOut(p, i, b.Routes[i], b.Times[i]))
	}
	return out
}

func outcomeOut(p opt.Problem, o *opt.Outcome) *model.Assignment {
	if o == nil {
		return nil
	}
	out := &model.Assignment{TotalTime: finite(o.Total)}
	for i := range o.Routes {
		out.Routes = append(out.Routes, routeOut(p, i, o.Routes[i], o.Times[i]))
	}
	return out
}

func metricsOut(m opt.Metrics, dur time.Duration) *model.MetricsOut {
	out := &model.MetricsOut{
		Seed:          m.Seed,
		Iterations:    m.Iterations,
		Accepted:      m.Accepted,
		AcceptedWorse: m.AcceptedWorse,
		Improvements:  m.Improvements,
		Rejected:      m.Rejected,
		Infeasible:    m.Infeasible,
		SeedCost:      finite(m.SeedCost),
		BestCost:      finite(m.BestCost),
		FinalCost:     finite(m.FinalCost),
		FinalTemp:     m.FinalTemp,
		StopReason:    m.StopReason,
		DurationMs:    dur.Milliseconds(),
	}
	for _, tp := range m.Trace {
		out.Trace = append(out.Trace, tracePointOut(tp))
	}
	return out
}

func tracePointOut(tp opt.TracePoint) model.TracePoint {
	return model.TracePoint{
		Iteration:   tp.Iteration,
		Temp:        tp.Temp,
		CurrentCost: finite(tp.CurrentCost),
		BestCost:    finite(tp.BestCost),
	}
}

// applyReport copies a finished run into the stored plan.
func applyReport(plan *model.PlanOut, p opt.Problem, rep opt.Report, dur time.Duration) {
	if len(rep.Baseline.Routes) == len(p.Vehicles) {
		plan.Baseline = baselineOut(p, rep.Baseline)
	}
	plan.Optimized = outcomeOut(p, rep.Optimized)
	plan.ImprovementPct = rep.ImprovementPct
	if rep.Metrics.StopReason != "" {
		plan.Metrics = metricsOut(rep.Metrics, dur)
	}
}

// paramsView is the wire form of effective optimizer params.
func paramsView(p opt.Params) model.ParamsIn {
	return model.ParamsIn{
		InitialTemp:   p.InitialTemp,
		CoolingRate:   p.CoolingRate,
		MaxIterations: p.MaxIterations,
		MinTemp:       p.MinTemp,
		SwapsPerRoute: p.SwapsPerRoute,
		Seed:          p.Seed,
		Trials:        p.Trials,
		TimeBudgetMs:  int(p.TimeBudget.Milliseconds()),
		TraceEvery:    p.TraceEvery,
	}
}

// paramsFromConfig decodes a stored tenant config map into params overrides.
func paramsFromConfig(cfg map[string]any) (*model.ParamsIn, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var in model.ParamsIn
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// warmFromPlan rebuilds a solution from a stored plan's optimized routes.
func warmFromPlan(plan model.PlanOut) *opt.Solution {
	if plan.Optimized == nil {
		return nil
	}
	routes := make([][]string, len(plan.Optimized.Routes))
	for i, r := range plan.Optimized.Routes {
		routes[i] = r.Nodes
	}
	return loader.WarmSolution(routes)
}
