package opt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	StatusOptimized   = "optimized"
	StatusUnreachable = "unreachable"
	StatusInfeasible  = "infeasible"
)

// Outcome is a constrained assignment with its per-vehicle and total times.
type Outcome struct {
	Routes []Route
	Times  []float64
	Total  float64
}

type Report struct {
	Status         string
	Baseline       BaselineResult
	Optimized      *Outcome
	ImprovementPct float64
	Metrics        Metrics
}

// Plan computes the baseline, seeds the search (from warm when non-nil,
// shortest paths otherwise) and anneals. Unreachable vehicles or an
// infeasible seed stop it before any search; the returned report still
// carries the baseline and the error says why.
func Plan(ctx context.Context, p Problem, params Params, warm *Solution) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	if err := params.Validate(); err != nil {
		return Report{}, err
	}
	rep := Report{Baseline: Baseline(p.Graph, p.Vehicles)}
	if len(rep.Baseline.Unreachable) > 0 {
		vi := rep.Baseline.Unreachable[0]
		v := p.Vehicles[vi]
		rep.Status = StatusUnreachable
		return rep, &UnreachableError{Vehicle: vi, Start: v.Start, End: v.End}
	}

	var (
		res Result
		err error
	)
	if warm != nil {
		res, err = AnnealFrom(ctx, p, *warm, params)
	} else {
		res, err = Anneal(ctx, p, params)
	}
	rep.Metrics = res.Metrics
	if err != nil {
		if errors.Is(err, ErrSeedInfeasible) {
			rep.Status = StatusInfeasible
		}
		return rep, err
	}
	rep.Status = StatusOptimized
	rep.Optimized = &Outcome{
		Routes: res.Best.Routes,
		Times:  RouteTimes(res.Best, p.Graph),
		Total:  res.BestCost,
	}
	rep.ImprovementPct = Improvement(rep.Baseline.Total, res.BestCost)
	return rep, nil
}

// WriteReport prints a plain-text summary of rep, one line per vehicle.
func WriteReport(w io.Writer, p Problem, rep Report) error {
	if len(rep.Baseline.Routes) != len(p.Vehicles) {
		return fmt.Errorf("report has %d baseline routes for %d vehicles", len(rep.Baseline.Routes), len(p.Vehicles))
	}
	var b strings.Builder
	fmt.Fprintln(&b, "Baseline (shortest paths, unconstrained):")
	for i, v := range p.Vehicles {
		fmt.Fprintf(&b, "  Vehicle %s: %s (time %s)\n", vehicleLabel(i, v), routeOrDash(rep.Baseline.Routes[i]), formatTime(rep.Baseline.Times[i]))
	}
	fmt.Fprintf(&b, "  Total: %s\n", formatTime(rep.Baseline.Total))

	if rep.Optimized == nil {
		fmt.Fprintf(&b, "No feasible solution found (%s)\n", rep.Status)
	} else {
		fmt.Fprintln(&b, "Optimized:")
		for i, v := range p.Vehicles {
			fmt.Fprintf(&b, "  Vehicle %s: %s (time %s)\n", vehicleLabel(i, v), rep.Optimized.Routes[i], formatTime(rep.Optimized.Times[i]))
		}
		fmt.Fprintf(&b, "  Total: %s\n", formatTime(rep.Optimized.Total))
		fmt.Fprintf(&b, "Improvement: %.2f%%\n", rep.ImprovementPct)
	}
	if rep.Metrics.Iterations > 0 || rep.Metrics.StopReason != "" {
		fmt.Fprintf(&b, "Search: %d iterations, %d accepted, %d improvements, stopped on %s (seed %d)\n",
			rep.Metrics.Iterations, rep.Metrics.Accepted, rep.Metrics.Improvements, rep.Metrics.StopReason, rep.Metrics.Seed)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func vehicleLabel(i int, v Vehicle) string {
	if v.ID != "" {
		return v.ID
	}
	return fmt.Sprint(i + 1)
}

func routeOrDash(r Route) string {
	if len(r) == 0 {
		return "-"
	}
	return r.String()
}

func formatTime(t float64) string {
	if math.IsInf(t, 1) {
		return "inf"
	}
	return fmt.Sprintf("%g", t)
}
