package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"roadplan/internal/graph"
)

// Stop reasons recorded in Metrics.StopReason.
const (
	StopTemperatureFloor = "temperature_floor"
	StopMaxIterations    = "max_iterations"
	StopTimeBudget       = "time_budget"
	StopCanceled         = "canceled"
	StopSeedInfeasible   = "seed_infeasible"
)

type TracePoint struct {
	Iteration   int     `json:"iteration"`
	Temp        float64 `json:"temp"`
	CurrentCost float64 `json:"currentCost"`
	BestCost    float64 `json:"bestCost"`
}

type Metrics struct {
	Seed          int64
	Iterations    int
	Accepted      int
	AcceptedWorse int
	Improvements  int
	Rejected      int
	Infeasible    int
	SeedCost      float64
	BestCost      float64
	FinalCost     float64
	FinalTemp     float64
	StopReason    string
	Trace         []TracePoint
}

type Result struct {
	Best     Solution
	BestCost float64
	Metrics  Metrics
}

// Feasible reports whether the search ended on a finite-cost solution.
func (r Result) Feasible() bool { return !math.IsInf(r.BestCost, 1) }

// Seed builds the initial solution from one shortest path per vehicle.
func Seed(p Problem) (Solution, error) {
	sol := Solution{Routes: make([]Route, len(p.Vehicles))}
	for i, v := range p.Vehicles {
		path, _, err := graph.ShortestPath(p.Graph, v.Start, v.End)
		if err != nil {
			return Solution{}, &UnreachableError{Vehicle: i, Start: v.Start, End: v.End}
		}
		sol.Routes[i] = path
	}
	return sol, nil
}

// Anneal seeds the search with shortest paths and improves on them.
func Anneal(ctx context.Context, p Problem, params Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	seed, err := Seed(p)
	if err != nil {
		return Result{}, err
	}
	return newAnnealer(p, params).run(ctx, seed)
}

// AnnealFrom runs the search from a caller-supplied solution, for example the
// routes of an earlier plan. The seed is copied, never modified.
func AnnealFrom(ctx context.Context, p Problem, seed Solution, params Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	if err := p.CheckWarmStart(seed); err != nil {
		return Result{}, err
	}
	return newAnnealer(p, params).run(ctx, seed.Clone())
}

type annealer struct {
	p      Problem
	params Params
	rng    *rand.Rand
	seed   int64
}

func newAnnealer(p Problem, params Params) *annealer {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		if seed == 0 {
			seed = 1
		}
	}
	return &annealer{p: p, params: params, rng: rand.New(rand.NewSource(seed)), seed: seed}
}

func (a *annealer) run(ctx context.Context, seed Solution) (Result, error) {
	m := Metrics{Seed: a.seed}
	curr := seed
	currCost, err := Evaluate(curr, a.p.Graph, a.p.Vehicles)
	if err != nil {
		m.SeedCost, m.BestCost, m.FinalCost = inf, inf, inf
		m.FinalTemp = a.params.InitialTemp
		m.StopReason = StopSeedInfeasible
		return Result{Best: seed, BestCost: inf, Metrics: m}, fmt.Errorf("%w: %w", ErrSeedInfeasible, err)
	}
	m.SeedCost = currCost
	best, bestCost := curr, currCost
	temp := a.params.InitialTemp

	var deadline time.Time
	if a.params.TimeBudget > 0 {
		deadline = time.Now().Add(a.params.TimeBudget)
	}
	m.StopReason = StopMaxIterations
	for it := 0; it < a.params.MaxIterations; it++ {
		if ctx.Err() != nil {
			m.StopReason = StopCanceled
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			m.StopReason = StopTimeBudget
			break
		}
		m.Iterations++

		cand, candCost := a.propose(curr)
		if math.IsInf(candCost, 1) {
			m.Infeasible++
		}
		if candCost < currCost || a.acceptWorse(currCost, candCost, temp) {
			m.Accepted++
			if candCost > currCost {
				m.AcceptedWorse++
			}
			curr, currCost = cand, candCost
			if candCost < bestCost {
				best, bestCost = cand, candCost
				m.Improvements++
			}
		} else {
			m.Rejected++
		}

		temp *= a.params.CoolingRate
		if a.params.TraceEvery > 0 && m.Iterations%a.params.TraceEvery == 0 {
			tp := TracePoint{Iteration: m.Iterations, Temp: temp, CurrentCost: currCost, BestCost: bestCost}
			m.Trace = append(m.Trace, tp)
			if a.params.Observer != nil {
				a.params.Observer(tp)
			}
		}
		if temp < a.params.MinTemp {
			m.StopReason = StopTemperatureFloor
			break
		}
	}
	m.BestCost = bestCost
	m.FinalCost = currCost
	m.FinalTemp = temp
	return Result{Best: best, BestCost: bestCost, Metrics: m}, nil
}

// acceptWorse is the Metropolis draw for a candidate that is not strictly
// better. An infinite candidate is always rejected, which also covers the
// case where both costs are infinite.
func (a *annealer) acceptWorse(curr, cand, temp float64) bool {
	if math.IsInf(cand, 1) || math.IsNaN(cand) {
		return false
	}
	return a.rng.Float64() < math.Exp((curr-cand)/temp)
}

// propose draws Trials perturbations of curr and returns the cheapest.
// Perturbations are drawn in order from the single rng; only scoring runs
// concurrently, so results depend on the seed alone.
func (a *annealer) propose(curr Solution) (Solution, float64) {
	if a.params.Trials <= 1 {
		cand := a.perturb(curr.Clone())
		return cand, a.score(cand)
	}
	cands := make([]Solution, a.params.Trials)
	for i := range cands {
		cands[i] = a.perturb(curr.Clone())
	}
	costs := make([]float64, len(cands))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range cands {
		i := i
		g.Go(func() error {
			costs[i] = a.score(cands[i])
			return nil
		})
	}
	_ = g.Wait()

	bi := 0
	for i := 1; i < len(costs); i++ {
		if costs[i] < costs[bi] {
			bi = i
		}
	}
	return cands[bi], costs[bi]
}

func (a *annealer) score(s Solution) float64 {
	c, err := Evaluate(s, a.p.Graph, a.p.Vehicles)
	if err != nil {
		return inf
	}
	return c
}

// perturb swaps interior nodes in place. Routes with fewer than two interior
// nodes are left alone.
func (a *annealer) perturb(s Solution) Solution {
	for _, r := range s.Routes {
		for k := 0; k < a.params.SwapsPerRoute; k++ {
			i, j, ok := interiorPair(len(r), a.rng)
			if !ok {
				break
			}
			r[i], r[j] = r[j], r[i]
		}
	}
	return s
}

// interiorPair picks two distinct positions in [1, n-2] uniformly.
func interiorPair(n int, rng *rand.Rand) (int, int, bool) {
	interior := n - 2
	if interior < 2 {
		return 0, 0, false
	}
	i := 1 + rng.Intn(interior)
	j := 1 + rng.Intn(interior-1)
	if j >= i {
		j++
	}
	return i, j, true
}
