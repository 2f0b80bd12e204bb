// Command plan runs the route optimizer on a problem file and prints the
// baseline and optimized assignments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"roadplan/internal/config"
	"roadplan/internal/graph"
	"roadplan/internal/loader"
	"roadplan/internal/model"
	"roadplan/internal/opt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns 0 on an optimized plan, 1 when no feasible plan exists and
// 2 on bad input.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath = fs.String("config", os.Getenv("CONFIG_FILE"), "service config whose optimizer section supplies defaults")
		in      model.ParamsIn
		budget  time.Duration
	)
	fs.Float64Var(&in.InitialTemp, "temp", 0, "initial temperature")
	fs.Float64Var(&in.CoolingRate, "cooling", 0, "cooling rate in (0,1)")
	fs.IntVar(&in.MaxIterations, "iterations", 0, "maximum iterations")
	fs.Float64Var(&in.MinTemp, "min-temp", 0, "temperature floor")
	fs.IntVar(&in.SwapsPerRoute, "swaps", 0, "swaps per route per perturbation")
	fs.Int64Var(&in.Seed, "seed", 0, "random seed; 0 derives one from the clock and the report prints it")
	fs.IntVar(&in.Trials, "trials", 0, "candidates drawn and scored per iteration, cheapest proposed")
	fs.DurationVar(&budget, "budget", 0, "wall-clock budget per run, e.g. 2s")
	fs.IntVar(&in.TraceEvery, "trace-every", 0, "record a trace point every N iterations")
	compare := fs.Bool("compare", false, "also time Dijkstra, BFS, DFS, GBFS and A* on each vehicle's start and end")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: plan [flags] <problem.yaml|problem.json|csv-dir>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	in.TimeBudgetMs = int(budget.Milliseconds())

	logger := log.New(stderr, "plan: ", 0)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Print(err)
		return 2
	}
	src, err := loader.Open(fs.Arg(0))
	if err != nil {
		logger.Print(err)
		return 2
	}
	doc, err := src.Load(ctx)
	if err != nil {
		logger.Printf("load %s: %v", src.Name(), err)
		return 2
	}
	problem, err := doc.Problem()
	if err != nil {
		logger.Printf("%s: %v", src.Name(), err)
		return 2
	}

	params := loader.ApplyParams(opt.DefaultParams(), &cfg.Optimizer)
	params = doc.Params(params)
	params = loader.ApplyParams(params, &in)
	warm := doc.Warm()
	if warm != nil {
		if err := problem.CheckWarmStart(*warm); err != nil {
			logger.Print(err)
			return 2
		}
	}

	rep, err := opt.Plan(ctx, problem, params, warm)
	if errors.Is(err, opt.ErrInvalidConfiguration) {
		logger.Print(err)
		return 2
	}
	if len(rep.Baseline.Routes) == len(problem.Vehicles) {
		if werr := opt.WriteReport(stdout, problem, rep); werr != nil {
			logger.Print(werr)
			return 2
		}
	}
	if *compare {
		h := graph.Euclidean(problem.Graph, doc.Coords())
		if werr := writeComparison(stdout, problem, graph.Algorithms(h)); werr != nil {
			logger.Print(werr)
			return 2
		}
	}
	if err != nil {
		logger.Print(err)
		return 1
	}
	return 0
}

// writeComparison prints every path search's answer for each vehicle.
func writeComparison(w io.Writer, p opt.Problem, algs []graph.Algorithm) error {
	var b strings.Builder
	fmt.Fprintln(&b, "Path search comparison (unconstrained, per vehicle):")
	for i, v := range p.Vehicles {
		label := v.ID
		if label == "" {
			label = fmt.Sprint(i + 1)
		}
		fmt.Fprintf(&b, "  Vehicle %s (%s -> %s):\n", label, v.Start, v.End)
		for _, c := range graph.Compare(p.Graph, v.Start, v.End, algs) {
			if c.Err != nil {
				fmt.Fprintf(&b, "    %-8s no path (%v)\n", c.Algorithm, c.Elapsed)
				continue
			}
			fmt.Fprintf(&b, "    %-8s %s (time %g, %v)\n", c.Algorithm, opt.Route(c.Path), c.Time, c.Elapsed)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
