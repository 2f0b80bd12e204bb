package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"roadplan/internal/model"
)

const (
	maxEdges    = 100000
	maxVehicles = 1000
	maxTrials   = 64

	// maxIterations bounds one run; longer searches should set timeBudgetMs.
	maxIterations = 10_000_000
)

func validatePlanRequest(req *model.PlanRequest) error {
	if len(req.Edges) == 0 {
		return fmt.Errorf("edges must not be empty")
	}
	if len(req.Edges) > maxEdges {
		return fmt.Errorf("at most %d edges allowed", maxEdges)
	}
	if len(req.Vehicles) == 0 {
		return fmt.Errorf("vehicles must not be empty")
	}
	if len(req.Vehicles) > maxVehicles {
		return fmt.Errorf("at most %d vehicles allowed", maxVehicles)
	}
	for i, v := range req.Vehicles {
		if v.Start == "" || v.End == "" {
			return fmt.Errorf("vehicle %d needs start and end", i)
		}
		if tw := v.TimeWindow; tw != nil && tw.Max != nil && *tw.Max < tw.Min {
			return fmt.Errorf("vehicle %d time window max < min", i)
		}
	}
	if len(req.InitialRoutes) > 0 && len(req.InitialRoutes) != len(req.Vehicles) {
		return fmt.Errorf("initialRoutes must have one route per vehicle")
	}
	if err := validateParams(req.Params); err != nil {
		return err
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
		}
	}
	return nil
}

// validateParams checks the ranges a request may set; zero means default.
func validateParams(p *model.ParamsIn) error {
	if p == nil {
		return nil
	}
	if p.InitialTemp < 0 {
		return fmt.Errorf("initialTemp must be > 0")
	}
	if p.CoolingRate != 0 && (p.CoolingRate <= 0 || p.CoolingRate >= 1) {
		return fmt.Errorf("coolingRate must be in (0,1)")
	}
	if p.MaxIterations < 0 || p.MaxIterations > maxIterations {
		return fmt.Errorf("maxIterations must be in [0,%d]", maxIterations)
	}
	if p.MinTemp < 0 {
		return fmt.Errorf("minTemp must be > 0")
	}
	if p.SwapsPerRoute < 0 {
		return fmt.Errorf("swapsPerRoute must be >= 1")
	}
	if p.Trials < 0 || p.Trials > maxTrials {
		return fmt.Errorf("trials must be in [1,%d]", maxTrials)
	}
	if p.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if p.TraceEvery < 0 {
		return fmt.Errorf("traceEvery must be >= 0")
	}
	return nil
}

// parseLimit reads the optional ?limit= page size; absent means 100.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", v)
	}
	return n, nil
}
