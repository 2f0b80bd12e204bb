package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"roadplan/internal/loader"
	"roadplan/internal/metrics"
	"roadplan/internal/model"
	"roadplan/internal/opt"
	"roadplan/internal/store"
	"roadplan/internal/webhooks"
)

// PlansHandler handles POST /v1/plans (submit) and GET /v1/plans (list).
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/plans" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	switch r.Method {
	case http.MethodPost:
		if !p.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		if !s.limitTenant(w, r, p.Tenant) {
			return
		}
		var req model.PlanRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = p.Tenant
		s.submit(w, r, req, loader.WarmSolution(req.InitialRoutes))
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit, err := parseLimit(r)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path)
			return
		}
		items, next, err := s.Store.ListPlans(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
			return
		}
		for i := range items {
			items[i].Request = nil
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// PlanByIDHandler handles GET /v1/plans/{id}, POST /v1/plans/{id}/reoptimize
// and GET /v1/plans/{id}/events/ws.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/plans/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	p := s.getPrincipal(r)
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		plan, err := s.Store.GetPlan(r.Context(), p.Tenant, id)
		if err != nil {
			s.storeProblem(w, r, "Plan not found", err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	case len(parts) == 2 && parts[1] == "reoptimize":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.CanPlan() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", path)
			return
		}
		if !s.limitTenant(w, r, p.Tenant) {
			return
		}
		s.reoptimize(w, r, p.Tenant, id)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "ws":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.planEventsWS(w, r, p.Tenant, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// reoptimizeRequest is the optional body of POST /v1/plans/{id}/reoptimize.
type reoptimizeRequest struct {
	Params      *model.ParamsIn `json:"params,omitempty"`
	CallbackURL string          `json:"callbackUrl,omitempty"`
	Async       bool            `json:"async,omitempty"`
}

// reoptimize runs a new plan over the same problem, warm-started from the
// stored plan's optimized routes.
func (s *Server) reoptimize(w http.ResponseWriter, r *http.Request, tenant, id string) {
	var body reoptimizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	prev, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		s.storeProblem(w, r, "Plan not found", err)
		return
	}
	warm := warmFromPlan(prev)
	if prev.Request == nil || warm == nil {
		writeProblem(w, http.StatusConflict, "Plan not reoptimizable", "plan "+id+" has no optimized routes", r.URL.Path)
		return
	}
	req := *prev.Request
	req.TenantID = tenant
	req.Async = body.Async
	req.CallbackURL = body.CallbackURL
	if body.Params != nil {
		req.Params = body.Params
	}
	req.InitialRoutes = make([][]string, len(prev.Optimized.Routes))
	for i, rt := range prev.Optimized.Routes {
		req.InitialRoutes[i] = rt.Nodes
	}
	s.submit(w, r, req, warm)
}

// submit validates a request, then runs it inline or in the background.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, req model.PlanRequest, warm *opt.Solution) {
	if err := validatePlanRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	problem, err := loader.BuildProblem(req.Edges, req.Vehicles)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
		return
	}
	if warm != nil {
		if err := problem.CheckWarmStart(*warm); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid initial routes", err.Error(), r.URL.Path)
			return
		}
	}
	base, err := s.baseParams(r.Context(), req.TenantID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Optimizer config unavailable", err.Error(), r.URL.Path)
		return
	}
	params := loader.ApplyParams(base, req.Params)
	if err := params.Validate(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimizer params", err.Error(), r.URL.Path)
		return
	}

	plan := model.PlanOut{
		ID:        uuid.New().String(),
		TenantID:  req.TenantID,
		Name:      req.Name,
		Status:    model.PlanPending,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Request:   &req,
	}
	if req.Async {
		if err := s.Store.SavePlan(r.Context(), plan); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
			return
		}
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			s.execute(s.ctx, plan, problem, params, warm)
		}()
		w.Header().Set("Location", "/v1/plans/"+plan.ID)
		writeJSON(w, http.StatusAccepted, plan)
		return
	}

	out := s.execute(r.Context(), plan, problem, params, warm)
	switch out.Status {
	case model.PlanOptimized:
		writeJSON(w, http.StatusOK, out)
	case model.PlanUnreachable:
		writeProblemJSON(w, Problem{Type: "about:blank", Title: "Vehicle unreachable", Status: http.StatusUnprocessableEntity, Detail: out.Error, Instance: r.URL.Path, Plan: &out})
	case model.PlanInfeasible:
		writeProblemJSON(w, Problem{Type: "about:blank", Title: "No feasible assignment", Status: http.StatusUnprocessableEntity, Detail: out.Error, Instance: r.URL.Path, Plan: &out})
	default:
		writeProblemJSON(w, Problem{Type: "about:blank", Title: "Plan failed", Status: http.StatusInternalServerError, Detail: out.Error, Instance: r.URL.Path, Plan: &out})
	}
}

// execute runs one plan to completion, persisting and announcing each step.
func (s *Server) execute(ctx context.Context, plan model.PlanOut, problem opt.Problem, params opt.Params, warm *opt.Solution) model.PlanOut {
	plan.Status = model.PlanRunning
	s.save(ctx, plan)
	s.Broker.Publish(plan.ID, Event{Type: EventStarted, Data: map[string]any{"planId": plan.ID, "status": plan.Status}})

	params.Observer = func(tp opt.TracePoint) {
		s.Broker.Publish(plan.ID, Event{Type: EventProgress, Data: map[string]any{
			"planId":      plan.ID,
			"iteration":   tp.Iteration,
			"temp":        tp.Temp,
			"currentCost": finite(tp.CurrentCost),
			"bestCost":    finite(tp.BestCost),
		}})
	}
	start := time.Now()
	rep, err := opt.Plan(ctx, problem, params, warm)
	dur := time.Since(start)

	applyReport(&plan, problem, rep, dur)
	switch {
	case err == nil:
		plan.Status = model.PlanOptimized
	case rep.Status == opt.StatusUnreachable:
		plan.Status = model.PlanUnreachable
	case rep.Status == opt.StatusInfeasible:
		plan.Status = model.PlanInfeasible
	default:
		plan.Status = model.PlanFailed
	}
	if err != nil {
		plan.Error = err.Error()
	}

	if plan.Metrics != nil {
		opt.RecordMetrics(plan.TenantID, plan.ID, rep.Metrics)
		if err := s.Store.SavePlanMetrics(context.WithoutCancel(ctx), plan.TenantID, plan.ID, *plan.Metrics); err != nil {
			log.Printf("plan %s: save metrics: %v", plan.ID, err)
		}
	}
	metrics.ObserveRun(plan.Status, dur.Seconds(), rep.Metrics.Iterations, plan.ImprovementPct,
		rep.Metrics.Accepted, rep.Metrics.AcceptedWorse, rep.Metrics.Rejected, rep.Metrics.Infeasible)
	s.save(ctx, plan)

	data := map[string]any{"planId": plan.ID, "status": plan.Status, "improvementPct": plan.ImprovementPct}
	evt, hook := EventCompleted, webhooks.EventPlanCompleted
	if plan.Status != model.PlanOptimized {
		evt, hook = EventFailed, webhooks.EventPlanFailed
		data["error"] = plan.Error
	} else {
		data["totalTime"] = plan.Optimized.TotalTime
	}
	s.Broker.Publish(plan.ID, Event{Type: evt, Data: data})
	if plan.Request != nil && plan.Request.CallbackURL != "" {
		if _, err := s.Pub.Emit(context.WithoutCancel(ctx), plan.TenantID, hook, plan.Request.CallbackURL, data); err != nil {
			log.Printf("plan %s: enqueue webhook: %v", plan.ID, err)
		}
	}
	log.Printf("plan %s tenant=%s status=%s iterations=%d stop=%s improvement=%.2f%% in %v",
		plan.ID, plan.TenantID, plan.Status, rep.Metrics.Iterations, rep.Metrics.StopReason, plan.ImprovementPct, dur)
	return plan
}

// save persists plan even when the request context is gone.
func (s *Server) save(ctx context.Context, plan model.PlanOut) {
	if err := s.Store.SavePlan(context.WithoutCancel(ctx), plan); err != nil {
		log.Printf("plan %s: save: %v", plan.ID, err)
	}
}

func (s *Server) storeProblem(w http.ResponseWriter, r *http.Request, title string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, title, err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
}
