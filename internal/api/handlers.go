package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"roadplan/internal/loader"
	"roadplan/internal/model"
	"roadplan/internal/opt"
	"roadplan/internal/store"
)

// OptimizerConfigHandler returns the effective optimizer defaults for the tenant.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	params, err := s.baseParams(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, 500, "Optimizer config unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"defaults": paramsView(params)})
}

// Admin get/set optimizer tenant config
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/optimizer/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 500, "Load failed", err.Error(), r.URL.Path)
			return
		}
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		if err := checkConfig(body.Config); err != nil {
			writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// checkConfig accepts only known param keys whose values leave a valid Params.
func checkConfig(cfg map[string]any) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var in model.ParamsIn
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	if err := validateParams(&in); err != nil {
		return err
	}
	return loader.ApplyParams(opt.DefaultParams(), &in).Validate()
}

// PlanMetricsHandler lists optimizer run metrics, optionally for one plan.
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/plan-metrics" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	planID := r.URL.Query().Get("planId")
	// Prefer stored metrics; fallback to in-memory
	items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, planID)
	if err != nil || len(items) == 0 {
		items = []store.PlanMetrics{}
		for id, m := range opt.GetMetrics(p.Tenant, planID) {
			items = append(items, store.PlanMetrics{PlanID: id, MetricsOut: *metricsOut(m, 0)})
		}
	}
	writeJSON(w, 200, map[string]any{"items": items})
}

// Admin: webhook deliveries list
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit, err := parseLimit(r)
	if err != nil {
		writeProblem(w, 400, "Invalid limit", err.Error(), r.URL.Path)
		return
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB and broker connectivity when they are remote
	type pinger interface{ Ping(ctx context.Context) error }
	for _, dep := range []any{s.Store, s.Broker} {
		pg, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := pg.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
