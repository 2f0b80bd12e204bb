package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadplan/internal/config"
	"roadplan/internal/metrics"
	"roadplan/internal/model"
	"roadplan/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateRPS = 0
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func cityEdges(abCapacity int) []map[string]any {
	return []map[string]any{
		{"from": "A", "to": "B", "time": 5, "capacity": abCapacity},
		{"from": "B", "to": "A", "time": 5, "capacity": abCapacity},
		{"from": "A", "to": "C", "time": 10, "capacity": 3},
		{"from": "C", "to": "A", "time": 10, "capacity": 3},
		{"from": "B", "to": "D", "time": 15, "capacity": 2},
		{"from": "D", "to": "B", "time": 15, "capacity": 2},
		{"from": "C", "to": "D", "time": 20, "capacity": 1},
		{"from": "D", "to": "C", "time": 20, "capacity": 1},
	}
}

func cityRequest() map[string]any {
	return map[string]any{
		"name":  "city",
		"edges": cityEdges(2),
		"vehicles": []map[string]any{
			{"id": "v1", "start": "A", "end": "D", "timeWindow": map[string]any{"min": 0, "max": 30}},
			{"id": "v2", "start": "B", "end": "C", "timeWindow": map[string]any{"min": 0, "max": 25}},
			{"id": "v3", "start": "C", "end": "A", "timeWindow": map[string]any{"min": 0, "max": 35}},
		},
		"params": map[string]any{"seed": 7},
	}
}

func do(t *testing.T, s *Server, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	return rr
}

var admin = map[string]string{"X-Tenant-Id": "t_test", "X-Role": "admin"}

func decodePlan(t *testing.T, rr *httptest.ResponseRecorder) model.PlanOut {
	t.Helper()
	var p model.PlanOut
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p), rr.Body.String())
	return p
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestReadyWithSQLiteStore(t *testing.T) {
	cfg := config.Default()
	cfg.Server.DatabaseURL = "sqlite://" + t.TempDir() + "/plans.db"
	off := false
	cfg.Server.Migrate = &off
	s, err := NewServer(cfg)
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.Store.(*store.SQL)
	require.True(t, ok)

	rr := do(t, s, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, 200, rr.Code)

	rr = do(t, s, http.MethodPost, "/v1/plans", cityRequest(), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	id := decodePlan(t, rr).ID
	rr = do(t, s, http.MethodGet, "/v1/plans/"+id, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.PlanOptimized, decodePlan(t, rr).Status)
}

func TestCreatePlanSync(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s, http.MethodPost, "/v1/plans", cityRequest(), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p := decodePlan(t, rr)
	assert.Equal(t, model.PlanOptimized, p.Status)
	assert.Equal(t, "t_demo", p.TenantID)
	require.NotNil(t, p.Optimized)
	assert.Equal(t, 45.0, *p.Optimized.TotalTime)
	require.NotNil(t, p.Baseline)
	assert.Equal(t, 45.0, *p.Baseline.TotalTime)
	assert.Equal(t, []string{"A", "B", "D"}, p.Baseline.Routes[0].Nodes)
	assert.Equal(t, "v1", p.Optimized.Routes[0].VehicleID)
	assert.Equal(t, 0.0, p.ImprovementPct)
	require.NotNil(t, p.Metrics)
	assert.Equal(t, int64(7), p.Metrics.Seed)
	assert.Equal(t, "temperature_floor", p.Metrics.StopReason)
	assert.Equal(t, 225, p.Metrics.Iterations)

	rr = do(t, s, http.MethodGet, "/v1/plans/"+p.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, p.ID, decodePlan(t, rr).ID)

	// other tenants cannot see it
	rr = do(t, s, http.MethodGet, "/v1/plans/"+p.ID, nil, map[string]string{"X-Tenant-Id": "t_other"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreatePlanUnreachable(t *testing.T) {
	s := newTestServer(t)
	req := cityRequest()
	req["vehicles"] = []map[string]any{{"start": "A", "end": "D"}, {"start": "A", "end": "Z"}}
	rr := do(t, s, http.MethodPost, "/v1/plans", req, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var pr Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pr))
	require.NotNil(t, pr.Plan)
	assert.Equal(t, model.PlanUnreachable, pr.Plan.Status)
	require.NotNil(t, pr.Plan.Baseline)
	assert.Nil(t, pr.Plan.Baseline.TotalTime)
	assert.Equal(t, []int{1}, pr.Plan.Baseline.Unreachable)
	assert.Nil(t, pr.Plan.Optimized)
	assert.Contains(t, rr.Body.String(), `"totalTime":null`)
}

func TestCreatePlanInfeasibleSeed(t *testing.T) {
	s := newTestServer(t)
	req := cityRequest()
	req["edges"] = cityEdges(1)
	rr := do(t, s, http.MethodPost, "/v1/plans", req, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	var pr Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pr))
	require.NotNil(t, pr.Plan)
	assert.Equal(t, model.PlanInfeasible, pr.Plan.Status)
	assert.Contains(t, pr.Detail, "capacity")
	require.NotNil(t, pr.Plan.Metrics)
	assert.Equal(t, "seed_infeasible", pr.Plan.Metrics.StopReason)
	assert.Nil(t, pr.Plan.Metrics.BestCost)
}

func TestCreatePlanInvalid(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]func(map[string]any){
		"no edges":      func(r map[string]any) { r["edges"] = []any{} },
		"bad cooling":   func(r map[string]any) { r["params"] = map[string]any{"coolingRate": 1.5} },
		"negative time": func(r map[string]any) { r["edges"] = []map[string]any{{"from": "A", "to": "B", "time": -1, "capacity": 1}} },
		"unknown field": func(r map[string]any) { r["algorithm"] = "alns" },
		"bad callback":  func(r map[string]any) { r["callbackUrl"] = "ftp://x" },
		"warm mismatch": func(r map[string]any) { r["initialRoutes"] = [][]string{{"A", "D"}, {"B", "C"}, {"C", "A"}} },
		"too few warm":  func(r map[string]any) { r["initialRoutes"] = [][]string{{"A", "B", "D"}} },
		"iteration cap": func(r map[string]any) { r["params"] = map[string]any{"maxIterations": 2_000_000_000} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := cityRequest()
			mutate(req)
			rr := do(t, s, http.MethodPost, "/v1/plans", req, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}

	rr := do(t, s, http.MethodPost, "/v1/plans", cityRequest(), map[string]string{"X-Role": "viewer"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, s, http.MethodDelete, "/v1/plans", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAsyncPlanAndList(t *testing.T) {
	s := newTestServer(t)
	req := cityRequest()
	req["async"] = true
	rr := do(t, s, http.MethodPost, "/v1/plans", req, admin)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	p := decodePlan(t, rr)
	assert.Equal(t, model.PlanPending, p.Status)
	assert.Equal(t, "/v1/plans/"+p.ID, rr.Header().Get("Location"))

	s.Wait()
	rr = do(t, s, http.MethodGet, "/v1/plans/"+p.ID, nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	done := decodePlan(t, rr)
	assert.Equal(t, model.PlanOptimized, done.Status)
	assert.Equal(t, 45.0, *done.Optimized.TotalTime)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/plans", cityRequest(), admin).Code)
	}
	rr = do(t, s, http.MethodGet, "/v1/plans?limit=2", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Items      []model.PlanOut `json:"items"`
		NextCursor string          `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
	assert.Nil(t, page.Items[0].Request)

	rr = do(t, s, http.MethodGet, "/v1/plans?limit=2&cursor="+page.NextCursor, nil, admin)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)

	for _, bad := range []string{"abc", "-1", "0", "2.5"} {
		rr = do(t, s, http.MethodGet, "/v1/plans?limit="+bad, nil, admin)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", bad)
	}
	rr = do(t, s, http.MethodGet, "/v1/admin/webhook-deliveries?limit=abc", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCloseStopsAsyncPlans(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateRPS = 0
	s, err := NewServer(cfg)
	require.NoError(t, err)

	req := cityRequest()
	req["async"] = true
	// cools so slowly that only the iteration cap would end it
	req["params"] = map[string]any{"seed": 7, "coolingRate": 0.999999999, "maxIterations": 10_000_000, "traceEvery": 1_000_000}
	rr := do(t, s, http.MethodPost, "/v1/plans", req, nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	id := decodePlan(t, rr).ID

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return while an async plan was running")
	}

	plan, err := s.Store.GetPlan(context.Background(), "t_demo", id)
	require.NoError(t, err)
	require.NotNil(t, plan.Metrics)
	assert.Equal(t, "canceled", plan.Metrics.StopReason)
	assert.Less(t, plan.Metrics.Iterations, 10_000_000)
	require.NotNil(t, plan.Optimized)
	assert.Equal(t, 45.0, *plan.Optimized.TotalTime)
}

func TestReoptimize(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s, http.MethodPost, "/v1/plans", cityRequest(), admin)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decodePlan(t, rr)

	rr = do(t, s, http.MethodPost, "/v1/plans/"+first.ID+"/reoptimize", map[string]any{"params": map[string]any{"seed": 11, "maxIterations": 50}}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decodePlan(t, rr)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, model.PlanOptimized, second.Status)
	assert.LessOrEqual(t, *second.Optimized.TotalTime, *first.Optimized.TotalTime)
	require.NotNil(t, second.Request)
	assert.Len(t, second.Request.InitialRoutes, 3)
	assert.Equal(t, 50, second.Metrics.Iterations)
	assert.Equal(t, "max_iterations", second.Metrics.StopReason)

	rr = do(t, s, http.MethodPost, "/v1/plans/missing/reoptimize", nil, admin)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// an unreachable plan has nothing to warm-start from
	req := cityRequest()
	req["vehicles"] = []map[string]any{{"start": "A", "end": "Z"}}
	rr = do(t, s, http.MethodPost, "/v1/plans", req, admin)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var pr Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pr))
	rr = do(t, s, http.MethodPost, "/v1/plans/"+pr.Plan.ID+"/reoptimize", nil, admin)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestOptimizerConfig(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s, http.MethodGet, "/v1/optimizer/config", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Defaults model.ParamsIn `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 0.95, got.Defaults.CoolingRate)
	assert.Equal(t, 1000, got.Defaults.MaxIterations)

	rr = do(t, s, http.MethodPut, "/v1/admin/optimizer/config", map[string]any{"config": map[string]any{"coolingRate": 0.9, "maxIterations": 10}}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/v1/optimizer/config", nil, admin)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 0.9, got.Defaults.CoolingRate)

	// tenant overrides apply to new plans
	rr = do(t, s, http.MethodPost, "/v1/plans", cityRequest(), admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 10, decodePlan(t, rr).Metrics.Iterations)

	rr = do(t, s, http.MethodPut, "/v1/admin/optimizer/config", map[string]any{"config": map[string]any{"coolingRate": 2}}, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, s, http.MethodPut, "/v1/admin/optimizer/config", map[string]any{"config": map[string]any{"objectives": 1}}, admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, s, http.MethodGet, "/v1/admin/optimizer/config", nil, map[string]string{"X-Tenant-Id": "t_test"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, s, http.MethodGet, "/v1/admin/optimizer/config", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"coolingRate":0.9`)
}

func TestPlanMetricsAndWebhooks(t *testing.T) {
	s := newTestServer(t)
	req := cityRequest()
	req["callbackUrl"] = "http://example.invalid/hook"
	rr := do(t, s, http.MethodPost, "/v1/plans", req, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	id := decodePlan(t, rr).ID

	rr = do(t, s, http.MethodGet, "/v1/admin/plan-metrics?planId="+id, nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var mx struct {
		Items []store.PlanMetrics `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mx))
	require.Len(t, mx.Items, 1)
	assert.Equal(t, id, mx.Items[0].PlanID)
	assert.Equal(t, 225, mx.Items[0].Iterations)

	rr = do(t, s, http.MethodGet, "/v1/admin/webhook-deliveries", nil, admin)
	require.Equal(t, http.StatusOK, rr.Code)
	var dl struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dl))
	require.Len(t, dl.Items, 1)
	assert.Equal(t, "plan.completed", dl.Items[0]["eventType"])
	assert.Equal(t, "pending", dl.Items[0]["status"])
}

func TestRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateRPS = 0.001
	cfg.Server.RateBurst = 1
	s, err := NewServer(cfg)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/plans", cityRequest(), nil).Code)
	rr := do(t, s, http.MethodPost, "/v1/plans", cityRequest(), nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	// labelled by route, never by the client-supplied tenant header
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.RateLimited.WithLabelValues("/v1/plans")), 1.0)
	rr = do(t, s, http.MethodPost, "/v1/plans", cityRequest(), map[string]string{"X-Tenant-Id": "t_demo"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotContains(t, body(t, s, "/metrics"), `rate_limited_total{tenant=`)
	// reads are not limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/plans", nil, nil).Code)
}

func TestMetricsDocsDebug(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/plans", cityRequest(), nil).Code)

	rr := do(t, s, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "plans_total")
	assert.Contains(t, body, `path="/v1/plans"`)

	rr = do(t, s, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])

	rr = do(t, s, http.MethodGet, "/debug/vars", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `"build"`))
}

func TestPathLabel(t *testing.T) {
	assert.Equal(t, "/v1/plans", pathLabel("/v1/plans"))
	assert.Equal(t, "/v1/plans/{id}", pathLabel("/v1/plans/abc"))
	assert.Equal(t, "/v1/plans/{id}/events/ws", pathLabel("/v1/plans/abc/events/ws"))
	assert.Equal(t, "/healthz", pathLabel("/healthz"))
}

func body(t *testing.T, s *Server, path string) string {
	t.Helper()
	rr := do(t, s, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}
