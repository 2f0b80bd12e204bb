package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Plans counts finished plans by status
	Plans = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plans_total", Help: "Plans by final status."},
		[]string{"status"},
	)
	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "Wall time of one optimizer run.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 10)},
	)
	PlanIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_iterations", Help: "Annealing iterations per run.", Buckets: []float64{10, 50, 100, 225, 500, 1000, 5000, 20000}},
	)
	// PlanImprovement is the percentage saved over the shortest-path baseline
	PlanImprovement = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_improvement_percent", Help: "Improvement over baseline in percent.", Buckets: []float64{0, 1, 5, 10, 25, 50}},
	)
	// Candidates counts proposed moves by outcome (accepted, accepted_worse, rejected, infeasible)
	Candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_candidates_total", Help: "Annealing candidates by outcome."},
		[]string{"outcome"},
	)
	// RateLimited counts requests rejected by the per-tenant limiter, by route.
	// Tenant ids come from a client header, so they are kept out of the labels.
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rate_limited_total", Help: "Requests rejected by the rate limiter."},
		[]string{"path"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the API registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Plans, PlanDuration, PlanIterations, PlanImprovement, Candidates, RateLimited)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveRun records one finished optimizer run.
func ObserveRun(status string, seconds float64, iterations int, improvementPct float64, accepted, acceptedWorse, rejected, infeasible int) {
	Plans.WithLabelValues(status).Inc()
	PlanDuration.Observe(seconds)
	if iterations > 0 {
		PlanIterations.Observe(float64(iterations))
	}
	PlanImprovement.Observe(improvementPct)
	// accepted includes accepted_worse
	Candidates.WithLabelValues("accepted").Add(float64(accepted - acceptedWorse))
	Candidates.WithLabelValues("accepted_worse").Add(float64(acceptedWorse))
	Candidates.WithLabelValues("rejected").Add(float64(rejected))
	Candidates.WithLabelValues("infeasible").Add(float64(infeasible))
}
