package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roadplan/internal/config"
	"roadplan/internal/loader"
	"roadplan/internal/metrics"
	"roadplan/internal/opt"
	"roadplan/internal/store"
	"roadplan/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Cfg    config.Config

	limiter *tenantLimiter
	runs    sync.WaitGroup
	closers []io.Closer

	// ctx scopes async runs; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a Server. If no database URL is configured, uses the in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	dsn := strings.TrimSpace(cfg.Server.DatabaseURL)
	srv := &Server{Cfg: cfg}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	if dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.Open(dsn)
		if err != nil {
			return nil, err
		}
		if cfg.Server.MigrateEnabled() {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Printf("migrations: %v", err)
			}
		}
		s = sp
		srv.closers = append(srv.closers, sp)
	}
	// Broker selection
	var broker EventBroker = NewBroker()
	if cfg.Server.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.Server.RedisURL)
		if err != nil {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
		} else {
			broker = rb
			srv.closers = append(srv.closers, rb)
		}
	}
	srv.Store = s
	srv.Broker = broker
	srv.Pub = webhooks.NewPublisher(s, cfg.Server.WebhookSecret)
	srv.limiter = newTenantLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
	metrics.RegisterDefault()
	return srv, nil
}

// Routes wires every endpoint on a ServeMux wrapped in HTTP metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /reoptimize, /events/ws

	// Optimizer config
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)

	// Admin
	mux.HandleFunc("/v1/admin/plan-metrics", s.PlanMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health, metrics, docs
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/vars", s.DebugJSON)
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)

	return instrument(mux)
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.Server.WebhookMaxAttempts)
}

// Wait blocks until every async plan has finished.
func (s *Server) Wait() { s.runs.Wait() }

// Close stops async plans, waits for them to save their best result and
// releases the store and broker.
func (s *Server) Close() error {
	s.cancel()
	s.Wait()
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// baseParams layers the service-wide optimizer config and the tenant's
// stored config over the built-in defaults.
func (s *Server) baseParams(ctx context.Context, tenant string) (opt.Params, error) {
	p := loader.ApplyParams(opt.DefaultParams(), &s.Cfg.Optimizer)
	cfg, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return opt.Params{}, err
	}
	in, err := paramsFromConfig(cfg)
	if err != nil {
		return opt.Params{}, err
	}
	return loader.ApplyParams(p, in), nil
}
