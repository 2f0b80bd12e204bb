package store

import (
	"context"
	"errors"
	"time"

	"roadplan/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Plans
	SavePlan(ctx context.Context, p model.PlanOut) error
	GetPlan(ctx context.Context, tenantID, planID string) (model.PlanOut, error)
	ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error)

	// Optimizer run metrics
	SavePlanMetrics(ctx context.Context, tenantID, planID string, m model.MetricsOut) error
	ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]PlanMetrics, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
}

var ErrNotFound = errors.New("not found")

// PlanMetrics is one stored optimizer run.
type PlanMetrics struct {
	PlanID    string `json:"planId"`
	CreatedAt string `json:"createdAt"`
	model.MetricsOut
}

const defaultLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultLimit
	}
	return limit
}
