package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"roadplan/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	plans   map[string]model.PlanOut // id -> plan
	byTen   map[string][]string      // tenant -> plan ids, insertion order
	metrics map[string][]PlanMetrics // tenant -> runs
	optCfg  map[string]map[string]any
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	dedup              map[string]string       // tenant|event|url|key -> delivery id
	dlq                []map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		plans:              map[string]model.PlanOut{},
		byTen:              map[string][]string{},
		metrics:            map[string][]PlanMetrics{},
		optCfg:             map[string]map[string]any{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SavePlan(ctx context.Context, p model.PlanOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.plans[p.ID]; !ok {
		m.byTen[p.TenantID] = append(m.byTen[p.TenantID], p.ID)
	} else if prev.TenantID != p.TenantID {
		return ErrNotFound
	}
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (model.PlanOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok || p.TenantID != tenantID {
		return model.PlanOut{}, ErrNotFound
	}
	return p, nil
}

// ListPlans pages in insertion order; the cursor is the last id returned.
func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := m.byTen[tenantID]
	start := 0
	if cursor != "" {
		start = len(ids)
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	out := []model.PlanOut{}
	for _, id := range ids[start:] {
		if len(out) == limit {
			break
		}
		out = append(out, m.plans[id])
	}
	next := ""
	if len(out) == limit && start+limit < len(ids) {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planID string, met model.MetricsOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[tenantID] = append(m.metrics[tenantID], PlanMetrics{
		PlanID:     planID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		MetricsOut: met,
	})
	return nil
}

// ListPlanMetrics returns the tenant's runs, oldest first; an empty planID matches all plans.
func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]PlanMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []PlanMetrics{}
	for _, pm := range m.metrics[tenantID] {
		if planID == "" || pm.PlanID == planID {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.optCfg[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(cfg), nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = maps.Clone(cfg)
	return nil
}

// Webhook deliveries

// EnqueueWebhook queues a delivery. A payload already queued for the same
// tenant, event and url returns the existing delivery id.
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, ok := m.dedup[dk]; ok {
		return id, nil
	}
	id := uuid.New().String()
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   time.Now(),
	}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.dedup[dk] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, ids := range m.deliveriesByTenant {
		for _, id := range ids {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, map[string]any{"id": id, "tenantId": d.TenantID, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []map[string]any{}
	past := cursor == ""
	var last string
	for _, id := range m.deliveriesByTenant[tenantID] {
		if !past {
			past = id == cursor
			continue
		}
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
		if !d.NextAttemptAt.IsZero() {
			item["nextAttemptAt"] = d.NextAttemptAt
		}
		if d.LastError != "" {
			item["lastError"] = d.LastError
		}
		if d.ResponseCode != 0 {
			item["responseCode"] = d.ResponseCode
		}
		out = append(out, item)
		last = id
		if len(out) == limit {
			break
		}
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

var _ Store = (*Memory)(nil)
