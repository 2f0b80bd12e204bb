package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"roadplan/internal/store"
)

// Plan lifecycle events delivered to callback URLs.
const (
	EventPlanCompleted = "plan.completed"
	EventPlanFailed    = "plan.failed"
)

type Publisher struct {
	Store store.Store
	// Secret signs every delivery; empty disables X-Signature.
	Secret string
}

func NewPublisher(s store.Store, secret string) *Publisher {
	return &Publisher{Store: s, Secret: secret}
}

// Emit queues an event for url. The worker delivers it.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType, url string, data any) (string, error) {
	if url == "" {
		return "", nil
	}
	payload := map[string]any{
		"id":       "evt_" + uuid.New().String(),
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return p.Store.EnqueueWebhook(ctx, tenantID, eventType, url, p.Secret, body)
}
