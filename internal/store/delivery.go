package store

// Delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

type WebhookDelivery struct {
	ID        string
	TenantID  string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Status    string
	Attempts  int
}
