package opt

import "sync"

type key struct {
	Tenant string
	PlanID string
}

var (
	mu    sync.Mutex
	store = map[key]Metrics{}
)

// RecordMetrics keeps the last run's metrics for a plan in process memory.
func RecordMetrics(tenant, planID string, m Metrics) {
	mu.Lock()
	store[key{Tenant: tenant, PlanID: planID}] = m
	mu.Unlock()
}

// GetMetrics returns cached metrics for a tenant, keyed by plan id. An empty
// planID returns every plan of the tenant.
func GetMetrics(tenant, planID string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range store {
		if k.Tenant == tenant && (planID == "" || k.PlanID == planID) {
			out[k.PlanID] = v
		}
	}
	return out
}
