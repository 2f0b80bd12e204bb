package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"roadplan/internal/metrics"
)

// tenantLimiter keeps one token bucket per tenant. A zero rate disables it.
type tenantLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	if burst < 1 {
		burst = 1
	}
	return &tenantLimiter{rps: rate.Limit(rps), burst: burst, m: map[string]*rate.Limiter{}}
}

func (l *tenantLimiter) get(tenant string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[tenant]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.m[tenant] = lim
	}
	return lim
}

// allow reports whether the tenant may make a request now, and if not how
// long until it may.
func (l *tenantLimiter) allow(tenant string) (bool, time.Duration) {
	if l == nil || l.rps <= 0 {
		return true, 0
	}
	r := l.get(tenant).Reserve()
	if !r.OK() {
		return false, time.Second
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d
	}
	return true, 0
}

// limitTenant rejects with 429 when the tenant's bucket is empty.
func (s *Server) limitTenant(w http.ResponseWriter, r *http.Request, tenant string) bool {
	ok, wait := s.limiter.allow(tenant)
	if ok {
		return true
	}
	metrics.RateLimited.WithLabelValues(pathLabel(r.URL.Path)).Inc()
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded for tenant "+tenant, r.URL.Path)
	return false
}
