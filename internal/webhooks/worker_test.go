package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"roadplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	pub := NewPublisher(rs, "secret")
	id, err := pub.Emit(context.Background(), "t1", EventPlanCompleted, srv.URL, map[string]any{"planId": "p1"})
	if err != nil || id == "" {
		t.Fatalf("emit failed: %v", err)
	}

	w.processOnce()

	if gotType != EventPlanCompleted {
		t.Fatalf("missing event type header: %q", gotType)
	}
	if !VerifyHMAC("secret", body, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if env["type"] != EventPlanCompleted || env["tenantId"] != "t1" {
		t.Fatalf("unexpected envelope: %v", env)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", EventPlanFailed, srv.URL, "", []byte(`{"id":"evt_x"}`))

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("expected one failed mark, got: %+v", rs.marks)
	}
	if len(rs.fails) != 0 {
		t.Fatalf("dead-lettered too early")
	}

	// backoff pushed the retry into the future; nothing is due now
	w.processOnce()
	if len(rs.marks) != 1 {
		t.Fatalf("retried before backoff: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", EventPlanFailed, srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
	items, _, _ := rs.ListWebhookDeliveries(context.Background(), "t1", store.DeliveryFailed, "", 10)
	if len(items) != 1 {
		t.Fatalf("expected one failed delivery, got %v", items)
	}
}

func TestEmitWithoutURL(t *testing.T) {
	pub := NewPublisher(store.NewMemory(), "")
	id, err := pub.Emit(context.Background(), "t1", EventPlanCompleted, "", nil)
	if err != nil || id != "" {
		t.Fatalf("expected no-op, got %q %v", id, err)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff")
	}
	if nextBackoff(50) != 1024*time.Second {
		t.Fatalf("backoff not capped at 2^10s")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := SignHMAC("k", body)
	if !VerifyHMAC("k", body, sig) || VerifyHMAC("other", body, sig) || VerifyHMAC("k", body, "zz") {
		t.Fatalf("signature checks wrong")
	}
}
