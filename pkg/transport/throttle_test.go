package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/time/rate"

	"github.com/screenleads/backend/pkg/observability"
)

func newTestThrottle(now *time.Time) *Throttle {
	th := NewThrottle(ThrottleConfig{Rate: rate.Every(time.Minute), Burst: 2, IdleTTL: time.Minute, Name: "test"})
	th.now = func() time.Time { return *now }
	return th
}

func throttleRequest(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func rejectedCount(t *testing.T, name string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := observability.RateLimitRejectedTotal.GetMetricWithLabelValues(name)
	if err != nil {
		t.Fatalf("getting counter: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestThrottle_BurstThenReject(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	th := newTestThrottle(&now)
	h := th.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := rejectedCount(t, "test")

	for i := range 2 {
		if rec := throttleRequest(h, "10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	rec := throttleRequest(h, "10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if after := rejectedCount(t, "test"); after-before != 1 {
		t.Errorf("rejections delta = %f, want 1", after-before)
	}

	// Other clients have their own bucket.
	if rec := throttleRequest(h, "10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}

	// The bucket refills over time.
	now = now.Add(time.Minute)
	if rec := throttleRequest(h, "10.0.0.1:5000"); rec.Code != http.StatusOK {
		t.Errorf("after refill status = %d, want 200", rec.Code)
	}
}

func TestThrottle_Sweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	th := newTestThrottle(&now)

	th.allow("10.0.0.1")
	th.allow("10.0.0.2")
	now = now.Add(30 * time.Second)
	th.allow("10.0.0.2")

	now = now.Add(45 * time.Second)
	th.Sweep()

	if got := th.Clients(); got != 1 {
		t.Errorf("clients after sweep = %d, want 1", got)
	}
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:4321"
	if got := ClientAddr(req); got != "192.0.2.7" {
		t.Errorf("ClientAddr = %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := ClientAddr(req); got != "pipe" {
		t.Errorf("ClientAddr = %q", got)
	}
}
