package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// limitedHandler wraps an OK handler with RateLimit and returns a sender
// issuing one request as user (or anonymously when user is empty).
func limitedHandler(cfg RateLimitConfig) func(user string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	h := RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return func(user string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/sessions/s1/fields", nil)
		if user != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), user, "", nil))
		}
		rec := httptest.NewRecorder()
		return rec, h(e.NewContext(req, rec))
	}
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	send := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})

	for i := 0; i < 3; i++ {
		rec, err := send("")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
			t.Errorf("request %d: X-RateLimit-Limit = %q", i+1, got)
		}
	}

	rec, err := send("")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	retry, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || retry < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_RejectedRequestsDoNotConsume(t *testing.T) {
	v := newVisitors(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	now := time.Now()

	if wait := v.reserve("ip:10.0.0.1", now); wait != 0 {
		t.Fatalf("first request should pass, wait %v", wait)
	}
	for i := 0; i < 5; i++ {
		if wait := v.reserve("ip:10.0.0.1", now); wait <= 0 {
			t.Fatalf("request %d should be limited", i+2)
		}
	}
	if wait := v.reserve("ip:10.0.0.1", now.Add(time.Second)); wait != 0 {
		t.Errorf("a token should be available one second later, wait %v", wait)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	send := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := send("physician-a"); err != nil {
		t.Fatalf("physician-a first request: %v", err)
	}
	if _, err := send("physician-a"); err == nil {
		t.Fatal("physician-a second request: expected rate limit error")
	}
	// Same client IP, different user.
	if _, err := send("sonographer-b"); err != nil {
		t.Fatalf("sonographer-b first request: %v", err)
	}
}

func TestRateLimit_ZeroRateAllowsOnlyBurst(t *testing.T) {
	v := newVisitors(RateLimitConfig{RequestsPerSecond: 0, BurstSize: 1})
	now := time.Now()
	if wait := v.reserve("k", now); wait != 0 {
		t.Fatalf("burst request should pass, wait %v", wait)
	}
	if wait := v.reserve("k", now.Add(time.Second)); wait != time.Second {
		t.Errorf("expected fixed one-second wait, got %v", wait)
	}
}

func TestRateLimit_EvictsIdleVisitors(t *testing.T) {
	v := newVisitors(RateLimitConfig{RequestsPerSecond: 20, BurstSize: 40})
	now := time.Now()
	v.reserve("ip:10.0.0.1", now)
	v.reserve("ip:10.0.0.2", now)

	v.mu.Lock()
	defer v.mu.Unlock()
	if n := v.evictLocked(now, time.Hour); n != 0 {
		t.Errorf("expected no eviction, got %d", n)
	}
	if n := v.evictLocked(now.Add(2*time.Hour), time.Hour); n != 2 {
		t.Errorf("expected 2 evictions, got %d", n)
	}
	if len(v.byKey) != 0 {
		t.Errorf("expected no visitors left, got %d", len(v.byKey))
	}
}
