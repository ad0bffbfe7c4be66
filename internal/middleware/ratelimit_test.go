package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/profiletracker/internal/model"
)

func newTestRateLimiter(t *testing.T, perMinute int) *RateLimiter {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(PerMinute(perMinute), newJSONLogger(&buf))
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/track-profiles", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 5)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("198.51.100.1:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, 2)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("198.51.100.1:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("198.51.100.1:9999"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	// 2 req/min なので1トークンの補充に30秒かかる
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want %q", got, "30")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 429 body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("198.51.100.1:1234"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("198.51.100.2:1234"))
	if w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestRateLimiter(t, 10)
	handler := rl.Middleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("198.51.100.1:1234"))

	rl.cleanup(time.Now())
	if rl.LimiterCount() != 1 {
		t.Fatalf("fresh entry removed: LimiterCount = %d", rl.LimiterCount())
	}

	rl.cleanup(time.Now().Add(3 * rl.config.CleanupInterval))
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount = %d, want 0 after expiry", rl.LimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := newTestRateLimiter(t, 10)
	rl.Stop()
	rl.Stop()
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(30)
	if cfg.Rate != rate.Limit(0.5) || cfg.Burst != 30 {
		t.Errorf("PerMinute(30) = %+v, want rate 0.5 burst 30", cfg)
	}
	if def := PerMinute(0); def.Burst != 30 {
		t.Errorf("PerMinute(0).Burst = %d, want default 30", def.Burst)
	}
}

func TestClientIP(t *testing.T) {
	cases := map[string]string{
		"198.51.100.1:1234": "198.51.100.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"not-an-addr":       "not-an-addr",
	}
	for addr, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := ClientIP(req); got != want {
			t.Errorf("ClientIP(%q) = %q, want %q", addr, got, want)
		}
	}
}
