package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/profiletracker/internal/metrics"
	"github.com/hitoshi/profiletracker/internal/middleware"
)

func newTestRouter(buf *bytes.Buffer, mutate func(*RouterDeps)) http.Handler {
	deps := &RouterDeps{
		Logger:            newTestLogger(buf),
		CORSAllowedOrigin: "*",
		Tracker:           &mockTracker{},
		StatsReader:       &mockStatsReader{},
		HealthChecker:     &mockHealthChecker{},
	}
	if mutate != nil {
		mutate(deps)
	}
	return NewRouter(deps)
}

func TestRouter_Welcome(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(&buf, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["message"] != "Welcome to Profile Tracker API" {
		t.Errorf("message = %q", resp["message"])
	}
}

func TestRouter_Routes(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(&buf, nil)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/track-profiles", `{"leetcode_url":"https://leetcode.com/u/alice/"}`, http.StatusOK},
		{http.MethodGet, "/user/" + testUserID + "/stats", "", http.StatusOK},
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/track-profiles", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(&buf, func(d *RouterDeps) {
		d.HealthChecker = &mockHealthChecker{pingFn: func(ctx context.Context) error {
			return errors.New("dial tcp: connection refused")
		}}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_AppliesMiddlewareStack(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(&buf, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if !strings.Contains(buf.String(), `"msg":"http_request"`) {
		t.Errorf("アクセスログが出力されていない: %s", buf.String())
	}
}

func TestRouter_RateLimitsTrackProfilesOnly(t *testing.T) {
	var buf bytes.Buffer
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: 0.001, Burst: 1}, newTestLogger(&buf))
	defer rl.Stop()
	router := newTestRouter(&buf, func(d *RouterDeps) { d.RateLimiter = rl })

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/track-profiles", strings.NewReader(`{"leetcode_url":"https://leetcode.com/u/alice/"}`))
		req.RemoteAddr = "203.0.113.7:51000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := post(); got != http.StatusOK {
		t.Fatalf("1回目 status = %d, want %d", got, http.StatusOK)
	}
	if got := post(); got != http.StatusTooManyRequests {
		t.Errorf("2回目 status = %d, want %d", got, http.StatusTooManyRequests)
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/user/"+testUserID+"/stats", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("stats status = %d, want %d", w.Code, http.StatusOK)
		}
	}
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)
	mc.RecordFetchSuccess("leetcode")

	var buf bytes.Buffer
	router := newTestRouter(&buf, func(d *RouterDeps) { d.MetricsHandler = metrics.Handler(reg) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "profiletracker_") {
		t.Errorf("メトリクスが出力されていない: %s", w.Body.String())
	}
}

func TestRouter_MetricsDisabledWhenNil(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(&buf, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
