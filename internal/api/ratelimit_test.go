package api

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(log.New(io.Discard, "", 0))
	handler := limiter.Middleware(RateLimit{RequestsPerMinute: 60, Burst: 1})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/stats/alice", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error body, got content type %q", ct)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter := NewRateLimiter(log.New(io.Discard, "", 0))
	handler := limiter.Middleware(RateLimit{RequestsPerMinute: 60, Burst: 1})(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/stats/alice", nil)
		req.Header.Set("X-Real-IP", ip)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected first request from %s to succeed, got %d", ip, res.Code)
		}
	}
	if n := limiter.visitorCount(); n != 2 {
		t.Errorf("expected 2 tracked clients, got %d", n)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(log.New(io.Discard, "", 0))
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	limiter.obtainLimiter("a", RateLimit{RequestsPerMinute: 60, Burst: 1})
	now = now.Add(visitorTTL + time.Second)
	limiter.obtainLimiter("b", RateLimit{RequestsPerMinute: 60, Burst: 1})

	if n := limiter.visitorCount(); n != 1 {
		t.Errorf("expected idle client to be evicted, %d tracked", n)
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"real ip", map[string]string{"X-Real-IP": "1.2.3.4"}, "9.9.9.9:1", "1.2.3.4"},
		{"forwarded single", map[string]string{"X-Forwarded-For": "5.6.7.8"}, "9.9.9.9:1", "5.6.7.8"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "9.9.9.9:1", "5.6.7.8"},
		{"forwarded garbage", map[string]string{"X-Forwarded-For": "proxy"}, "9.9.9.9:1", "proxy"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientID(req); got != tc.want {
				t.Errorf("clientID = %q, want %q", got, tc.want)
			}
		})
	}
}
