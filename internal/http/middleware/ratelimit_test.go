package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func get(h http.Handler, path, remote string, mutate ...func(*http.Request) *http.Request) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	for _, m := range mutate {
		req = m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1}, zap.NewNop())
	calls := 0
	h := rl.LimitByIP(okHandler(&calls))

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/api/v1/offers", "192.168.1.1:1234").Code)
	}
	assert.Equal(t, 20, calls)
}

func TestRateLimiter_Whitelists(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		WhitelistIPs:      []string{"127.0.0.1"},
		WhitelistPaths:    []string{"/health", "/metrics/*"},
	}, zap.NewNop())
	calls := 0
	h := rl.LimitByIP(okHandler(&calls))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/api/v1/kpi", "127.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, get(h, "/health", "10.0.0.9:1").Code)
		assert.Equal(t, http.StatusOK, get(h, "/metrics/anything", "10.0.0.9:1").Code)
	}
	assert.Equal(t, 15, calls)
}

func TestRateLimiter_LimitExceeded(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 3}, zap.NewNop())
	calls := 0
	h := rl.LimitByIP(okHandler(&calls))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(h, "/api/v1/kpi", "10.1.1.1:1").Code)
	}

	w := get(h, "/api/v1/kpi", "10.1.1.1:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["type"])

	assert.Equal(t, http.StatusOK, get(h, "/api/v1/kpi", "10.2.2.2:1").Code, "other clients keep their own budget")
	assert.Equal(t, 4, calls)
}

func TestRateLimiter_ForwardedFor(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}, zap.NewNop())
	calls := 0
	h := rl.LimitByIP(okHandler(&calls))
	from := func(ip string) func(*http.Request) *http.Request {
		return func(r *http.Request) *http.Request {
			r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
			return r
		}
	}

	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", from("203.0.113.5")).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/x", "10.0.0.1:1", from("203.0.113.5")).Code)
	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", from("203.0.113.6")).Code)
}

func TestRateLimiter_AuthenticatedCallersKeyedPerOrganization(t *testing.T) {
	rl := middleware.NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, RequestsPerMinuteAuth: 2}, zap.NewNop())
	calls := 0
	h := rl.Limit(okHandler(&calls))
	as := func(user string, org uuid.UUID) func(*http.Request) *http.Request {
		return func(r *http.Request) *http.Request {
			return r.WithContext(auth.WithUserContext(context.Background(), &auth.UserContext{UserID: user, OrgID: org}))
		}
	}
	orgA, orgB := uuid.New(), uuid.New()

	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", as("alice", orgA)).Code)
	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", as("alice", orgA)).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/x", "10.0.0.1:1", as("alice", orgA)).Code)

	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", as("alice", orgB)).Code)
	assert.Equal(t, http.StatusOK, get(h, "/x", "10.0.0.1:1", as("bob", orgA)).Code)
}
