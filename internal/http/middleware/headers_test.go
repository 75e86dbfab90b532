package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/http/middleware"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SecurityConfig
		present map[string]string
		absent  []string
	}{
		{
			name: "defaults",
			cfg: config.SecurityConfig{
				ContentTypeNosniff:    true,
				FrameOptions:          "DENY",
				ContentSecurityPolicy: "default-src 'self'",
				ReferrerPolicy:        "strict-origin-when-cross-origin",
			},
			present: map[string]string{
				"X-Content-Type-Options":  "nosniff",
				"X-Frame-Options":         "DENY",
				"Content-Security-Policy": "default-src 'self'",
				"Referrer-Policy":         "strict-origin-when-cross-origin",
			},
			absent: []string{"Strict-Transport-Security"},
		},
		{
			name:    "hsts with subdomains",
			cfg:     config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true},
			present: map[string]string{"Strict-Transport-Security": "max-age=600; includeSubDomains"},
			absent:  []string{"X-Frame-Options", "X-Content-Type-Options"},
		},
		{
			name:    "hsts only",
			cfg:     config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: 31536000},
			present: map[string]string{"Strict-Transport-Security": "max-age=31536000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			h := middleware.SecurityHeaders(&cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusTeapot, w.Code)
			for k, v := range tt.present {
				assert.Equal(t, v, w.Header().Get(k), k)
			}
			for _, k := range tt.absent {
				assert.Empty(t, w.Header().Get(k), k)
			}
		})
	}
}

func corsRequest(h http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/offers", nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	base := config.CORSConfig{AllowedMethods: []string{"GET", "POST"}, AllowedHeaders: []string{"Authorization"}}

	t.Run("development reflects any origin", func(t *testing.T) {
		cfg := base
		h := middleware.CORS(&cfg, "development", zap.NewNop())(next)
		assert.Equal(t, "http://localhost:5173", corsRequest(h, "http://localhost:5173").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("explicit origins", func(t *testing.T) {
		cfg := base
		cfg.AllowedOrigins = []string{"https://app.offerflow.example"}
		h := middleware.CORS(&cfg, "production", zap.NewNop())(next)
		assert.Equal(t, "https://app.offerflow.example", corsRequest(h, "https://app.offerflow.example").Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, corsRequest(h, "https://evil.example").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("production without origins denies", func(t *testing.T) {
		cfg := base
		h := middleware.CORS(&cfg, "production", zap.NewNop())(next)
		assert.Empty(t, corsRequest(h, "https://app.offerflow.example").Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		cfg := base
		cfg.AllowedOrigins = []string{"*"}
		h := middleware.CORS(&cfg, "production", zap.NewNop())(next)
		assert.Equal(t, "https://any.example", corsRequest(h, "https://any.example").Header().Get("Access-Control-Allow-Origin"))
	})
}
