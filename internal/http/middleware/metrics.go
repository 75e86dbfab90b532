package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/offerflow/offerflow-api/internal/metrics"
)

// Metrics records request counts and latency per chi route pattern.
// Unmatched paths share one label so random URLs cannot grow the series set.
func Metrics(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			reg.ObserveHTTP(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
