package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/database"
	"github.com/offerflow/offerflow-api/internal/http/handler"
	"github.com/offerflow/offerflow-api/internal/http/middleware"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers groups the API handlers mounted under /api/v1
type Handlers struct {
	Auth     *handler.AuthHandler
	Offer    *handler.OfferHandler
	Vendor   *handler.VendorHandler
	Order    *handler.OrderHandler
	Shipment *handler.ShipmentHandler
	KPI      *handler.KPIHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	metrics        *metrics.Registry
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	reg *metrics.Registry,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		metrics:        reg,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.Recovery(rt.logger))
	if d := rt.cfg.Server.RequestTimeoutDuration(); d > 0 {
		r.Use(chimw.Timeout(d))
	}
	if rt.metrics != nil {
		r.Use(middleware.Metrics(rt.metrics))
	}
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness with pool stats
	r.Get("/health/db", rt.databaseHealth)

	if rt.cfg.Server.EnableMetrics && rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	h := rt.handlers
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Use(middleware.RecordCaller)
			r.Use(rt.rateLimiter.Limit)

			r.Get("/auth/me", h.Auth.Me)

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", h.Offer.List)
				r.Post("/", h.Offer.CreateManual)
				r.Post("/text", h.Offer.CreateFromText)
				r.Post("/upload", h.Offer.Upload)
				r.Get("/{id}", h.Offer.GetByID)
				r.Put("/{id}/notes", h.Offer.UpdateNotes)

				r.Post("/{id}/normalize/text", h.Offer.NormalizeText)
				r.Post("/{id}/normalize/spreadsheet", h.Offer.NormalizeSpreadsheet)

				// Lifecycle
				r.Post("/{id}/approve", h.Offer.Approve)
				r.Post("/{id}/accept", h.Offer.Accept)
				r.Post("/{id}/convert", h.Offer.Convert)
			})

			r.Route("/vendors", func(r chi.Router) {
				r.Get("/", h.Vendor.List)
				r.Post("/resolve", h.Vendor.Resolve)
				r.Get("/{id}", h.Vendor.GetByID)
			})

			r.Get("/orders/{id}", h.Order.GetByID)

			r.Route("/shipments", func(r chi.Router) {
				r.Get("/", h.Shipment.List)
				r.Post("/advance", h.Shipment.Advance)
				r.Get("/{id}", h.Shipment.GetByID)
			})

			r.Get("/kpi", h.KPI.Snapshot)
		})
	})

	return r
}

func (rt *Router) databaseHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	stats, err := database.HealthCheckWithStats(rt.db)
	if err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"service": "database",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"service": "database",
		"stats": map[string]interface{}{
			"max_open_connections": stats.MaxOpenConnections,
			"open_connections":     stats.OpenConnections,
			"in_use":               stats.InUse,
			"idle":                 stats.Idle,
			"wait_count":           stats.WaitCount,
			"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		},
	})
}
