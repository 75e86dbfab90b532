package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/database"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/http/handler"
	"github.com/offerflow/offerflow-api/internal/http/middleware"
	"github.com/offerflow/offerflow-api/internal/http/router"
	"github.com/offerflow/offerflow-api/internal/ingest"
	"github.com/offerflow/offerflow-api/internal/logger"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/service"
	"github.com/offerflow/offerflow-api/internal/storage"
	"go.uber.org/zap"
)

// @title OfferFlow API
// @version 1.0
// @description Vendor offer intake, normalization, ordering and shipment tracking
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API key for system callers, combined with X-Organization-ID

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Basic configuration first, for logging setup
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// Development reads secrets from the environment, staging and production from Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	fileStorage, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode), zap.String("bucket", fileStorage.Bucket()))

	kpiCache, closeCache := cache.New(ctx, &cfg.Redis, log)
	defer func() {
		if err := closeCache(); err != nil {
			log.Warn("Error closing KPI cache", zap.Error(err))
		}
	}()

	publisher := events.New(&cfg.Kafka, log)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Error closing event publisher", zap.Error(err))
		}
	}()

	reg := metrics.NewRegistry()
	extractor := ingest.NewChatExtractor(&cfg.Extractor, log)

	// Repositories
	orgRepo := repository.NewOrganizationRepository(db)
	vendorRepo := repository.NewVendorRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	offerRepo := repository.NewOfferRepository(db)
	offerItemRepo := repository.NewOfferItemRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	shipmentRepo := repository.NewShipmentRepository(db)

	// Services
	vendorService := service.NewVendorService(vendorRepo, log, db)
	offerService := service.NewOfferService(offerRepo, offerItemRepo, documentRepo, vendorService, fileStorage, kpiCache, reg, log, db)
	normalizeService := service.NewNormalizeService(offerRepo, offerItemRepo, documentRepo, vendorService, fileStorage, extractor, kpiCache, reg, log, db)
	lifecycleService := service.NewOfferLifecycleService(offerRepo, offerItemRepo, kpiCache, publisher, reg, log, db)
	conversionService := service.NewConversionService(offerRepo, offerItemRepo, orderRepo, shipmentRepo, orgRepo, kpiCache, publisher, reg, cfg, log, db)
	shipmentService := service.NewShipmentService(shipmentRepo, orderRepo, offerRepo, kpiCache, publisher, reg, &cfg.Shipments, log, db)
	orderService := service.NewOrderService(orderRepo, log)
	kpiService := service.NewKPIService(offerRepo, orderRepo, orgRepo, kpiCache, reg, cfg.Orders.DefaultCurrency, log)

	authMiddleware := auth.NewMiddleware(&cfg.Auth, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	rt := router.NewRouter(cfg, log, db, reg, authMiddleware, rateLimiter, router.Handlers{
		Auth:     handler.NewAuthHandler(orgRepo, log),
		Offer:    handler.NewOfferHandler(offerService, normalizeService, lifecycleService, conversionService, cfg.Storage.MaxUploadSizeMB, log),
		Vendor:   handler.NewVendorHandler(vendorService, log),
		Order:    handler.NewOrderHandler(orderService, log),
		Shipment: handler.NewShipmentHandler(shipmentService, log),
		KPI:      handler.NewKPIHandler(kpiService, log),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           rt.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}
