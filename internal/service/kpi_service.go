package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"go.uber.org/zap"
)

// TopVendorLimit is the number of vendors in the revenue ranking
const TopVendorLimit = 10

// KPIService computes the read-only reporting snapshot of an organization
type KPIService struct {
	offerRepo       *repository.OfferRepository
	orderRepo       *repository.OrderRepository
	orgRepo         *repository.OrganizationRepository
	cache           cache.KPICache
	metrics         *metrics.Registry
	defaultCurrency string
	logger          *zap.Logger
}

func NewKPIService(
	offerRepo *repository.OfferRepository,
	orderRepo *repository.OrderRepository,
	orgRepo *repository.OrganizationRepository,
	kpiCache cache.KPICache,
	reg *metrics.Registry,
	defaultCurrency string,
	logger *zap.Logger,
) *KPIService {
	if kpiCache == nil {
		kpiCache = cache.NoopKPICache{}
	}
	return &KPIService{
		offerRepo:       offerRepo,
		orderRepo:       orderRepo,
		orgRepo:         orgRepo,
		cache:           kpiCache,
		metrics:         reg,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// Snapshot returns the organization's KPIs, from cache when a fresh copy exists.
// Margin is reported as unavailable because offers carry no cost basis.
func (s *KPIService) Snapshot(ctx context.Context, orgID uuid.UUID) (*domain.KPISnapshotDTO, error) {
	cached, err := s.cache.Get(ctx, orgID)
	switch {
	case err == nil:
		s.metrics.KPICache.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, cache.ErrMiss):
		s.metrics.KPICache.WithLabelValues("miss").Inc()
	default:
		s.metrics.KPICache.WithLabelValues("error").Inc()
		s.logger.Warn("KPI cache read failed, computing snapshot",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}

	snapshot, err := s.compute(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, orgID, snapshot); err != nil {
		s.logger.Warn("KPI cache write failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
	return snapshot, nil
}

func (s *KPIService) compute(ctx context.Context, orgID uuid.UUID) (*domain.KPISnapshotDTO, error) {
	revenue, orderCount, err := s.orderRepo.RevenueTotals(ctx, orgID, domain.RevenueOrderStatuses)
	if err != nil {
		return nil, wrapStoreError(err, "sum order revenue")
	}

	offerCount, err := s.offerRepo.CountOffers(ctx, orgID)
	if err != nil {
		return nil, wrapStoreError(err, "count offers")
	}
	converted, err := s.offerRepo.CountByStatuses(ctx, orgID, domain.ConvertedOfferStatuses)
	if err != nil {
		return nil, wrapStoreError(err, "count converted offers")
	}
	conversionRate := 0.0
	if offerCount > 0 {
		conversionRate = float64(converted) / float64(offerCount)
	}

	avgLead, err := s.offerRepo.AverageLeadTimeDays(ctx, orgID)
	if err != nil {
		return nil, wrapStoreError(err, "average lead time")
	}

	byVendor, err := s.orderRepo.RevenueByVendor(ctx, orgID, domain.RevenueOrderStatuses, TopVendorLimit)
	if err != nil {
		return nil, wrapStoreError(err, "rank vendors")
	}
	top := make([]domain.VendorRevenueDTO, len(byVendor))
	for i, v := range byVendor {
		top[i] = domain.VendorRevenueDTO{VendorName: v.VendorName, Revenue: v.Revenue, OrderCount: v.OrderCount}
	}

	currency, err := s.orgRepo.DefaultCurrency(ctx, orgID)
	if err != nil {
		return nil, wrapStoreError(err, "load organization")
	}
	if currency == "" {
		currency = s.defaultCurrency
	}

	return &domain.KPISnapshotDTO{
		TotalRevenue:    revenue,
		Currency:        currency,
		ConversionRate:  conversionRate,
		AvgLeadTimeDays: avgLead,
		AvgMarginPct:    nil,
		MarginAvailable: false,
		TopVendors:      top,
		OfferCount:      offerCount,
		OrderCount:      orderCount,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	}, nil
}
