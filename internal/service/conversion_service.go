package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConversionService turns an agreed offer into an order and a pending shipment, all or nothing
type ConversionService struct {
	offerRepo     *repository.OfferRepository
	offerItemRepo *repository.OfferItemRepository
	orderRepo     *repository.OrderRepository
	shipmentRepo  *repository.ShipmentRepository
	orgRepo       *repository.OrganizationRepository
	kpiCache      cache.KPICache
	publisher     events.Publisher
	metrics       *metrics.Registry
	orders        config.OrdersConfig
	shipments     config.ShipmentsConfig
	logger        *zap.Logger
	db            *gorm.DB
}

func NewConversionService(
	offerRepo *repository.OfferRepository,
	offerItemRepo *repository.OfferItemRepository,
	orderRepo *repository.OrderRepository,
	shipmentRepo *repository.ShipmentRepository,
	orgRepo *repository.OrganizationRepository,
	kpiCache cache.KPICache,
	publisher events.Publisher,
	reg *metrics.Registry,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
) *ConversionService {
	return &ConversionService{
		offerRepo:     offerRepo,
		offerItemRepo: offerItemRepo,
		orderRepo:     orderRepo,
		shipmentRepo:  shipmentRepo,
		orgRepo:       orgRepo,
		kpiCache:      kpiCache,
		publisher:     publisher,
		metrics:       reg,
		orders:        cfg.Orders,
		shipments:     cfg.Shipments,
		logger:        logger,
		db:            db,
	}
}

// Convert creates the order, its items and a pending shipment for an offer and marks the offer ordered.
// Of two concurrent conversions of the same offer exactly one commits; the other gets a conflict.
func (s *ConversionService) Convert(ctx context.Context, orgID, offerID uuid.UUID) (*domain.ConversionResultDTO, error) {
	var (
		order    *domain.Order
		shipment *domain.Shipment
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		offers := s.offerRepo.WithTx(tx)

		offer, err := offers.GetForUpdate(ctx, orgID, offerID)
		if err != nil {
			return offerLoadError(err, offerID)
		}
		if offer.VendorID == nil {
			return preconditionError("offer %s has no vendor", offerID)
		}

		items, err := s.offerItemRepo.WithTx(tx).ListByOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return preconditionError("offer %s has no items", offerID)
		}

		if offer.Status.IsConverted() {
			return conflictError("offer %s is already %s", offerID, offer.Status)
		}
		if offer.Status != domain.OfferStatusNegotiating && offer.Status != domain.OfferStatusAccepted {
			return preconditionError("offer must be approved first (status is %s)", offer.Status)
		}

		currency, err := s.orgRepo.WithTx(tx).DefaultCurrency(ctx, orgID)
		if err != nil {
			return err
		}
		if currency == "" {
			currency = s.orders.DefaultCurrency
		}

		order = buildOrder(offer, items, currency, auth.Actor(ctx))
		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		shipment = &domain.Shipment{
			OrgID:          orgID,
			OrderID:        order.ID,
			Carrier:        s.shipments.Carrier,
			TrackingNumber: newTrackingNumber(time.Now()),
			Status:         domain.ShipmentStatusPending,
		}
		if err := s.shipmentRepo.WithTx(tx).Create(ctx, shipment); err != nil {
			return err
		}

		rows, err := offers.TransitionStatus(ctx, orgID, offerID, offer.Status, domain.OfferStatusOrdered, nil)
		if err != nil {
			return err
		}
		if rows == 0 {
			return conflictError("offer %s changed status concurrently", offerID)
		}
		return nil
	})
	if err != nil {
		err = wrapStoreError(err, "convert offer")
		s.metrics.Conversions.WithLabelValues(string(outcomeKind(err))).Inc()
		if KindOf(err) == KindConflict {
			s.logger.Info("conversion rejected",
				zap.String("org_id", orgID.String()),
				zap.String("offer_id", offerID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.metrics.Conversions.WithLabelValues("ok").Inc()
	s.logger.Info("offer converted",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offerID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("shipment_id", shipment.ID.String()),
		zap.String("total", order.TotalAmount.String()),
		zap.String("currency", order.Currency),
	)

	events.PublishAfterCommit(ctx, s.publisher, s.logger, events.NewEvent(events.TypeOrderCreated, orgID, order.ID, map[string]interface{}{
		"offerId":     offerID,
		"shipmentId":  shipment.ID,
		"totalAmount": order.TotalAmount,
		"currency":    order.Currency,
	}))
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)

	return &domain.ConversionResultDTO{
		OrderID:    order.ID,
		ShipmentID: &shipment.ID,
	}, nil
}

// buildOrder copies the offer items into a confirmed order. The total is the exact sum of item totals.
func buildOrder(offer *domain.Offer, items []domain.OfferItem, currency, createdBy string) *domain.Order {
	order := &domain.Order{
		BaseModel: domain.BaseModel{ID: uuid.New()},
		OrgID:     offer.OrgID,
		OfferID:   offer.ID,
		VendorID:  *offer.VendorID,
		Status:    domain.OrderStatusConfirmed,
		Currency:  currency,
		CreatedBy: createdBy,
		Items:     make([]domain.OrderItem, len(items)),
	}

	total := decimal.Zero
	for i, item := range items {
		offerItemID := item.ID
		lineTotal := item.Quantity.Mul(item.UnitPrice)
		order.Items[i] = domain.OrderItem{
			OrderID:     order.ID,
			OfferItemID: &offerItemID,
			SKU:         item.SKU,
			Description: item.Description,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  lineTotal,
			MOQ:         item.MOQ,
			SortOrder:   item.SortOrder,
		}
		total = total.Add(lineTotal)
	}
	order.TotalAmount = total
	return order
}

// newTrackingNumber returns TL-<unix millis>-<8 hex chars>
func newTrackingNumber(now time.Time) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("TL-%d-%08x", now.UnixMilli(), uint32(now.UnixNano()))
	}
	return fmt.Sprintf("TL-%d-%s", now.UnixMilli(), hex.EncodeToString(b))
}

// invalidateKPI drops the cached snapshot. Failures are logged only.
func invalidateKPI(ctx context.Context, c cache.KPICache, logger *zap.Logger, orgID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, orgID); err != nil {
		logger.Warn("failed to invalidate KPI cache",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}
