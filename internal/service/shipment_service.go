package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/mapper"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Milestone is one step of the fixed shipment progression
type Milestone struct {
	EventType    string
	Description  string
	LocationName string
	Lat          float64
	Lng          float64
	Status       domain.ShipmentStatus
}

// Milestones is the tracking catalog, in order
var Milestones = []Milestone{
	{"Picked up", "Package picked up from sender", "New York, NY", 40.7128, -74.006, domain.ShipmentStatusPickedUp},
	{"In transit", "In transit to destination", "Philadelphia, PA", 39.9526, -75.1652, domain.ShipmentStatusInTransit},
	{"Out for delivery", "Out for delivery today", "Boston, MA", 42.3601, -71.0589, domain.ShipmentStatusOutForDelivery},
	{"Delivered", "Delivered to recipient", "Boston, MA", 42.3601, -71.0589, domain.ShipmentStatusDelivered},
}

// MilestoneIndex clamps a requested index into the catalog; nil means the first milestone
func MilestoneIndex(index *int) int {
	if index == nil || *index < 0 {
		return 0
	}
	if *index >= len(Milestones) {
		return len(Milestones) - 1
	}
	return *index
}

// ShipmentService appends tracking events and keeps the shipment, order and offer statuses in step
type ShipmentService struct {
	shipmentRepo *repository.ShipmentRepository
	orderRepo    *repository.OrderRepository
	offerRepo    *repository.OfferRepository
	kpiCache     cache.KPICache
	publisher    events.Publisher
	metrics      *metrics.Registry
	transit      time.Duration
	now          func() time.Time
	logger       *zap.Logger
	db           *gorm.DB
}

func NewShipmentService(
	shipmentRepo *repository.ShipmentRepository,
	orderRepo *repository.OrderRepository,
	offerRepo *repository.OfferRepository,
	kpiCache cache.KPICache,
	publisher events.Publisher,
	reg *metrics.Registry,
	cfg *config.ShipmentsConfig,
	logger *zap.Logger,
	db *gorm.DB,
) *ShipmentService {
	return &ShipmentService{
		shipmentRepo: shipmentRepo,
		orderRepo:    orderRepo,
		offerRepo:    offerRepo,
		kpiCache:     kpiCache,
		publisher:    publisher,
		metrics:      reg,
		transit:      cfg.TransitDuration(),
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
		db:           db,
	}
}

// Advance records the milestone at the requested index on a shipment.
// Without a shipment id the organization's most recent undelivered shipment is used.
// Progress never moves backwards; repeating the current milestone appends another event.
func (s *ShipmentService) Advance(ctx context.Context, orgID uuid.UUID, req *domain.AdvanceShipmentRequest) (*domain.AdvanceShipmentResultDTO, error) {
	milestone := Milestones[MilestoneIndex(req.EventIndex)]

	var shipmentID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		shipments := s.shipmentRepo.WithTx(tx)

		if req.ShipmentID != nil {
			shipmentID = *req.ShipmentID
		} else {
			id, err := shipments.LatestOpenID(ctx, orgID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundError("no open shipment to advance")
				}
				return err
			}
			shipmentID = id
		}

		shipment, err := shipments.GetForUpdate(ctx, orgID, shipmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("shipment %s not found", shipmentID)
			}
			return err
		}
		if shipment.Status.IsTerminal() {
			return conflictError("shipment %s is already delivered", shipmentID)
		}
		if milestone.Status.Rank() < shipment.Status.Rank() {
			return conflictError("shipment %s cannot move back from %s to %s", shipmentID, shipment.Status, milestone.Status)
		}

		now := s.now()
		event := &domain.ShipmentEvent{
			ShipmentID:   shipment.ID,
			EventType:    milestone.EventType,
			Description:  milestone.Description,
			LocationName: milestone.LocationName,
			Lat:          milestone.Lat,
			Lng:          milestone.Lng,
			OccurredAt:   now,
		}
		if err := shipments.AppendEvent(ctx, event); err != nil {
			return err
		}

		eta := now.Add(s.transit)
		if milestone.Status == domain.ShipmentStatusDelivered {
			eta = now
		}
		lat, lng, location := milestone.Lat, milestone.Lng, milestone.LocationName
		shipment.Status = milestone.Status
		shipment.EstimatedDelivery = &eta
		shipment.LastLat = &lat
		shipment.LastLng = &lng
		shipment.LastLocationName = &location
		if err := shipments.UpdateTracking(ctx, shipment); err != nil {
			return err
		}

		return s.mirrorProgress(ctx, tx, shipment)
	})
	if err != nil {
		return nil, wrapStoreError(err, "advance shipment")
	}

	s.metrics.ShipmentEvents.WithLabelValues(string(milestone.Status)).Inc()
	s.logger.Info("shipment advanced",
		zap.String("org_id", orgID.String()),
		zap.String("shipment_id", shipmentID.String()),
		zap.String("event_type", milestone.EventType),
		zap.String("status", string(milestone.Status)),
	)
	events.PublishAfterCommit(ctx, s.publisher, s.logger, events.NewEvent(events.TypeShipmentAdvanced, orgID, shipmentID, map[string]string{
		"eventType": milestone.EventType,
		"status":    string(milestone.Status),
	}))
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)

	return &domain.AdvanceShipmentResultDTO{
		ShipmentID: shipmentID,
		EventType:  milestone.EventType,
		Status:     milestone.Status,
	}, nil
}

// mirrorProgress moves the order and offer forward to match the shipment. Nothing ever moves back.
func (s *ShipmentService) mirrorProgress(ctx context.Context, tx *gorm.DB, shipment *domain.Shipment) error {
	order, err := s.orderRepo.WithTx(tx).GetForUpdate(ctx, shipment.OrgID, shipment.OrderID)
	if err != nil {
		return err
	}

	if next := orderStatusForShipment(shipment.Status); next != "" && orderStatusRank(next) > orderStatusRank(order.Status) {
		if err := s.orderRepo.WithTx(tx).UpdateStatus(ctx, shipment.OrgID, order.ID, next); err != nil {
			return err
		}
	}

	offers := s.offerRepo.WithTx(tx)
	offer, err := offers.GetForUpdate(ctx, shipment.OrgID, order.OfferID)
	if err != nil {
		return err
	}
	target := domain.OfferStatusForShipment(shipment.Status)
	if offer.Status == target || !offer.Status.CanTransitionTo(target) {
		return nil
	}
	rows, err := offers.TransitionStatus(ctx, shipment.OrgID, offer.ID, offer.Status, target, nil)
	if err != nil {
		return err
	}
	if rows == 0 {
		return conflictError("offer %s changed status concurrently", offer.ID)
	}
	return nil
}

func orderStatusForShipment(status domain.ShipmentStatus) domain.OrderStatus {
	switch status {
	case domain.ShipmentStatusPickedUp, domain.ShipmentStatusInTransit, domain.ShipmentStatusOutForDelivery:
		return domain.OrderStatusShipped
	case domain.ShipmentStatusDelivered:
		return domain.OrderStatusDelivered
	}
	return ""
}

func orderStatusRank(status domain.OrderStatus) int {
	switch status {
	case domain.OrderStatusConfirmed:
		return 1
	case domain.OrderStatusShipped:
		return 2
	case domain.OrderStatusDelivered:
		return 3
	}
	return 0
}

// GetByID returns a shipment with its events in the order they were recorded
func (s *ShipmentService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.ShipmentDTO, error) {
	shipment, err := s.shipmentRepo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("shipment %s not found", id)
		}
		return nil, wrapStoreError(err, "get shipment")
	}
	dto := mapper.ToShipmentDTO(shipment)
	return &dto, nil
}

// List returns the organization's shipments newest first
func (s *ShipmentService) List(ctx context.Context, orgID uuid.UUID) ([]domain.ShipmentDTO, error) {
	shipments, err := s.shipmentRepo.List(ctx, orgID)
	if err != nil {
		return nil, wrapStoreError(err, "list shipments")
	}
	dtos := make([]domain.ShipmentDTO, len(shipments))
	for i := range shipments {
		dtos[i] = mapper.ToShipmentDTO(&shipments[i])
	}
	return dtos, nil
}
