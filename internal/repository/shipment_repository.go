package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShipmentRepository handles shipments and their event history.
// Events are append-only: there is no update or delete for them.
type ShipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

func (r *ShipmentRepository) WithTx(tx *gorm.DB) *ShipmentRepository {
	return &ShipmentRepository{db: tx}
}

func (r *ShipmentRepository) Create(ctx context.Context, shipment *domain.Shipment) error {
	return r.db.WithContext(ctx).Omit("Events").Create(shipment).Error
}

// GetByID loads a shipment with its events in insertion order
func (r *ShipmentRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := r.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// GetForUpdate loads a shipment and locks its row for the rest of the transaction
func (r *ShipmentRepository) GetForUpdate(ctx context.Context, orgID, id uuid.UUID) (*domain.Shipment, error) {
	var shipment domain.Shipment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

// LatestOpenID returns the most recently created shipment of the organization that is not delivered
func (r *ShipmentRepository) LatestOpenID(ctx context.Context, orgID uuid.UUID) (uuid.UUID, error) {
	var shipment domain.Shipment
	err := r.db.WithContext(ctx).
		Select("id").
		Scopes(OrgScope(orgID)).
		Where("status <> ?", domain.ShipmentStatusDelivered).
		Order("created_at DESC, id DESC").
		First(&shipment).Error
	if err != nil {
		return uuid.Nil, err
	}
	return shipment.ID, nil
}

// List returns the organization's shipments newest first, without events
func (r *ShipmentRepository) List(ctx context.Context, orgID uuid.UUID) ([]domain.Shipment, error) {
	var shipments []domain.Shipment
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Order("created_at DESC, id DESC").
		Find(&shipments).Error
	return shipments, err
}

// UpdateTracking writes the status and location fields after an event
func (r *ShipmentRepository) UpdateTracking(ctx context.Context, shipment *domain.Shipment) error {
	return r.db.WithContext(ctx).
		Model(&domain.Shipment{}).
		Scopes(OrgScope(shipment.OrgID)).
		Where("id = ?", shipment.ID).
		Updates(map[string]interface{}{
			"status":             shipment.Status,
			"estimated_delivery": shipment.EstimatedDelivery,
			"last_lat":           shipment.LastLat,
			"last_lng":           shipment.LastLng,
			"last_location_name": shipment.LastLocationName,
		}).Error
}

// AppendEvent adds an event after the shipment's last one. The shipment row must be locked by the caller.
func (r *ShipmentRepository) AppendEvent(ctx context.Context, event *domain.ShipmentEvent) error {
	db := r.db.WithContext(ctx)

	var last int
	err := db.Model(&domain.ShipmentEvent{}).
		Where("shipment_id = ?", event.ShipmentID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}

	event.Sequence = last + 1
	return db.Create(event).Error
}

func (r *ShipmentRepository) ListEvents(ctx context.Context, shipmentID uuid.UUID) ([]domain.ShipmentEvent, error) {
	var events []domain.ShipmentEvent
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("sequence ASC").
		Find(&events).Error
	return events, err
}
