package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OfferRepository struct {
	db *gorm.DB
}

func NewOfferRepository(db *gorm.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *OfferRepository) WithTx(tx *gorm.DB) *OfferRepository {
	return &OfferRepository{db: tx}
}

func (r *OfferRepository) Create(ctx context.Context, offer *domain.Offer) error {
	return r.db.WithContext(ctx).Omit("Vendor", "Items").Create(offer).Error
}

// GetByID loads an offer with its vendor
func (r *OfferRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetWithItems loads an offer with its vendor and items in sort order
func (r *OfferRepository) GetWithItems(ctx context.Context, orgID, id uuid.UUID) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.db.WithContext(ctx).
		Preload("Vendor").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetForUpdate loads an offer and locks its row until the surrounding transaction ends.
// Must be called on a repository bound to a transaction.
func (r *OfferRepository) GetForUpdate(ctx context.Context, orgID, id uuid.UUID) (*domain.Offer, error) {
	var offer domain.Offer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&offer).Error
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// UpdateFields updates the given columns of an offer
func (r *OfferRepository) UpdateFields(ctx context.Context, orgID, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionStatus moves an offer from one status to another only if it is still in the expected status.
// It returns the number of rows changed; zero means the offer was not in the expected status.
func (r *OfferRepository) TransitionStatus(ctx context.Context, orgID, id uuid.UUID, from, to domain.OfferStatus, updates map[string]interface{}) (int64, error) {
	fields := map[string]interface{}{"status": to}
	for k, v := range updates {
		fields[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return result.RowsAffected, result.Error
}
