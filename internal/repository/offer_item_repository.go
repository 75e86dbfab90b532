package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
)

type OfferItemRepository struct {
	db *gorm.DB
}

func NewOfferItemRepository(db *gorm.DB) *OfferItemRepository {
	return &OfferItemRepository{db: db}
}

func (r *OfferItemRepository) WithTx(tx *gorm.DB) *OfferItemRepository {
	return &OfferItemRepository{db: tx}
}

// ListByOffer returns the canonical item set of an offer in sort order
func (r *OfferItemRepository) ListByOffer(ctx context.Context, offerID uuid.UUID) ([]domain.OfferItem, error) {
	var items []domain.OfferItem
	err := r.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("sort_order ASC").
		Find(&items).Error
	return items, err
}

// Replace swaps the whole item set of an offer. Callers run it inside a transaction
// so readers see either the old set or the new one.
func (r *OfferItemRepository) Replace(ctx context.Context, offerID uuid.UUID, items []domain.OfferItem) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("offer_id = ?", offerID).Delete(&domain.OfferItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.CreateInBatches(items, 100).Error
}

func (r *OfferItemRepository) CountByOffer(ctx context.Context, offerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OfferItem{}).
		Where("offer_id = ?", offerID).
		Count(&count).Error
	return count, err
}
