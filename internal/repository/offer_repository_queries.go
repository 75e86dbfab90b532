package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/shopspring/decimal"
)

// OfferFilters defines filter options for offer listing
type OfferFilters struct {
	Status     *domain.OfferStatus
	VendorID   *uuid.UUID
	SourceType *domain.SourceType
}

// offerSortableFields maps API field names to database column names for offers
var offerSortableFields = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"status":     "status",
	"validUntil": "valid_until",
}

// List returns one page of the organization's offers and the total matching count
func (r *OfferRepository) List(ctx context.Context, orgID uuid.UUID, filters OfferFilters, sort SortConfig, page, pageSize int) ([]domain.Offer, int64, error) {
	page, pageSize = NormalizePagination(page, pageSize)

	query := r.db.WithContext(ctx).Model(&domain.Offer{}).Scopes(OrgScope(orgID))
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.VendorID != nil {
		query = query.Where("vendor_id = ?", *filters.VendorID)
	}
	if filters.SourceType != nil {
		query = query.Where("source_type = ?", *filters.SourceType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var offers []domain.Offer
	err := query.
		Preload("Vendor").
		Order(BuildOrderClause(sort, offerSortableFields, "created_at") + ", id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&offers).Error
	return offers, total, err
}

// OfferItemSummary is the item count and total value of one offer
type OfferItemSummary struct {
	OfferID    uuid.UUID
	ItemCount  int
	TotalValue decimal.Decimal
}

// ItemSummaries returns item count and total value per offer for the given offers
func (r *OfferRepository) ItemSummaries(ctx context.Context, offerIDs []uuid.UUID) (map[uuid.UUID]OfferItemSummary, error) {
	out := make(map[uuid.UUID]OfferItemSummary, len(offerIDs))
	if len(offerIDs) == 0 {
		return out, nil
	}

	var rows []OfferItemSummary
	err := r.db.WithContext(ctx).
		Model(&domain.OfferItem{}).
		Select("offer_id, COUNT(*) AS item_count, COALESCE(SUM(total_price), 0) AS total_value").
		Where("offer_id IN ?", offerIDs).
		Group("offer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OfferID] = row
	}
	return out, nil
}

// ExistsInOrg reports whether the offer exists in the organization
func (r *OfferRepository) ExistsInOrg(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}
