package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
)

// CountOffers returns the number of offers in the organization
func (r *OfferRepository) CountOffers(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Count(&count).Error
	return count, err
}

// CountByStatuses returns the number of offers in any of the given statuses
func (r *OfferRepository) CountByStatuses(ctx context.Context, orgID uuid.UUID, statuses []domain.OfferStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Where("status IN ?", statuses).
		Count(&count).Error
	return count, err
}

// AverageLeadTimeDays returns the mean positive lead time, or 0 when no offer has one
func (r *OfferRepository) AverageLeadTimeDays(ctx context.Context, orgID uuid.UUID) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).
		Model(&domain.Offer{}).
		Scopes(OrgScope(orgID)).
		Where("lead_time_days > 0").
		Select("COALESCE(AVG(lead_time_days), 0)").
		Scan(&avg).Error
	return avg, err
}
