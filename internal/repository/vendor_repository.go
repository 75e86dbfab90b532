package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
)

// VendorRepository handles vendor data access. Name lookups are case-insensitive.
type VendorRepository struct {
	db *gorm.DB
}

func NewVendorRepository(db *gorm.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *VendorRepository) WithTx(tx *gorm.DB) *VendorRepository {
	return &VendorRepository{db: tx}
}

func (r *VendorRepository) Create(ctx context.Context, vendor *domain.Vendor) error {
	return r.db.WithContext(ctx).Create(vendor).Error
}

func (r *VendorRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Vendor, error) {
	var vendor domain.Vendor
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindByName returns the vendor whose name equals name ignoring case and surrounding whitespace
func (r *VendorRepository) FindByName(ctx context.Context, orgID uuid.UUID, name string) (*domain.Vendor, error) {
	var vendor domain.Vendor
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("created_at ASC").
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// List returns the organization's vendors sorted by name
func (r *VendorRepository) List(ctx context.Context, orgID uuid.UUID) ([]domain.Vendor, error) {
	var vendors []domain.Vendor
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Order("LOWER(name) ASC").
		Find(&vendors).Error
	return vendors, err
}

// FillEmail records a vendor email only when none is on file yet
func (r *VendorRepository) FillEmail(ctx context.Context, orgID, id uuid.UUID, email *string) error {
	if email == nil || *email == "" {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Vendor{}).
		Scopes(OrgScope(orgID)).
		Where("id = ? AND (email IS NULL OR email = '')", id).
		Update("email", *email).Error
}
