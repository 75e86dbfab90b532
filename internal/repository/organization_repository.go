package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) WithTx(tx *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: tx}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// EnsureExists creates the organization row on first sight of an org id and leaves existing rows alone
func (r *OrganizationRepository) EnsureExists(ctx context.Context, id uuid.UUID, name string) error {
	org := domain.Organization{BaseModel: domain.BaseModel{ID: id}, Name: name}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&org).Error
}

// DefaultCurrency returns the organization's currency, or "" when it has none on record
func (r *OrganizationRepository) DefaultCurrency(ctx context.Context, id uuid.UUID) (string, error) {
	org, err := r.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return org.DefaultCurrency, nil
}
