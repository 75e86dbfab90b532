package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/mapper"
	"github.com/offerflow/offerflow-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VendorService resolves vendor names to vendor records.
// Matching is exact after trimming and ignoring case: "Acme" and "ACME" are one vendor, "Acme." is another.
type VendorService struct {
	vendorRepo *repository.VendorRepository
	logger     *zap.Logger
	db         *gorm.DB
}

func NewVendorService(vendorRepo *repository.VendorRepository, logger *zap.Logger, db *gorm.DB) *VendorService {
	return &VendorService{
		vendorRepo: vendorRepo,
		logger:     logger,
		db:         db,
	}
}

// Resolve returns the id of the organization's vendor with the given name, creating it if needed
func (s *VendorService) Resolve(ctx context.Context, orgID uuid.UUID, name string, email *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.ResolveTx(ctx, tx, orgID, name, email)
		return err
	})
	if err != nil {
		return uuid.Nil, wrapStoreError(err, "resolve vendor")
	}
	return id, nil
}

// ResolveTx resolves inside the caller's transaction
func (s *VendorService) ResolveTx(ctx context.Context, tx *gorm.DB, orgID uuid.UUID, name string, email *string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, validationError("vendor name is required")
	}
	if email != nil {
		trimmed := strings.TrimSpace(*email)
		email = &trimmed
	}

	repo := s.vendorRepo.WithTx(tx)

	existing, err := repo.FindByName(ctx, orgID, name)
	if err == nil {
		if err := repo.FillEmail(ctx, orgID, existing.ID, email); err != nil {
			return uuid.Nil, err
		}
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}

	vendor := &domain.Vendor{OrgID: orgID, Name: name}
	if email != nil && *email != "" {
		vendor.Email = email
	}
	// the savepoint keeps the outer transaction usable when the insert loses a race
	// against a concurrent resolve of the same name
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.vendorRepo.WithTx(sp).Create(ctx, vendor)
	})
	if err != nil {
		if isUniqueViolation(err) {
			if found, findErr := repo.FindByName(ctx, orgID, name); findErr == nil {
				return found.ID, nil
			}
		}
		return uuid.Nil, err
	}

	s.logger.Info("vendor created",
		zap.String("org_id", orgID.String()),
		zap.String("vendor_id", vendor.ID.String()),
		zap.String("name", name),
	)
	return vendor.ID, nil
}

func (s *VendorService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.VendorDTO, error) {
	vendor, err := s.vendorRepo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("vendor %s not found", id)
		}
		return nil, wrapStoreError(err, "get vendor")
	}
	dto := mapper.ToVendorDTO(vendor)
	return &dto, nil
}

func (s *VendorService) List(ctx context.Context, orgID uuid.UUID) ([]domain.VendorDTO, error) {
	vendors, err := s.vendorRepo.List(ctx, orgID)
	if err != nil {
		return nil, wrapStoreError(err, "list vendors")
	}
	dtos := make([]domain.VendorDTO, len(vendors))
	for i := range vendors {
		dtos[i] = mapper.ToVendorDTO(&vendors[i])
	}
	return dtos, nil
}
