package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"gorm.io/gorm"
)

// DocumentRepository resolves organization-scoped document ids to their storage location
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) WithTx(tx *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Link attaches a document to the record it belongs to
func (r *DocumentRepository) Link(ctx context.Context, orgID, id uuid.UUID, linkedType domain.LinkedType, linkedID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&domain.Document{}).
		Scopes(OrgScope(orgID)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"linked_type": linkedType,
			"linked_id":   linkedID,
		}).Error
}

func (r *DocumentRepository) ListLinked(ctx context.Context, orgID uuid.UUID, linkedType domain.LinkedType, linkedID uuid.UUID) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).
		Scopes(OrgScope(orgID)).
		Where("linked_type = ? AND linked_id = ?", linkedType, linkedID).
		Order("created_at DESC, id DESC").
		Find(&docs).Error
	return docs, err
}
