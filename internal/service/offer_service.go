package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/ingest"
	"github.com/offerflow/offerflow-api/internal/mapper"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OfferService handles offer intake and reads
type OfferService struct {
	offerRepo     *repository.OfferRepository
	offerItemRepo *repository.OfferItemRepository
	documentRepo  *repository.DocumentRepository
	vendorService *VendorService
	storage       storage.Storage
	kpiCache      cache.KPICache
	metrics       *metrics.Registry
	logger        *zap.Logger
	db            *gorm.DB
}

func NewOfferService(
	offerRepo *repository.OfferRepository,
	offerItemRepo *repository.OfferItemRepository,
	documentRepo *repository.DocumentRepository,
	vendorService *VendorService,
	store storage.Storage,
	kpiCache cache.KPICache,
	reg *metrics.Registry,
	logger *zap.Logger,
	db *gorm.DB,
) *OfferService {
	return &OfferService{
		offerRepo:     offerRepo,
		offerItemRepo: offerItemRepo,
		documentRepo:  documentRepo,
		vendorService: vendorService,
		storage:       store,
		kpiCache:      kpiCache,
		metrics:       reg,
		logger:        logger,
		db:            db,
	}
}

// offerLoadError maps a repository error from loading an offer
func offerLoadError(err error, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError("offer %s not found", id)
	}
	return wrapStoreError(err, "load offer")
}

// CreateFromText stores pasted email text as a new offer awaiting normalization
func (s *OfferService) CreateFromText(ctx context.Context, orgID uuid.UUID, req *domain.CreateTextOfferRequest) (*domain.OfferDTO, error) {
	raw := strings.TrimSpace(req.RawContent)
	if raw == "" {
		return nil, validationError("raw content is required")
	}

	offer := &domain.Offer{
		OrgID:      orgID,
		Status:     domain.OfferStatusNew,
		SourceType: domain.SourceTypeEmail,
		RawContent: &raw,
		Notes:      req.Notes,
		CreatedBy:  auth.Actor(ctx),
	}
	if err := s.offerRepo.Create(ctx, offer); err != nil {
		return nil, wrapStoreError(err, "create offer")
	}

	s.metrics.OffersCreated.WithLabelValues(string(domain.SourceTypeEmail)).Inc()
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)
	s.logger.Info("offer created from text",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offer.ID.String()),
		zap.Int("raw_length", len(raw)),
	)

	dto := mapper.ToOfferDTO(offer)
	return &dto, nil
}

// CreateFromDocument stores an uploaded spreadsheet and creates a new offer linked to it.
// The blob is removed again when the database write fails.
func (s *OfferService) CreateFromDocument(ctx context.Context, orgID uuid.UUID, filename, contentType string, data io.Reader) (*domain.UploadOfferResponse, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, validationError("filename is required")
	}
	if _, err := ingest.DetectFormat(filename, contentType); err != nil {
		return nil, validationError("%s: %v", filename, err)
	}

	key, size, err := s.storage.Upload(ctx, orgID, filename, contentType, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, externalError(err, "failed to store document")
	}

	actor := auth.Actor(ctx)
	offer := &domain.Offer{
		OrgID:      orgID,
		Status:     domain.OfferStatusNew,
		SourceType: domain.SourceTypeExcel,
		CreatedBy:  actor,
	}
	linked := domain.LinkedTypeOffer
	doc := &domain.Document{
		OrgID:       orgID,
		Bucket:      s.storage.Bucket(),
		Path:        key,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		LinkedType:  &linked,
		CreatedBy:   actor,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.offerRepo.WithTx(tx).Create(ctx, offer); err != nil {
			return err
		}
		doc.LinkedID = &offer.ID
		if err := s.documentRepo.WithTx(tx).Create(ctx, doc); err != nil {
			return err
		}
		offer.DocumentID = &doc.ID
		return s.offerRepo.WithTx(tx).UpdateFields(ctx, orgID, offer.ID, map[string]interface{}{"document_id": doc.ID})
	})
	if err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned document blob",
				zap.String("key", key),
				zap.Error(delErr),
			)
		}
		return nil, wrapStoreError(err, "create offer from document")
	}

	s.metrics.OffersCreated.WithLabelValues(string(domain.SourceTypeExcel)).Inc()
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)
	s.logger.Info("offer created from document",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offer.ID.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", filename),
		zap.Int64("size", size),
	)

	return &domain.UploadOfferResponse{
		Offer:    mapper.ToOfferDTO(offer),
		Document: mapper.ToDocumentDTO(doc),
	}, nil
}

// CreateManual creates an offer from hand-entered items. Items pass the same checks as normalized ones.
func (s *OfferService) CreateManual(ctx context.Context, orgID uuid.UUID, req *domain.CreateManualOfferRequest) (*domain.OfferDetailDTO, error) {
	parsed := &ingest.ParsedOffer{
		VendorName:   req.VendorName,
		VendorEmail:  req.VendorEmail,
		ValidUntil:   req.ValidUntil,
		LeadTimeDays: req.LeadTimeDays,
		Terms:        req.Terms,
		Items:        make([]ingest.Item, len(req.Items)),
	}
	for i, it := range req.Items {
		item := ingest.Item{
			SKU:         it.SKU,
			Description: strings.TrimSpace(it.Description),
			Quantity:    ingest.NewNumber(it.Quantity),
			UnitPrice:   ingest.NewNumber(it.UnitPrice),
		}
		if u := strings.TrimSpace(it.Unit); u != "" {
			item.Unit = &u
		}
		if it.MOQ != nil {
			moq := ingest.NewNumber(*it.MOQ)
			item.MOQ = &moq
		}
		parsed.Items[i] = item
	}
	if err := parsed.Validate(); err != nil {
		return nil, ingestValidationError(err)
	}

	offer := &domain.Offer{
		OrgID:        orgID,
		Status:       domain.OfferStatusNew,
		SourceType:   domain.SourceTypeManual,
		ValidUntil:   parsed.ValidUntilTime(),
		LeadTimeDays: parsed.LeadTimeDays,
		Terms:        parsed.Terms,
		Notes:        req.Notes,
		CreatedBy:    auth.Actor(ctx),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parsed.VendorName != nil {
			vendorID, err := s.vendorService.ResolveTx(ctx, tx, orgID, *parsed.VendorName, parsed.VendorEmail)
			if err != nil {
				return err
			}
			offer.VendorID = &vendorID
		}
		if err := s.offerRepo.WithTx(tx).Create(ctx, offer); err != nil {
			return err
		}
		return s.offerItemRepo.WithTx(tx).Replace(ctx, offer.ID, ingest.BuildOfferItems(offer.ID, parsed.Items))
	})
	if err != nil {
		return nil, wrapStoreError(err, "create manual offer")
	}

	s.metrics.OffersCreated.WithLabelValues(string(domain.SourceTypeManual)).Inc()
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)
	s.logger.Info("manual offer created",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offer.ID.String()),
		zap.Int("items", len(parsed.Items)),
	)

	return s.GetByID(ctx, orgID, offer.ID)
}

// GetByID returns an offer with its vendor and items
func (s *OfferService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.OfferDetailDTO, error) {
	offer, err := s.offerRepo.GetWithItems(ctx, orgID, id)
	if err != nil {
		return nil, offerLoadError(err, id)
	}
	dto := mapper.ToOfferDetailDTO(offer)
	return &dto, nil
}

// List returns a page of offers, newest first unless sorted otherwise
func (s *OfferService) List(ctx context.Context, orgID uuid.UUID, filters repository.OfferFilters, sort repository.SortConfig, page, pageSize int) (*domain.PaginatedResponse, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, validationError("unknown offer status %q", *filters.Status)
	}
	if filters.SourceType != nil && !filters.SourceType.IsValid() {
		return nil, validationError("unknown source type %q", *filters.SourceType)
	}

	page, pageSize = repository.NormalizePagination(page, pageSize)
	offers, total, err := s.offerRepo.List(ctx, orgID, filters, sort, page, pageSize)
	if err != nil {
		return nil, wrapStoreError(err, "list offers")
	}

	ids := make([]uuid.UUID, len(offers))
	for i := range offers {
		ids[i] = offers[i].ID
	}
	summaries, err := s.offerRepo.ItemSummaries(ctx, ids)
	if err != nil {
		return nil, wrapStoreError(err, "summarize offer items")
	}

	dtos := make([]domain.OfferDTO, len(offers))
	for i := range offers {
		sum := summaries[offers[i].ID]
		dtos[i] = mapper.ToOfferSummaryDTO(&offers[i], sum.ItemCount, sum.TotalValue)
	}

	resp := mapper.ToPaginatedResponse(dtos, total, page, pageSize)
	return &resp, nil
}

// UpdateNotes replaces the reviewer notes of an offer in any status
func (s *OfferService) UpdateNotes(ctx context.Context, orgID, id uuid.UUID, notes string) (*domain.OfferDetailDTO, error) {
	if err := s.offerRepo.UpdateFields(ctx, orgID, id, map[string]interface{}{"notes": notes}); err != nil {
		return nil, offerLoadError(err, id)
	}
	s.logger.Debug("offer notes updated", zap.String("offer_id", id.String()))
	return s.GetByID(ctx, orgID, id)
}

// ingestValidationError turns a canonical payload or spreadsheet failure into a validation error
func ingestValidationError(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

