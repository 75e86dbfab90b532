package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
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

// NormalizeService turns an offer's raw source into its canonical item set.
// Each run replaces the whole item set in one transaction.
type NormalizeService struct {
	offerRepo     *repository.OfferRepository
	offerItemRepo *repository.OfferItemRepository
	documentRepo  *repository.DocumentRepository
	vendorService *VendorService
	storage       storage.Storage
	extractor     ingest.Extractor
	kpiCache      cache.KPICache
	metrics       *metrics.Registry
	logger        *zap.Logger
	db            *gorm.DB
}

func NewNormalizeService(
	offerRepo *repository.OfferRepository,
	offerItemRepo *repository.OfferItemRepository,
	documentRepo *repository.DocumentRepository,
	vendorService *VendorService,
	store storage.Storage,
	extractor ingest.Extractor,
	kpiCache cache.KPICache,
	reg *metrics.Registry,
	logger *zap.Logger,
	db *gorm.DB,
) *NormalizeService {
	return &NormalizeService{
		offerRepo:     offerRepo,
		offerItemRepo: offerItemRepo,
		documentRepo:  documentRepo,
		vendorService: vendorService,
		storage:       store,
		extractor:     extractor,
		kpiCache:      kpiCache,
		metrics:       reg,
		logger:        logger,
		db:            db,
	}
}

// spreadsheetPayload is what gets stored as parsed_json for spreadsheet offers
type spreadsheetPayload struct {
	Items []ingest.Item `json:"items"`
}

// NormalizeFreeText runs the offer's raw text through the extractor and stores the validated result
func (s *NormalizeService) NormalizeFreeText(ctx context.Context, orgID, offerID uuid.UUID) (result *domain.NormalizeTextResultDTO, err error) {
	defer func() {
		s.metrics.Normalizations.WithLabelValues(string(domain.SourceTypeEmail), string(outcomeKind(err))).Inc()
	}()

	offer, err := s.offerRepo.GetByID(ctx, orgID, offerID)
	if err != nil {
		return nil, offerLoadError(err, offerID)
	}
	if err := guardNormalize(offer); err != nil {
		return nil, err
	}
	if offer.RawContent == nil || strings.TrimSpace(*offer.RawContent) == "" {
		return nil, notFoundError("offer %s has no raw content to normalize", offerID)
	}

	start := time.Now()
	raw, err := s.extractor.Extract(ctx, *offer.RawContent)
	s.metrics.ExtractorLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ingest.ErrInvalidPayload) {
			return nil, ingestValidationError(err)
		}
		s.logger.Warn("structured extractor failed",
			zap.String("offer_id", offerID.String()),
			zap.Error(err),
		)
		return nil, externalError(err, "structured extractor failed")
	}

	parsed, err := ingest.DecodeParsedOffer(raw)
	if err != nil {
		return nil, ingestValidationError(err)
	}
	canonical, err := json.Marshal(parsed)
	if err != nil {
		return nil, wrapStoreError(err, "encode parsed offer")
	}

	items := ingest.BuildOfferItems(offerID, parsed.Items)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.offerRepo.WithTx(tx).GetForUpdate(ctx, orgID, offerID)
		if err != nil {
			return offerLoadError(err, offerID)
		}
		if err := guardNormalize(locked); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"parsed_json":    domain.JSONDocument(canonical),
			"valid_until":    parsed.ValidUntilTime(),
			"lead_time_days": parsed.LeadTimeDays,
			"terms":          parsed.Terms,
		}
		if parsed.VendorName != nil {
			vendorID, err := s.vendorService.ResolveTx(ctx, tx, orgID, *parsed.VendorName, parsed.VendorEmail)
			if err != nil {
				return err
			}
			updates["vendor_id"] = vendorID
		}

		if err := s.offerRepo.WithTx(tx).UpdateFields(ctx, orgID, offerID, updates); err != nil {
			return err
		}
		return s.offerItemRepo.WithTx(tx).Replace(ctx, offerID, items)
	})
	if err != nil {
		return nil, wrapStoreError(err, "store normalized offer")
	}
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)

	s.logger.Info("offer normalized from text",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offerID.String()),
		zap.Int("items", len(items)),
		zap.Bool("vendor_resolved", parsed.VendorName != nil),
	)

	return &domain.NormalizeTextResultDTO{
		ParsedOffer: canonical,
		Items:       mapper.ToOfferItemDTOs(items),
	}, nil
}

// NormalizeSpreadsheet reads the first sheet of a stored document into the offer's item set.
// Nothing is written unless the sheet yields at least one valid item.
func (s *NormalizeService) NormalizeSpreadsheet(ctx context.Context, orgID, offerID, documentID uuid.UUID) (result *domain.NormalizeSpreadsheetResultDTO, err error) {
	defer func() {
		s.metrics.Normalizations.WithLabelValues(string(domain.SourceTypeExcel), string(outcomeKind(err))).Inc()
	}()

	offer, err := s.offerRepo.GetByID(ctx, orgID, offerID)
	if err != nil {
		return nil, offerLoadError(err, offerID)
	}
	if err := guardNormalize(offer); err != nil {
		return nil, err
	}

	doc, err := s.documentRepo.GetByID(ctx, orgID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("document %s not found", documentID)
		}
		return nil, wrapStoreError(err, "load document")
	}

	format, err := ingest.DetectFormat(doc.Filename, doc.ContentType)
	if err != nil {
		return nil, validationError("%s: %v", doc.Filename, err)
	}

	grid, err := s.readGrid(ctx, doc, format)
	if err != nil {
		return nil, err
	}

	parsedItems, err := ingest.NormalizeGrid(grid)
	if err != nil {
		return nil, ingestValidationError(err)
	}
	if err := ingest.ValidateItems(parsedItems); err != nil {
		return nil, ingestValidationError(err)
	}

	canonical, err := json.Marshal(spreadsheetPayload{Items: parsedItems})
	if err != nil {
		return nil, wrapStoreError(err, "encode parsed sheet")
	}

	items := ingest.BuildOfferItems(offerID, parsedItems)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.offerRepo.WithTx(tx).GetForUpdate(ctx, orgID, offerID)
		if err != nil {
			return offerLoadError(err, offerID)
		}
		if err := guardNormalize(locked); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"parsed_json": domain.JSONDocument(canonical),
		}
		if locked.DocumentID == nil {
			updates["document_id"] = doc.ID
		}
		if err := s.offerRepo.WithTx(tx).UpdateFields(ctx, orgID, offerID, updates); err != nil {
			return err
		}
		if doc.LinkedID == nil {
			if err := s.documentRepo.WithTx(tx).Link(ctx, orgID, doc.ID, domain.LinkedTypeOffer, offerID); err != nil {
				return err
			}
		}
		return s.offerItemRepo.WithTx(tx).Replace(ctx, offerID, items)
	})
	if err != nil {
		return nil, wrapStoreError(err, "store normalized sheet")
	}
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)

	s.logger.Info("offer normalized from spreadsheet",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", offerID.String()),
		zap.String("document_id", documentID.String()),
		zap.String("format", string(format)),
		zap.Int("rows", len(grid)-1),
		zap.Int("items", len(items)),
	)

	return &domain.NormalizeSpreadsheetResultDTO{Items: mapper.ToOfferItemDTOs(items)}, nil
}

func (s *NormalizeService) readGrid(ctx context.Context, doc *domain.Document, format ingest.Format) ([][]string, error) {
	body, err := s.storage.Download(ctx, doc.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, externalError(err, "failed to download document %s", doc.ID)
	}
	defer body.Close()

	grid, err := ingest.ReadGrid(body, format)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, validationError("could not read %s: %v", doc.Filename, err)
	}
	return grid, nil
}

// guardNormalize refuses to rewrite items an order already traces to
func guardNormalize(offer *domain.Offer) error {
	if offer.Status.IsConverted() {
		return conflictError("offer %s is %s; its items can no longer be replaced", offer.ID, offer.Status)
	}
	return nil
}

// outcomeKind is the metrics label for an operation result
func outcomeKind(err error) ErrorKind {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return KindOf(err)
}
