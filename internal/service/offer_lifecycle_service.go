package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/cache"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/events"
	"github.com/offerflow/offerflow-api/internal/ingest"
	"github.com/offerflow/offerflow-api/internal/mapper"
	"github.com/offerflow/offerflow-api/internal/metrics"
	"github.com/offerflow/offerflow-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OfferLifecycleService guards the reviewer-driven status changes of an offer.
// Ordering happens through conversion and delivery progress through shipments.
type OfferLifecycleService struct {
	offerRepo     *repository.OfferRepository
	offerItemRepo *repository.OfferItemRepository
	kpiCache      cache.KPICache
	publisher     events.Publisher
	metrics       *metrics.Registry
	logger        *zap.Logger
	db            *gorm.DB
}

func NewOfferLifecycleService(
	offerRepo *repository.OfferRepository,
	offerItemRepo *repository.OfferItemRepository,
	kpiCache cache.KPICache,
	publisher events.Publisher,
	reg *metrics.Registry,
	logger *zap.Logger,
	db *gorm.DB,
) *OfferLifecycleService {
	return &OfferLifecycleService{
		offerRepo:     offerRepo,
		offerItemRepo: offerItemRepo,
		kpiCache:      kpiCache,
		publisher:     publisher,
		metrics:       reg,
		logger:        logger,
		db:            db,
	}
}

// Approve moves a new offer to negotiating. Reviewer edits in req are saved with the status change.
func (s *OfferLifecycleService) Approve(ctx context.Context, orgID, id uuid.UUID, req *domain.ApproveOfferRequest) (*domain.OfferDetailDTO, error) {
	updates := map[string]interface{}{}
	if req != nil {
		if req.ValidUntil != nil {
			t, err := ingest.ParseDate(*req.ValidUntil)
			if err != nil {
				return nil, validationError("validUntil must be a date formatted as YYYY-MM-DD")
			}
			updates["valid_until"] = t
		}
		if req.LeadTimeDays != nil {
			if *req.LeadTimeDays < 0 {
				return nil, validationError("leadTimeDays must not be negative")
			}
			updates["lead_time_days"] = *req.LeadTimeDays
		}
		if req.Notes != nil {
			updates["notes"] = *req.Notes
		}
	}

	err := s.transition(ctx, orgID, id, domain.OfferStatusNegotiating, updates, func(tx *gorm.DB, offer *domain.Offer) error {
		count, err := s.offerItemRepo.WithTx(tx).CountByOffer(ctx, offer.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return preconditionError("offer %s has no items; normalize it before approving", offer.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.afterTransition(ctx, orgID, id, events.TypeOfferApproved, domain.OfferStatusNegotiating)
}

// Accept records that the vendor's terms were agreed
func (s *OfferLifecycleService) Accept(ctx context.Context, orgID, id uuid.UUID) (*domain.OfferDetailDTO, error) {
	if err := s.transition(ctx, orgID, id, domain.OfferStatusAccepted, nil, nil); err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, orgID, id, events.TypeOfferAccepted, domain.OfferStatusAccepted)
}

// transition locks the offer, checks the move against the lifecycle table and the extra guard,
// then writes the status conditionally on the status it read
func (s *OfferLifecycleService) transition(ctx context.Context, orgID, id uuid.UUID, to domain.OfferStatus, updates map[string]interface{}, guard func(tx *gorm.DB, offer *domain.Offer) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		offers := s.offerRepo.WithTx(tx)

		offer, err := offers.GetForUpdate(ctx, orgID, id)
		if err != nil {
			return offerLoadError(err, id)
		}
		if !offer.Status.CanTransitionTo(to) {
			return conflictError("illegal transition from %s to %s", offer.Status, to)
		}
		if guard != nil {
			if err := guard(tx, offer); err != nil {
				return err
			}
		}

		rows, err := offers.TransitionStatus(ctx, orgID, id, offer.Status, to, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return conflictError("offer %s changed status concurrently", id)
		}
		return nil
	})
	if err != nil {
		return wrapStoreError(err, "update offer status")
	}
	return nil
}

func (s *OfferLifecycleService) afterTransition(ctx context.Context, orgID, id uuid.UUID, eventType string, to domain.OfferStatus) (*domain.OfferDetailDTO, error) {
	s.metrics.StatusTransitions.WithLabelValues(string(to)).Inc()
	s.logger.Info("offer status changed",
		zap.String("org_id", orgID.String()),
		zap.String("offer_id", id.String()),
		zap.String("status", string(to)),
	)
	events.PublishAfterCommit(ctx, s.publisher, s.logger, events.NewEvent(eventType, orgID, id, map[string]string{
		"status": string(to),
	}))
	invalidateKPI(ctx, s.kpiCache, s.logger, orgID)

	offer, err := s.offerRepo.GetWithItems(ctx, orgID, id)
	if err != nil {
		return nil, offerLoadError(err, id)
	}
	dto := mapper.ToOfferDetailDTO(offer)
	return &dto, nil
}
