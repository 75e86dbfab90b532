package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/repository"
	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

type OfferHandler struct {
	offerService      *service.OfferService
	normalizeService  *service.NormalizeService
	lifecycleService  *service.OfferLifecycleService
	conversionService *service.ConversionService
	maxUploadMB       int64
	logger            *zap.Logger
}

func NewOfferHandler(
	offerService *service.OfferService,
	normalizeService *service.NormalizeService,
	lifecycleService *service.OfferLifecycleService,
	conversionService *service.ConversionService,
	maxUploadMB int64,
	logger *zap.Logger,
) *OfferHandler {
	return &OfferHandler{
		offerService:      offerService,
		normalizeService:  normalizeService,
		lifecycleService:  lifecycleService,
		conversionService: conversionService,
		maxUploadMB:       maxUploadMB,
		logger:            logger,
	}
}

// @Summary List offers
// @Tags Offers
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(50)
// @Param status query string false "Filter by status" Enums(new, negotiating, accepted, ordered, in_transit, delivered)
// @Param sourceType query string false "Filter by source" Enums(email, excel, manual)
// @Param vendorId query string false "Filter by vendor ID"
// @Param sortBy query string false "Sort field" Enums(createdAt, updatedAt, status, validUntil)
// @Param sortOrder query string false "Sort order" Enums(asc, desc) default(desc)
// @Success 200 {object} domain.PaginatedResponse
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers [get]
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var filters repository.OfferFilters
	if s := q.Get("status"); s != "" {
		status := domain.OfferStatus(s)
		filters.Status = &status
	}
	if s := q.Get("sourceType"); s != "" {
		source := domain.SourceType(s)
		filters.SourceType = &source
	}
	if v := q.Get("vendorId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid vendorId: must be a valid UUID")
			return
		}
		filters.VendorID = &id
	}

	sort := repository.DefaultSortConfig()
	if sortBy := q.Get("sortBy"); sortBy != "" {
		sort.Field = sortBy
	}
	if sortOrder := q.Get("sortOrder"); sortOrder != "" {
		sort.Order = repository.ParseSortOrder(sortOrder)
	}

	page, pageSize := pagination(r)
	result, err := h.offerService.List(r.Context(), org, filters, sort, page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, "list offers", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// @Summary Create offer from pasted text
// @Description Stores the raw text of a vendor email. Run normalize/text to extract items.
// @Tags Offers
// @Accept json
// @Produce json
// @Param request body domain.CreateTextOfferRequest true "Raw offer text"
// @Success 201 {object} domain.OfferDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/text [post]
func (h *OfferHandler) CreateFromText(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	var req domain.CreateTextOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	offer, err := h.offerService.CreateFromText(r.Context(), org, &req)
	if err != nil {
		respondServiceError(w, h.logger, "create offer from text", err)
		return
	}

	w.Header().Set("Location", "/api/v1/offers/"+offer.ID.String())
	respondJSON(w, http.StatusCreated, offer)
}

// @Summary Upload a spreadsheet offer
// @Description Stores an .xlsx or .csv file and creates a new offer linked to it.
// @Tags Offers
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Spreadsheet"
// @Success 201 {object} domain.UploadOfferResponse
// @Failure 400 {object} domain.APIError
// @Failure 413 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/upload [post]
func (h *OfferHandler) Upload(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	limit := h.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large: maximum size is %dMB", h.maxUploadMB))
			return
		}
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid file upload: file field is required")
		return
	}
	defer file.Close()

	resp, err := h.offerService.CreateFromDocument(r.Context(), org, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondServiceError(w, h.logger, "upload offer document", err)
		return
	}

	w.Header().Set("Location", "/api/v1/offers/"+resp.Offer.ID.String())
	respondJSON(w, http.StatusCreated, resp)
}

// @Summary Create offer from hand-entered items
// @Tags Offers
// @Accept json
// @Produce json
// @Param request body domain.CreateManualOfferRequest true "Offer with items"
// @Success 201 {object} domain.OfferDetailDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers [post]
func (h *OfferHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	var req domain.CreateManualOfferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	offer, err := h.offerService.CreateManual(r.Context(), org, &req)
	if err != nil {
		respondServiceError(w, h.logger, "create manual offer", err)
		return
	}

	w.Header().Set("Location", "/api/v1/offers/"+offer.ID.String())
	respondJSON(w, http.StatusCreated, offer)
}

// @Summary Get offer
// @Tags Offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} domain.OfferDetailDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id} [get]
func (h *OfferHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	offer, err := h.offerService.GetByID(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "get offer", err)
		return
	}

	respondJSON(w, http.StatusOK, offer)
}

// @Summary Update offer notes
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param request body domain.UpdateOfferNotesRequest true "Notes"
// @Success 200 {object} domain.OfferDetailDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/notes [put]
func (h *OfferHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	var req domain.UpdateOfferNotesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	offer, err := h.offerService.UpdateNotes(r.Context(), org, id, req.Notes)
	if err != nil {
		respondServiceError(w, h.logger, "update offer notes", err)
		return
	}

	respondJSON(w, http.StatusOK, offer)
}
