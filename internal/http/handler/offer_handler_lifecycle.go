package handler

// Normalization, status transitions and conversion for the OfferHandler.

import (
	"net/http"

	"github.com/offerflow/offerflow-api/internal/domain"
	"go.uber.org/zap"
)

// NormalizeText godoc
// @Summary Extract items from the offer's raw text
// @Description Sends the stored text to the structured extractor and replaces the offer's items
// @Description with the validated result. Nothing is written when the result is invalid.
// @Tags Offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} domain.NormalizeTextResultDTO
// @Failure 400 {object} domain.APIError "Extractor output failed validation"
// @Failure 404 {object} domain.APIError "Offer not found or has no raw text"
// @Failure 409 {object} domain.APIError "Offer already converted"
// @Failure 502 {object} domain.APIError "Extractor unavailable"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/normalize/text [post]
func (h *OfferHandler) NormalizeText(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	result, err := h.normalizeService.NormalizeFreeText(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "normalize offer text", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// NormalizeSpreadsheet godoc
// @Summary Read items from an uploaded spreadsheet
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param request body domain.NormalizeSpreadsheetRequest true "Document to read"
// @Success 200 {object} domain.NormalizeSpreadsheetResultDTO
// @Failure 400 {object} domain.APIError "Sheet has no usable rows or columns"
// @Failure 404 {object} domain.APIError "Offer or document not found"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/normalize/spreadsheet [post]
func (h *OfferHandler) NormalizeSpreadsheet(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	var req domain.NormalizeSpreadsheetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	result, err := h.normalizeService.NormalizeSpreadsheet(r.Context(), org, id, req.DocumentID)
	if err != nil {
		respondServiceError(w, h.logger, "normalize offer spreadsheet", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Approve godoc
// @Summary Approve a reviewed offer
// @Description Moves a new offer to negotiating. Optional reviewer edits are saved with the change.
// @Tags Offers
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param request body domain.ApproveOfferRequest false "Reviewer edits"
// @Success 200 {object} domain.OfferDetailDTO
// @Failure 409 {object} domain.APIError "Offer is not new"
// @Failure 422 {object} domain.APIError "Offer has no items"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/approve [post]
func (h *OfferHandler) Approve(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	var req domain.ApproveOfferRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	offer, err := h.lifecycleService.Approve(r.Context(), org, id, &req)
	if err != nil {
		respondServiceError(w, h.logger, "approve offer", err)
		return
	}

	respondJSON(w, http.StatusOK, offer)
}

// Accept godoc
// @Summary Accept a negotiated offer
// @Tags Offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} domain.OfferDetailDTO
// @Failure 409 {object} domain.APIError "Offer is not negotiating"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/accept [post]
func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	offer, err := h.lifecycleService.Accept(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "accept offer", err)
		return
	}

	respondJSON(w, http.StatusOK, offer)
}

// Convert godoc
// @Summary Convert an offer into an order
// @Description Creates the order, its items and a pending shipment in one transaction and marks the offer ordered.
// @Tags Offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 201 {object} domain.ConversionResultDTO
// @Failure 404 {object} domain.APIError "Offer not found"
// @Failure 409 {object} domain.APIError "Offer already converted"
// @Failure 422 {object} domain.APIError "Offer has no vendor, no items, or is not negotiating or accepted"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /offers/{id}/convert [post]
func (h *OfferHandler) Convert(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "offer")
	if !ok {
		return
	}

	result, err := h.conversionService.Convert(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "convert offer", err)
		return
	}

	h.logger.Debug("offer converted via API",
		zap.String("offer_id", id.String()),
		zap.String("order_id", result.OrderID.String()),
	)
	w.Header().Set("Location", "/api/v1/orders/"+result.OrderID.String())
	respondJSON(w, http.StatusCreated, result)
}
