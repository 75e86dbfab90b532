package handler

import (
	"net/http"

	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

type ShipmentHandler struct {
	shipmentService *service.ShipmentService
	logger          *zap.Logger
}

func NewShipmentHandler(shipmentService *service.ShipmentService, logger *zap.Logger) *ShipmentHandler {
	return &ShipmentHandler{shipmentService: shipmentService, logger: logger}
}

// @Summary List shipments
// @Tags Shipments
// @Produce json
// @Success 200 {array} domain.ShipmentDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shipments [get]
func (h *ShipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	shipments, err := h.shipmentService.List(r.Context(), org)
	if err != nil {
		respondServiceError(w, h.logger, "list shipments", err)
		return
	}
	respondJSON(w, http.StatusOK, shipments)
}

// @Summary Get shipment with its events
// @Tags Shipments
// @Produce json
// @Param id path string true "Shipment ID"
// @Success 200 {object} domain.ShipmentDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shipments/{id} [get]
func (h *ShipmentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "shipment")
	if !ok {
		return
	}

	shipment, err := h.shipmentService.GetByID(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "get shipment", err)
		return
	}
	respondJSON(w, http.StatusOK, shipment)
}

// @Summary Advance a shipment to the next milestone
// @Description Appends a tracking event. Without shipmentId the most recent open shipment is used;
// @Description eventIndex is clamped to the milestone catalog.
// @Tags Shipments
// @Accept json
// @Produce json
// @Param request body domain.AdvanceShipmentRequest false "Shipment and milestone"
// @Success 200 {object} domain.AdvanceShipmentResultDTO
// @Failure 404 {object} domain.APIError "No open shipment"
// @Failure 409 {object} domain.APIError "Shipment delivered or milestone behind current status"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /shipments/advance [post]
func (h *ShipmentHandler) Advance(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	var req domain.AdvanceShipmentRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}

	result, err := h.shipmentService.Advance(r.Context(), org, &req)
	if err != nil {
		respondServiceError(w, h.logger, "advance shipment", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
