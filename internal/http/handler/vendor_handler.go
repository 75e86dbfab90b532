package handler

import (
	"net/http"

	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

type VendorHandler struct {
	vendorService *service.VendorService
	logger        *zap.Logger
}

func NewVendorHandler(vendorService *service.VendorService, logger *zap.Logger) *VendorHandler {
	return &VendorHandler{vendorService: vendorService, logger: logger}
}

// @Summary List vendors
// @Tags Vendors
// @Produce json
// @Success 200 {array} domain.VendorDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /vendors [get]
func (h *VendorHandler) List(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	vendors, err := h.vendorService.List(r.Context(), org)
	if err != nil {
		respondServiceError(w, h.logger, "list vendors", err)
		return
	}
	respondJSON(w, http.StatusOK, vendors)
}

// @Summary Get vendor
// @Tags Vendors
// @Produce json
// @Param id path string true "Vendor ID"
// @Success 200 {object} domain.VendorDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /vendors/{id} [get]
func (h *VendorHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "vendor")
	if !ok {
		return
	}

	vendor, err := h.vendorService.GetByID(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "get vendor", err)
		return
	}
	respondJSON(w, http.StatusOK, vendor)
}

// @Summary Resolve a vendor by name
// @Description Returns the vendor whose name matches case-insensitively, creating it if none exists.
// @Tags Vendors
// @Accept json
// @Produce json
// @Param request body domain.ResolveVendorRequest true "Vendor name and optional email"
// @Success 200 {object} domain.ResolveVendorResultDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /vendors/resolve [post]
func (h *VendorHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	var req domain.ResolveVendorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: malformed JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	id, err := h.vendorService.Resolve(r.Context(), org, req.Name, req.Email)
	if err != nil {
		respondServiceError(w, h.logger, "resolve vendor", err)
		return
	}
	respondJSON(w, http.StatusOK, domain.ResolveVendorResultDTO{VendorID: id})
}
