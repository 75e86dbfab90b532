package handler

import (
	"net/http"

	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// @Summary Get order
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.OrderDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /orders/{id} [get]
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := h.orderService.GetByID(r.Context(), org, id)
	if err != nil {
		respondServiceError(w, h.logger, "get order", err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
