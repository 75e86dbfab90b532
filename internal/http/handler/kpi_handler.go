package handler

import (
	"net/http"

	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

type KPIHandler struct {
	kpiService *service.KPIService
	logger     *zap.Logger
}

func NewKPIHandler(kpiService *service.KPIService, logger *zap.Logger) *KPIHandler {
	return &KPIHandler{kpiService: kpiService, logger: logger}
}

// @Summary KPI snapshot
// @Description Revenue, conversion rate, average lead time and top vendors. avgMarginPct is always null.
// @Tags KPI
// @Produce json
// @Success 200 {object} domain.KPISnapshotDTO
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /kpi [get]
func (h *KPIHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}

	snapshot, err := h.kpiService.Snapshot(r.Context(), org)
	if err != nil {
		respondServiceError(w, h.logger, "compute KPI snapshot", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}
