package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/domain"
	"go.uber.org/zap"
)

// OrganizationStore is the part of the organization repository the auth handler needs
type OrganizationStore interface {
	EnsureExists(ctx context.Context, id uuid.UUID, name string) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}

type AuthHandler struct {
	orgs   OrganizationStore
	logger *zap.Logger
}

func NewAuthHandler(orgs OrganizationStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{orgs: orgs, logger: logger}
}

// Me godoc
// @Summary Get current authenticated user
// @Description Returns the caller and its organization. The organization row is created on first sight.
// @Tags Auth
// @Produce json
// @Success 200 {object} domain.AuthUserDTO
// @Failure 401 {object} domain.APIError "Unauthorized"
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok || userCtx.OrgID == uuid.Nil {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := h.orgs.EnsureExists(r.Context(), userCtx.OrgID, "Organization "+userCtx.OrgID.String()[:8]); err != nil {
		h.logger.Error("failed to register organization",
			zap.String("org_id", userCtx.OrgID.String()),
			zap.Error(err),
		)
		respondWithError(w, http.StatusInternalServerError, "Failed to load organization")
		return
	}
	org, err := h.orgs.GetByID(r.Context(), userCtx.OrgID)
	if err != nil {
		h.logger.Error("failed to load organization", zap.String("org_id", userCtx.OrgID.String()), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to load organization")
		return
	}

	respondJSON(w, http.StatusOK, domain.AuthUserDTO{
		UserID:      userCtx.UserID,
		DisplayName: userCtx.DisplayName,
		Email:       userCtx.Email,
		AuthMethod:  userCtx.AuthMethod,
		OrgID:       org.ID,
		OrgName:     org.Name,
		OrgCurrency: org.DefaultCurrency,
	})
}
