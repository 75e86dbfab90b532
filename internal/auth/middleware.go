package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"go.uber.org/zap"
)

// OrganizationHeader selects the organization for API key callers
const OrganizationHeader = "X-Organization-ID"

var (
	errBadAPIKey      = errors.New("invalid API key")
	errNoOrganization = errors.New(OrganizationHeader + " header must be an organization id")
	errNoCredentials  = errors.New("missing authorization header")
	errBadScheme      = errors.New("invalid authorization header format")
)

// Middleware resolves the caller of every request under /api/v1
type Middleware struct {
	validator *TokenValidator
	apiKey    string
	logger    *zap.Logger
}

func NewMiddleware(cfg *config.AuthConfig, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: NewTokenValidator(cfg),
		apiKey:    cfg.APIKey,
		logger:    logger,
	}
}

// Authenticate accepts either x-api-key with X-Organization-ID or a bearer token and
// stores the resulting UserContext. Anything else is answered with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		user, err := m.resolve(r)
		if err != nil {
			m.logger.Warn("authentication failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			unauthorized(w, err)
			return
		}

		m.logger.Debug("request authenticated",
			zap.String("auth_type", user.AuthMethod),
			zap.String("user_id", user.UserID),
			zap.String("org_id", user.OrgID.String()),
			zap.Duration("auth_duration", time.Since(start)),
		)
		next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), user)))
	})
}

func (m *Middleware) resolve(r *http.Request) (*UserContext, error) {
	if key := r.Header.Get("x-api-key"); key != "" {
		if m.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
			return nil, errBadAPIKey
		}
		orgID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(OrganizationHeader)))
		if err != nil || orgID == uuid.Nil {
			return nil, errNoOrganization
		}
		return &UserContext{
			UserID:      SystemUserID,
			OrgID:       orgID,
			DisplayName: "System",
			AuthMethod:  MethodAPIKey,
		}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, errBadScheme
	}
	return m.validator.ValidateToken(token)
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="offerflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(domain.APIError{
		Type:   domain.ErrorTypeUnauthorized,
		Title:  http.StatusText(http.StatusUnauthorized),
		Status: http.StatusUnauthorized,
		Detail: err.Error(),
	})
}
