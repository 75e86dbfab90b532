package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/auth"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/service"
	"go.uber.org/zap"
)

var validate = newValidator()

// newValidator reports fields by their JSON names so error maps match the request body
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondValidationError sends a standardized validation error response with specific field messages
func respondValidationError(w http.ResponseWriter, err error) {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = formatValidationError(fe)
		}
	}

	respondAPIError(w, domain.APIError{
		Type:   domain.ErrorTypeValidation,
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: "One or more fields failed validation",
		Errors: fields,
	})
}

// fieldPath drops the struct name from a validator namespace, e.g. items[1].description
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// formatValidationError creates a human-readable validation error message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "Must be a valid email address"
	case "max":
		return fmt.Sprintf("Must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("Must contain at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", fe.Param())
	case "datetime":
		return "Must be a date formatted as YYYY-MM-DD"
	default:
		return domain.GetValidationMessage(fe.Tag())
	}
}

// respondWithError sends a standardized JSON error response
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondAPIError(w, domain.APIError{
		Type:   getErrorType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: message,
	})
}

func respondAPIError(w http.ResponseWriter, apiErr domain.APIError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}

// getErrorType returns the appropriate error type for an HTTP status code
func getErrorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return domain.ErrorTypeBadRequest
	case http.StatusUnauthorized:
		return domain.ErrorTypeUnauthorized
	case http.StatusForbidden:
		return domain.ErrorTypeForbidden
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusConflict:
		return domain.ErrorTypeConflict
	case http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimited
	default:
		return domain.ErrorTypeInternal
	}
}

// statusForKind maps a service error kind to its HTTP status
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindPrecondition:
		return http.StatusUnprocessableEntity
	case service.KindConflict:
		return http.StatusConflict
	case service.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError writes the problem response for an error returned by a service.
// Only the service message reaches the caller; wrapped causes are logged, never exposed.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info(op+" cancelled", zap.Error(err))
		respondAPIError(w, domain.APIError{
			Type:   domain.ErrorTypeInternal,
			Title:  "Request Cancelled",
			Status: http.StatusServiceUnavailable,
			Detail: "The request was cancelled before it completed",
		})
		return
	}

	kind := service.KindOf(err)
	status := statusForKind(kind)
	detail := service.PublicDetail(err)

	switch {
	case status >= http.StatusInternalServerError && kind == service.KindPersistence:
		logger.Error(op+" failed", zap.Error(err))
		detail = "An internal error occurred"
	case status >= http.StatusInternalServerError:
		logger.Error(op+" failed", zap.Error(err))
	default:
		logger.Debug(op+" rejected", zap.String("kind", string(kind)), zap.Error(err))
	}

	respondAPIError(w, domain.APIError{
		Type:   string(kind),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// decodeJSON reads a JSON request body. Unknown fields are rejected.
func decodeJSON(r *http.Request, target interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty
func decodeOptionalJSON(r *http.Request, target interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r, target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// orgID returns the organization the authenticated caller acts for
func orgID(r *http.Request) (uuid.UUID, bool) {
	userCtx, ok := auth.FromContext(r.Context())
	if !ok || userCtx.OrgID == uuid.Nil {
		return uuid.Nil, false
	}
	return userCtx.OrgID, true
}

// requireOrg writes 401 and returns false when the request carries no organization
func requireOrg(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := orgID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "No organization in request context")
	}
	return id, ok
}

// pathUUID parses a uuid URL parameter, writing 400 when it is malformed
func pathUUID(w http.ResponseWriter, r *http.Request, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s ID: must be a valid UUID", label))
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads page and pageSize query parameters; the repository clamps them
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}
