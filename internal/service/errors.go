package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ErrorKind classifies a service failure. Handlers map kinds to HTTP status codes.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindNotFound        ErrorKind = "not_found"
	KindPrecondition    ErrorKind = "precondition_failed"
	KindConflict        ErrorKind = "conflict"
	KindExternalService ErrorKind = "external_service_error"
	KindPersistence     ErrorKind = "persistence_error"
)

// Error is the error type returned by every service operation
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Detail is the message safe to show to API callers. The wrapped cause is left out.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works on wrapped errors
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrPrecondition    = &Error{Kind: KindPrecondition}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrPersistence     = &Error{Kind: KindPersistence}
)

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func preconditionError(format string, args ...interface{}) error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func externalError(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindExternalService, Message: fmt.Sprintf(format, args...), Err: err}
}

// PublicDetail returns the caller-facing message of a service error
func PublicDetail(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Detail()
	}
	return err.Error()
}

// KindOf returns the kind of a service error, or persistence_error for anything unclassified
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPersistence
}

// wrapStoreError classifies an error coming out of a repository or transaction.
// Already classified errors pass through untouched.
func wrapStoreError(err error, action string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Message: action, Err: err}
	}
	if isUniqueViolation(err) {
		return &Error{Kind: KindConflict, Message: "cannot " + action + ": a conflicting record already exists", Err: err}
	}
	return &Error{Kind: KindPersistence, Message: "failed to " + action, Err: err}
}

// isUniqueViolation detects unique constraint failures across postgres and sqlite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505") ||
		strings.Contains(msg, "unique constraint failed")
}
