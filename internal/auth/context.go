package auth

import (
	"context"

	"github.com/google/uuid"
)

// SystemUserID identifies requests authenticated with the API key
const SystemUserID = "system"

// UserContext holds the authenticated caller. Every request acts inside exactly one organization.
type UserContext struct {
	UserID      string
	OrgID       uuid.UUID
	DisplayName string
	Email       string
	AuthMethod  string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok
}

// MustFromContext extracts user context or panics
func MustFromContext(ctx context.Context) *UserContext {
	user, ok := FromContext(ctx)
	if !ok {
		panic("user context not found in context")
	}
	return user
}

// Actor returns the id recorded in created_by columns for the caller in ctx
func Actor(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok && user.UserID != "" {
		return user.UserID
	}
	return SystemUserID
}

// IsSystem reports whether the caller authenticated with the API key
func (u *UserContext) IsSystem() bool {
	return u.AuthMethod == MethodAPIKey
}
