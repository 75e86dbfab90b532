package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/config"
)

const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingOrg   = errors.New("token missing org_id claim")
)

// Claims are the bearer token claims. sub is the user and org_id the organization the user acts in.
type Claims struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator validates HS256 bearer tokens
type TokenValidator struct {
	secret []byte
	issuer string
}

func NewTokenValidator(cfg *config.AuthConfig) *TokenValidator {
	return &TokenValidator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
	}
}

// ValidateToken validates a token and returns the caller it identifies
func (v *TokenValidator) ValidateToken(tokenString string) (*UserContext, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	if claims.OrgID == "" {
		return nil, ErrMissingOrg
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		return nil, fmt.Errorf("%w: org_id is not a uuid", ErrInvalidToken)
	}

	return &UserContext{
		UserID:      claims.Subject,
		OrgID:       orgID,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AuthMethod:  MethodJWT,
	}, nil
}

// SignToken issues a token for a user in an organization. Used by tests and local tooling.
func (v *TokenValidator) SignToken(userID string, orgID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		OrgID: orgID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
