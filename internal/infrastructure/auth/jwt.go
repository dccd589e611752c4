// Package auth verifies the bearer tokens that identify API callers.
package auth

import (
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// RoleLedgerAdmin grants the operator endpoints (audit, outbox)
const RoleLedgerAdmin = "ledger:admin"

// Claims are the ledger's JWT claims. TenantID scopes every request.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the token grants role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Actor converts validated claims to the posting actor
func (c *Claims) Actor() (ledger.Actor, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return ledger.Actor{}, ErrMissingTenantID
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return ledger.Actor{}, ErrMissingUserID
	}
	return ledger.Actor{ID: userID, TenantID: tenantID, Name: c.Username}, nil
}

// TokenInput describes a token to issue
type TokenInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Username string
	Roles    []string
	TTL      time.Duration
}

// JWTService signs and validates HS256 access tokens
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a JWT service
func NewJWTService(secret, issuer string) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for input. Used by operators and tests; end-user
// tokens normally come from the identity service sharing the secret.
func (s *JWTService) Issue(input TokenInput) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if input.TenantID == uuid.Nil {
		return "", time.Time{}, ErrMissingTenantID
	}
	if input.UserID == uuid.Nil {
		return "", time.Time{}, ErrMissingUserID
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: input.TenantID.String(),
		UserID:   input.UserID.String(),
		Username: input.Username,
		Roles:    input.Roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks signature, expiry, issuer and the tenant claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
