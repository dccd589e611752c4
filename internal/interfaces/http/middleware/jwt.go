// Package middleware provides the gin middleware of the ledger HTTP API.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/auth"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context keys for JWT data
const (
	JWTClaimsKey = "jwt_claims"
	JWTActorKey  = "jwt_actor"

	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates a bearer token and returns its claims
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// caller's claims and actor on the gin context. The tenant of every
// request comes from the token.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, "Missing token")
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			code := dto.ErrCodeUnauthorized
			if errors.Is(err, auth.ErrExpiredToken) {
				code = dto.ErrCodeTokenExpired
			}
			logger.GetGinLogger(c).Debug("token rejected", zap.Error(err))
			abortUnauthorized(c, code, "Token validation failed: "+err.Error())
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			abortUnauthorized(c, dto.ErrCodeUnauthorized, err.Error())
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTActorKey, actor)

		ctx := c.Request.Context()
		ctx, reqLog := logger.WithTenantID(ctx, logger.FromContext(ctx), claims.TenantID)
		ctx, reqLog = logger.WithActorID(ctx, reqLog, claims.UserID)
		c.Set("logger", reqLog)
		c.Request = c.Request.WithContext(ctx)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.String(telemetry.SpanAttrTenantID, claims.TenantID),
				attribute.String("user_id", claims.UserID),
			)
		}
		c.Next()
	}
}

// RequireRole rejects callers whose token does not grant role. It must run after JWTAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponse("FORBIDDEN", "Role "+role+" is required", c.GetString(logger.RequestIDKey)))
			return
		}
		c.Next()
	}
}

// GetClaims returns the validated claims, or nil on unauthenticated routes
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(JWTClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// GetActor returns the caller as a posting actor
func GetActor(c *gin.Context) (ledger.Actor, bool) {
	v, ok := c.Get(JWTActorKey)
	if !ok {
		return ledger.Actor{}, false
	}
	actor, ok := v.(ledger.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="ledger"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, message, c.GetString(logger.RequestIDKey)))
}
