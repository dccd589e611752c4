package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := NewJWTService(testSecret, "erp-ledger")
	input := TokenInput{TenantID: uuid.New(), UserID: uuid.New(), Username: "clerk", Roles: []string{RoleLedgerAdmin}}

	token, expiresAt, err := svc.Issue(input)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, input.TenantID.String(), claims.TenantID)
	assert.True(t, claims.HasRole(RoleLedgerAdmin))
	assert.False(t, claims.HasRole("ledger:viewer"))

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, input.UserID, actor.ID)
	assert.Equal(t, input.TenantID, actor.TenantID)
	assert.Equal(t, "clerk", actor.Name)
}

func TestJWTService_Validate_Rejections(t *testing.T) {
	svc := NewJWTService(testSecret, "erp-ledger")
	input := TokenInput{TenantID: uuid.New(), UserID: uuid.New()}

	t.Run("expired", func(t *testing.T) {
		past := NewJWTService(testSecret, "erp-ledger")
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, err := past.Issue(input)
		require.NoError(t, err)

		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewJWTService("another-secret-key-of-32-characters", "erp-ledger").Issue(input)
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, _, err := NewJWTService(testSecret, "someone-else").Issue(input)
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TenantID: input.TenantID.String()}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing tenant", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "erp-ledger",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			UserID: uuid.NewString(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.Validate(token)
		assert.ErrorIs(t, err, ErrMissingTenantID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTService_Issue_Validation(t *testing.T) {
	_, _, err := NewJWTService("", "x").Issue(TokenInput{TenantID: uuid.New(), UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, _, err = NewJWTService(testSecret, "x").Issue(TokenInput{UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingTenantID)

	_, _, err = NewJWTService(testSecret, "x").Issue(TokenInput{TenantID: uuid.New()})
	assert.ErrorIs(t, err, ErrMissingUserID)
}
