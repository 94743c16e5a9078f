package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService(t *testing.T) {
	svc := NewJWTService("test-secret-0123456789abcdef01234567", "stockledger", "")

	t.Run("round trip", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)

		claims, err := svc.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "tenant-1", claims.TenantID)
		assert.Equal(t, "alice", claims.Username)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-1", "tenant-1", "alice", -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTService("another-secret-0123456789abcdef0123", "stockledger", "")
		token, err := other.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTService("test-secret-0123456789abcdef01234567", "someone-else", "")
		token, err := other.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing tenant rejected", func(t *testing.T) {
		token, err := svc.GenerateAccessToken("user-1", "", "alice", time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("audience enforced when configured", func(t *testing.T) {
		issuer := NewJWTService("test-secret-0123456789abcdef01234567", "stockledger", "ledger-api")
		token, err := issuer.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)

		_, err = issuer.ValidateAccessToken(token)
		assert.NoError(t, err)

		noAudience, err := svc.GenerateAccessToken("user-1", "tenant-1", "alice", time.Minute)
		require.NoError(t, err)
		_, err = issuer.ValidateAccessToken(noAudience)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
