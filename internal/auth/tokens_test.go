// internal/auth/tokens_test.go
package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"translator-back/internal/database"
	"translator-back/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	return NewTokenService(db, "access-secret", "refresh-secret", time.Minute, 7*24*time.Hour)
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	s := newTestService(t)

	token, err := s.IssueAccessToken("user-1")
	require.NoError(t, err)

	claims, err := s.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	s := newTestService(t)
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := s.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = s.ValidateAccessToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrInvalidToken))
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	s := newTestService(t)

	token, err := s.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = Validate(token, []byte("other"))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = s.ValidateAccessToken("not-a-jwt")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	s := newTestService(t)

	refresh, _, err := s.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = s.ValidateAccessToken(refresh)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRotateRefreshToken_InvalidatesPrevious(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, _, err := s.RotateRefreshToken(ctx, "user-1")
	require.NoError(t, err)
	claims, err := s.ValidateRefreshToken(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	second, exp, err := s.RotateRefreshToken(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, exp.After(time.Now().Add(6*24*time.Hour)))

	_, err = s.ValidateRefreshToken(ctx, first)
	assert.True(t, errors.Is(err, ErrInvalidToken), "stale token must be rejected")

	_, err = s.ValidateRefreshToken(ctx, second)
	assert.NoError(t, err)

	var n int64
	require.NoError(t, s.db.Model(&models.RefreshToken{}).Where("user_id = ?", "user-1").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRotateRefreshToken_OtherUsersUntouched(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, _, err := s.RotateRefreshToken(ctx, "alice")
	require.NoError(t, err)
	_, _, err = s.RotateRefreshToken(ctx, "bob")
	require.NoError(t, err)

	_, err = s.ValidateRefreshToken(ctx, alice)
	assert.NoError(t, err)
}

func TestValidateRefreshToken_NotStored(t *testing.T) {
	s := newTestService(t)

	token, _, err := s.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = s.ValidateRefreshToken(context.Background(), token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestRevokeRefreshTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	token, _, err := s.RotateRefreshToken(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, s.RevokeRefreshTokens(ctx, "user-1"))

	_, err = s.ValidateRefreshToken(ctx, token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("abc")
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, HashToken("abc"))
	assert.NotEqual(t, h1, HashToken("abd"))
}
