package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage/memory"
	"github.com/rryowa/sessiongate/internal/util"
)

func newTestTokenService() (*TokenService, *memory.InMemorySessionManager) {
	sessions := memory.NewSessionRepository(zap.NewNop().Sugar())
	cfg := &util.TokenConfig{
		JwtSecretKey: []byte("test-secret"),
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	}
	return NewTokenService(cfg, sessions, memory.NewTokenStorage()), sessions
}

var testUser = models.User{ID: "u-1", Username: "alice", Email: "alice@example.com", Roles: []models.Role{models.RoleUser}}

func TestAccessTokenRoundTrip(t *testing.T) {
	ts, _ := newTestTokenService()
	ctx := context.Background()

	token, jti, err := ts.CreateAccessToken(testUser, time.Now())
	require.NoError(t, err)

	claims, err := ts.ValidateAccessToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []models.Role{models.RoleUser}, claims.Roles)
}

func TestValidateAccessTokenRejects(t *testing.T) {
	ts, _ := newTestTokenService()
	ctx := context.Background()

	expired, _, err := ts.CreateAccessToken(testUser, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ts.ValidateAccessToken(ctx, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	other, _ := newTestTokenService()
	other.JwtSecretKey = []byte("another-secret")
	foreign, _, err := other.CreateAccessToken(testUser, time.Now())
	require.NoError(t, err)
	_, err = ts.ValidateAccessToken(ctx, foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	hs256 := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := hs256.SignedString(ts.JwtSecretKey)
	require.NoError(t, err)
	_, err = ts.ValidateAccessToken(ctx, signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ts.ValidateAccessToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestInvalidateAccessToken(t *testing.T) {
	ts, _ := newTestTokenService()
	ctx := context.Background()

	token, _, err := ts.CreateAccessToken(testUser, time.Now())
	require.NoError(t, err)
	claims, err := ts.ValidateAccessToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, ts.InvalidateAccessToken(ctx, claims))

	_, err = ts.ValidateAccessToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	ts, sessions := newTestTokenService()
	ctx := context.Background()

	pair, err := ts.IssuePair(ctx, testUser, ClientMeta{UserAgent: "test"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, sessions.Count())

	session, err := ts.ConsumeRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", session.UserID)
	assert.Equal(t, "test", session.UserAgent)

	_, err = ts.ConsumeRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFoundOrUsed)
}

func TestConsumeRefreshTokenRejectsTamperedVerifier(t *testing.T) {
	ts, _ := newTestTokenService()
	ctx := context.Background()

	pair, err := ts.IssuePair(ctx, testUser, ClientMeta{}, time.Now())
	require.NoError(t, err)

	selector, _, found := strings.Cut(pair.RefreshToken, ".")
	require.True(t, found)

	_, err = ts.ConsumeRefreshToken(ctx, selector+".forged")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = ts.ConsumeRefreshToken(ctx, "no-separator")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestRevokeRefreshTokens(t *testing.T) {
	ts, sessions := newTestTokenService()
	ctx := context.Background()

	first, err := ts.IssuePair(ctx, testUser, ClientMeta{}, time.Now())
	require.NoError(t, err)
	_, err = ts.IssuePair(ctx, testUser, ClientMeta{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, sessions.Count())

	require.NoError(t, ts.RevokeRefreshToken(ctx, first.RefreshToken))
	assert.Equal(t, 1, sessions.Count())

	require.NoError(t, ts.RevokeAllRefreshTokens(ctx, testUser.ID))
	assert.Equal(t, 0, sessions.Count())
}
