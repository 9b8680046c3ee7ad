package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore()

	t.Run("empty store loads no session", func(t *testing.T) {
		s, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("save then load", func(t *testing.T) {
		in := models.Session{
			AccessToken:  "a1",
			RefreshToken: "r1",
			ExpiresAt:    time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
			Profile:      models.Profile{Username: "bob", Roles: []models.Role{models.RoleUser}},
		}
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, "a1", out.AccessToken)
		assert.Equal(t, "r1", out.RefreshToken)
		assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
		assert.Equal(t, in.Profile, out.Profile)
	})

	t.Run("clear removes everything and is idempotent", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))

		s, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(zap.NewNop().Sugar())
	now := time.Now()
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.CreateSession(ctx, models.RefreshSession{Selector: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.CreateSession(ctx, models.RefreshSession{Selector: "s2", UserID: "u1", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, repo.CreateSession(ctx, models.RefreshSession{Selector: "s3", UserID: "u2", ExpiresAt: now.Add(time.Hour)}))

	t.Run("consume succeeds once", func(t *testing.T) {
		s, err := repo.ConsumeSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "u1", s.UserID)

		_, err = repo.ConsumeSession(ctx, "s1")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	})

	t.Run("expired session is not consumable", func(t *testing.T) {
		_, err := repo.ConsumeSession(ctx, "s2")
		assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	})

	t.Run("delete all user sessions", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, models.RefreshSession{Selector: "s4", UserID: "u2", ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, repo.DeleteAllUserSessions(ctx, "u2"))
		assert.Equal(t, 0, repo.Count())
	})
}

func TestTokenStorage(t *testing.T) {
	ctx := context.Background()
	s := NewTokenStorage()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.InvalidateToken(ctx, "jti-1", time.Minute))
	require.NoError(t, s.InvalidateToken(ctx, "jti-expired", 0))

	revoked, err := s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsTokenInvalidated(ctx, "jti-expired")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, err = s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	base := time.Now()

	_, err := repo.CreateUser(ctx, models.User{ID: "2", Username: "zed", CreatedAt: base})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, models.User{ID: "1", Username: "amy", CreatedAt: base})
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, models.User{ID: "3", Username: "AMY"})
	assert.ErrorIs(t, err, storage.ErrUserExists)

	u, err := repo.GetUserByUsername(ctx, "Amy")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Username)

	require.NoError(t, repo.DeleteUser(ctx, "1"))
	_, err = repo.GetUserByID(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.ErrorIs(t, repo.UpdateUser(ctx, models.User{ID: "1"}), storage.ErrUserNotFound)
}
