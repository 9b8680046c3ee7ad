package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSession() models.Session {
	return models.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.UnixMilli(time.Now().Add(time.Hour).UnixMilli()),
		Profile:      models.Profile{Username: "carol", Email: "carol@example.com", Roles: []models.Role{models.RoleUser}},
	}
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewCredentialStore(client, "test")

	t.Run("save writes all keys", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testSession()))

		for _, name := range models.CredentialKeys {
			assert.True(t, mr.Exists("session:test:"+name), name)
		}
		v, err := mr.Get("session:test:" + models.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "access-1", v)
	})

	t.Run("load returns the saved session", func(t *testing.T) {
		s, err := store.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, testSession().Profile, s.Profile)
		assert.Equal(t, "refresh-1", s.RefreshToken)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		other := NewCredentialStore(client, "other")
		s, err := other.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("partial record loads as no session", func(t *testing.T) {
		mr.Del("session:test:" + models.KeyRefreshToken)
		s, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("clear removes every key", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testSession()))
		require.NoError(t, store.Clear(ctx))
		for _, name := range models.CredentialKeys {
			assert.False(t, mr.Exists("session:test:"+name), name)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		down, err := miniredis.Run()
		require.NoError(t, err)
		downClient := redis.NewClient(&redis.Options{Addr: down.Addr(), MaxRetries: -1})
		defer downClient.Close()
		down.Close()

		store := NewCredentialStore(downClient, "test")
		_, err = store.Load(ctx)
		assert.ErrorIs(t, err, storage.ErrStorageUnavailable)
		assert.ErrorIs(t, store.Save(ctx, testSession()), storage.ErrStorageUnavailable)
		assert.ErrorIs(t, store.Clear(ctx), storage.ErrStorageUnavailable)
	})
}

func TestTokenStorage(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	s := NewTokenStorage(client)

	require.NoError(t, s.InvalidateToken(ctx, "jti-1", time.Minute))

	revoked, err := s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsTokenInvalidated(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = s.IsTokenInvalidated(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
