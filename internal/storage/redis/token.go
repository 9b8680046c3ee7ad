package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rryowa/sessiongate/internal/storage"
)

const (
	blocklistPrefix  = "blocklist"
	invalidatedValue = "invalidated"
)

type TokenStorage struct {
	client *redis.Client
}

func NewTokenStorage(client *redis.Client) *TokenStorage {
	return &TokenStorage{client: client}
}

func (s *TokenStorage) InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, blocklistPrefix+":"+jti, invalidatedValue, expiration).Err(); err != nil {
		return fmt.Errorf("%w: invalidate token: %w", storage.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *TokenStorage) IsTokenInvalidated(ctx context.Context, jti string) (bool, error) {
	result, err := s.client.Get(ctx, blocklistPrefix+":"+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("%w: check token: %w", storage.ErrStorageUnavailable, err)
	}
	return result == invalidatedValue, nil
}
