package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

const keyPrefix = "session"

type CredentialStore struct {
	client    *redis.Client
	namespace string
}

func NewCredentialStore(client *redis.Client, namespace string) *CredentialStore {
	return &CredentialStore{client: client, namespace: namespace}
}

func (s *CredentialStore) key(name string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, s.namespace, name)
}

func (s *CredentialStore) keys() []string {
	keys := make([]string, 0, len(models.CredentialKeys))
	for _, name := range models.CredentialKeys {
		keys = append(keys, s.key(name))
	}
	return keys
}

// Save writes all four keys in one MULTI/EXEC block.
func (s *CredentialStore) Save(ctx context.Context, session models.Session) error {
	values, err := storage.Encode(session)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range models.CredentialKeys {
			pipe.Set(ctx, s.key(name), values[name], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save: %w", storage.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CredentialStore) Load(ctx context.Context) (*models.Session, error) {
	result, err := s.client.MGet(ctx, s.keys()...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", storage.ErrStorageUnavailable, err)
	}

	values := make(map[string]string, len(result))
	for i, name := range models.CredentialKeys {
		if v, ok := result[i].(string); ok {
			values[name] = v
		}
	}
	return storage.Decode(values)
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.keys()...).Err(); err != nil {
		return fmt.Errorf("%w: clear: %w", storage.ErrStorageUnavailable, err)
	}
	return nil
}
