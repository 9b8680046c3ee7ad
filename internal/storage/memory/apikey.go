package memory

import (
	"context"
	"sync"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

type InMemoryAPIKeyManager struct {
	mu      sync.RWMutex
	apiKeys map[string]models.APIKey
}

// NewAPIKeyRepository registers each key for its client id.
func NewAPIKeyRepository(keys ...models.APIKey) *InMemoryAPIKeyManager {
	apiKeys := make(map[string]models.APIKey, len(keys))
	for _, k := range keys {
		apiKeys[k.Key] = k
	}
	return &InMemoryAPIKeyManager{
		apiKeys: apiKeys,
	}
}

func (m *InMemoryAPIKeyManager) GetAPIKey(_ context.Context, apiKey string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.apiKeys[apiKey]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}

	return &key, nil
}

func (m *InMemoryAPIKeyManager) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.apiKeys) == 0
}
