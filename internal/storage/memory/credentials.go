package memory

import (
	"context"
	"sync"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

// CredentialStore keeps the credential keys in process memory.
type CredentialStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		values: make(map[string]string),
	}
}

func (m *CredentialStore) Save(_ context.Context, session models.Session) error {
	values, err := storage.Encode(session)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = values
	return nil
}

func (m *CredentialStore) Load(_ context.Context) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return storage.Decode(m.values)
}

func (m *CredentialStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range models.CredentialKeys {
		delete(m.values, key)
	}
	return nil
}
