package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

var ErrInvalidAPIKey = errors.New("invalid API key")

// APIKeyService checks client API keys. Keys are stored as sha256 hashes.
type APIKeyService struct {
	repo     storage.APIKeyRepository
	log      *zap.SugaredLogger
	required bool
}

// NewAPIKeyService enforces keys only when required is set.
func NewAPIKeyService(repo storage.APIKeyRepository, log *zap.SugaredLogger, required bool) *APIKeyService {
	return &APIKeyService{repo: repo, log: log, required: required}
}

func (s *APIKeyService) Required() bool { return s.required }

// Validate returns the client registered for key.
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.APIKey, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	found, err := s.repo.GetAPIKey(ctx, HashAPIKey(key))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			s.log.Debugw("unknown API key presented")
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return found, nil
}

// HashAPIKey is the form keys are registered and looked up in.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
