package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rryowa/sessiongate/internal/models"
)

var (
	ErrStorageUnavailable = errors.New("credential storage unavailable")
	ErrCorruptSession     = errors.New("stored session is corrupt")

	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrAPIKeyNotFound  = errors.New("api key not found")
)

// CredentialStore persists the single session of this process.
// Load returns (nil, nil) when no session is stored. Callers treat any
// error as "no session".
type CredentialStore interface {
	Save(ctx context.Context, session models.Session) error
	Load(ctx context.Context) (*models.Session, error)
	Clear(ctx context.Context) error
}

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// The repositories below back the auth API stub.

type APIKeyRepository interface {
	GetAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session models.RefreshSession) error
	// ConsumeSession removes and returns the session, so a refresh token can be used once.
	ConsumeSession(ctx context.Context, selector string) (*models.RefreshSession, error)
	DeleteSession(ctx context.Context, selector string) error
	DeleteAllUserSessions(ctx context.Context, userID string) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, user models.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

// TokenBlocklist records revoked access tokens by their jti until they would have expired.
type TokenBlocklist interface {
	InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error
	IsTokenInvalidated(ctx context.Context, jti string) (bool, error)
}
