package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

const (
	upsertCredentialQuery = `INSERT INTO client_credentials (namespace, key, value, updated_at) VALUES ($1, $2, $3, now()) ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	selectCredentialQuery = `SELECT key, value FROM client_credentials WHERE namespace = $1`
	deleteCredentialQuery = `DELETE FROM client_credentials WHERE namespace = $1`
)

type CredentialStore struct {
	db        *sql.DB
	namespace string
}

func NewCredentialStore(db *sql.DB, namespace string) *CredentialStore {
	return &CredentialStore{db: db, namespace: namespace}
}

// Save upserts the four credential rows in one transaction.
func (s *CredentialStore) Save(ctx context.Context, session models.Session) error {
	values, err := storage.Encode(session)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", storage.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	if err := s.writeAll(ctx, tx, values); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %w", storage.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *CredentialStore) writeAll(ctx context.Context, db storage.DBTX, values map[string]string) error {
	for _, key := range models.CredentialKeys {
		if _, err := db.ExecContext(ctx, upsertCredentialQuery, s.namespace, key, values[key]); err != nil {
			return fmt.Errorf("%w: write %s: %w", storage.ErrStorageUnavailable, key, err)
		}
	}
	return nil
}

func (s *CredentialStore) Load(ctx context.Context) (*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectCredentialQuery, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", storage.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	values := make(map[string]string, len(models.CredentialKeys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", storage.ErrStorageUnavailable, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load: %w", storage.ErrStorageUnavailable, err)
	}

	return storage.Decode(values)
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteCredentialQuery, s.namespace); err != nil {
		return fmt.Errorf("%w: clear: %w", storage.ErrStorageUnavailable, err)
	}
	return nil
}
