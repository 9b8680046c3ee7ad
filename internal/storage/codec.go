package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rryowa/sessiongate/internal/models"
)

// Encode flattens a session into the four persisted keys.
// The expiry is stored as epoch milliseconds; a zero expiry is stored empty.
func Encode(session models.Session) (map[string]string, error) {
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return nil, fmt.Errorf("encode user data: %w", err)
	}

	expiry := ""
	if !session.ExpiresAt.IsZero() {
		expiry = strconv.FormatInt(session.ExpiresAt.UnixMilli(), 10)
	}

	return map[string]string{
		models.KeyAccessToken:  session.AccessToken,
		models.KeyRefreshToken: session.RefreshToken,
		models.KeyUserData:     string(profile),
		models.KeyTokenExpiry:  expiry,
	}, nil
}

// Decode rebuilds a session from the persisted keys. A record missing either
// token is no session at all. An unreadable expiry is dropped, which makes the
// session due for refresh.
func Decode(values map[string]string) (*models.Session, error) {
	access, refresh := values[models.KeyAccessToken], values[models.KeyRefreshToken]
	if access == "" || refresh == "" {
		return nil, nil
	}

	session := &models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
	}

	if raw := values[models.KeyUserData]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &session.Profile); err != nil {
			return nil, fmt.Errorf("%w: user data: %w", ErrCorruptSession, err)
		}
	}

	if raw := values[models.KeyTokenExpiry]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			session.ExpiresAt = time.UnixMilli(ms)
		}
	}

	return session, nil
}
