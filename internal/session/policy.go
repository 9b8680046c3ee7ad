package session

import (
	"time"

	"github.com/rryowa/sessiongate/internal/models"
)

const (
	DefaultLookahead       = 5 * time.Minute
	DefaultTokenLifetime   = 23 * time.Hour
	DefaultRefreshInterval = 60 * time.Second
)

// IsDue reports whether session should be refreshed at now: it holds both
// tokens and its expiry falls within lookahead of now. A session without a
// recorded expiry is always due.
func IsDue(session *models.Session, now time.Time, lookahead time.Duration) bool {
	if !session.Valid() {
		return false
	}
	if session.ExpiresAt.IsZero() {
		return true
	}
	return !session.ExpiresAt.After(now.Add(lookahead))
}
