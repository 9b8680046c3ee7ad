package models

import "time"

// RefreshSession is the auth stub's record of an issued refresh token.
// Only the selector and a hash of the verifier are kept.
type RefreshSession struct {
	Selector       string    `json:"selector"`
	VerifierHash   string    `json:"verifier_hash"`
	UserID         string    `json:"user_id"`
	AccessTokenJTI string    `json:"access_token_jti"`
	UserAgent      string    `json:"user_agent"`
	IPAddress      string    `json:"ip_address"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
