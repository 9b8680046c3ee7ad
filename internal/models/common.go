package models

//nolint:gosec //file not handles sensitive data
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
	KeyTokenExpiry  = "token_expiry"

	MwAPIKeyHeader = "X-API-Key"

	MwUserIDKey   = "user_id"
	MwUsernameKey = "username"
	MwRolesKey    = "roles"
)

// CredentialKeys lists every persisted key; they are written and removed as one unit.
var CredentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserData, KeyTokenExpiry}

type APIKey struct {
	Key      string `json:"key"`
	ClientID string `json:"client_id"`
}
