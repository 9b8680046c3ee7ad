package models

import (
	"slices"
	"time"
)

// Role is an opaque authorization tag. Checks against it are set membership only.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Profile is the minimal identity projection stored next to the credentials.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Roles    []Role `json:"roles"`
}

func (p Profile) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

func (p Profile) Clone() Profile {
	p.Roles = slices.Clone(p.Roles)
	return p
}

// Session is the durable credential bundle.
// AccessToken and RefreshToken are always set and cleared together.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Profile      Profile   `json:"profile"`
}

// Valid reports whether the session has the shape of a usable credential pair.
// It does not check expiry.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// InvalidationEvent is published when a session is cleared without the user asking for it.
type InvalidationEvent struct {
	ID         string    `json:"id"`
	Username   string    `json:"username,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
