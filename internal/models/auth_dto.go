package models

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// TokenPairResponse is the payload of a successful login or refresh.
// Some deployments name the access token "token"; both are accepted.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Roles        []Role `json:"roles"`
}

func (r TokenPairResponse) Bearer() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// Session builds the credential bundle with an expiry computed from a fixed lifetime.
// The expiry is kept at millisecond precision, the resolution it is persisted with.
func (r TokenPairResponse) Session(now time.Time, lifetime time.Duration) Session {
	return Session{
		AccessToken:  r.Bearer(),
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.UnixMilli(now.Add(lifetime).UnixMilli()),
		Profile: Profile{
			Username: r.Username,
			Email:    r.Email,
			Roles:    append([]Role(nil), r.Roles...),
		},
	}
}

// Envelope wraps every response of the auth API.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
