package model

import (
	"time"

	"golang.org/x/oauth2"
)

// Session is the token bundle issued by the identity backend.
// A nil *Session means "signed out".
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // unix seconds
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// Expiry returns the absolute expiry time, or the zero time if the backend
// did not say.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// Token exposes the session as an oauth2 token so it can be handed to an
// oauth2 transport for bearer requests.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    tokenType,
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry(),
	}
}

// Expired reports whether the access token is missing or about to expire.
// oauth2 applies a small early-expiry margin.
func (s *Session) Expired() bool {
	return !s.Token().Valid()
}

// Event is the kind of authentication state change delivered to subscribers.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)
