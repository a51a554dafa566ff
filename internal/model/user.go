// Package model defines the data structures shared by the identity adapter,
// the shell and the HTTP layer.
package model

import (
	"encoding/json"
	"time"
)

// User is the identity backend's user record, as returned inside a session.
//
// UserMetadata stays raw JSON: the backend stores whatever the sign-up call
// attached and this code only ever reads four keys out of it (see
// identity.ProjectProfile).
type User struct {
	ID               string          `json:"id"`
	Aud              string          `json:"aud,omitempty"`
	Role             string          `json:"role,omitempty"`
	Email            string          `json:"email"`
	EmailConfirmedAt *time.Time      `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time      `json:"last_sign_in_at,omitempty"`
	UserMetadata     json.RawMessage `json:"user_metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RegistrationProfile is the extra form data collected in register mode and
// attached to the sign-up call as user metadata.
type RegistrationProfile struct {
	SIC      string `json:"sic"` // student id, uppercased
	FullName string `json:"full_name"`
	Branch   string `json:"branch"`
	Year     string `json:"year"`
}

// Profile is the flat view of a session's user metadata.
// Every field is always present; missing metadata projects to "".
type Profile struct {
	SIC      string `json:"sic"`
	FullName string `json:"full_name"`
	Branch   string `json:"branch"`
	Year     string `json:"year"`
}
