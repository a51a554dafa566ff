package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotConfigured wraps ErrNotConfigured",
			err:       NotConfigured(),
			target:    ErrNotConfigured,
			wantMatch: true,
		},
		{
			name:      "Authentication wraps ErrAuthentication",
			err:       Authentication("Invalid login credentials", 400),
			target:    ErrAuthentication,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Busy wraps ErrBusy",
			err:       Busy(),
			target:    ErrBusy,
			wantMatch: true,
		},
		{
			name:      "wrapped NotConfigured still matches",
			err:       fmt.Errorf("modal: submit: %w", NotConfigured()),
			target:    ErrNotConfigured,
			wantMatch: true,
		},
		{
			name:      "NotConfigured is not an authentication error",
			err:       NotConfigured(),
			target:    ErrAuthentication,
			wantMatch: false,
		},
		{
			name:      "Authentication is not NotConfigured",
			err:       Authentication("nope", 401),
			target:    ErrNotConfigured,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotConfigured names both variables",
			err:         NotConfigured(),
			wantMessage: NotConfiguredMessage,
		},
		{
			name:        "Authentication keeps backend text",
			err:         Authentication("Invalid login credentials", 400),
			wantMessage: "Invalid login credentials",
		},
		{
			name:        "Authentication falls back when backend is silent",
			err:         Authentication("", 500),
			wantMessage: "Authentication failed",
		},
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("visitor", "abc123"),
			wantMessage: "visitor not found with id abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	if got := MessageOf(nil, "fallback"); got != "fallback" {
		t.Errorf("MessageOf(nil) = %q", got)
	}
	if got := MessageOf(fmt.Errorf("wrap: %w", Authentication("Email not confirmed", 400)), "x"); got != "Email not confirmed" {
		t.Errorf("MessageOf(wrapped) = %q", got)
	}
	if got := MessageOf(errors.New("boom"), "x"); got != "boom" {
		t.Errorf("MessageOf(plain) = %q", got)
	}
	if got := MessageOf(errors.New(""), "x"); got != "x" {
		t.Errorf("MessageOf(empty) = %q", got)
	}
}

func TestUnwrap(t *testing.T) {
	err := NotConfigured()
	if got := err.Unwrap(); len(got) != 1 || got[0] != ErrNotConfigured {
		t.Errorf("Unwrap() = %v, want [%v]", got, ErrNotConfigured)
	}
	if Authentication("x", 422).Status != 422 {
		t.Error("Authentication() should keep the upstream status")
	}
}

func TestWrapKeepsCauseOutOfMessage(t *testing.T) {
	cause := fmt.Errorf("Post \"http://10.0.0.5/auth/v1/token\": %w", context.DeadlineExceeded)
	err := Wrap(Authentication("The sign-in service could not be reached.", 0), cause)

	if !errors.Is(err, ErrAuthentication) {
		t.Error("errors.Is(err, ErrAuthentication) = false")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(err, context.DeadlineExceeded) = false, want the cause reachable")
	}
	if got := err.Error(); got != "The sign-in service could not be reached." {
		t.Errorf("Error() = %q, want only the user message", got)
	}
	if got := MessageOf(err, "x"); got != "The sign-in service could not be reached." {
		t.Errorf("MessageOf() = %q", got)
	}
}
