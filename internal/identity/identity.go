// Package identity is the adapter between this server and the hosted
// identity backend (Supabase Auth / GoTrue).
//
// A Provider is chosen once at startup: the GoTrue provider when both the
// backend URL and the public API key are configured, otherwise a stub whose
// sign-in and sign-up always fail with apperror.ErrNotConfigured. Both hand
// out one Client per visitor; the rest of the server only sees Client.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/cinemax-club/internal/model"
	"github.com/sakif/cinemax-club/internal/repository"
)

// Client is one visitor's view of the identity backend.
type Client interface {
	// CurrentSession returns the visitor's session, or nil when signed out.
	CurrentSession(ctx context.Context) (*model.Session, error)

	// Subscribe registers fn for every authentication state change.
	// The returned Subscription must be released with Unsubscribe.
	Subscribe(fn Handler) Subscription

	SignIn(ctx context.Context, email, password string) (*model.Session, error)

	// SignUp creates an account and attaches profile as user metadata.
	// A nil session with a nil error means the request was accepted but the
	// account still needs email verification.
	SignUp(ctx context.Context, email, password string, profile model.RegistrationProfile) (*model.Session, error)

	// SignOut is idempotent and never returns an error that should block UI.
	SignOut(ctx context.Context) error
}

// Handler receives authentication state changes.
type Handler func(event model.Event, session *model.Session)

// Subscription is the disposer returned by Client.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Provider hands out per-visitor clients.
type Provider interface {
	ForVisitor(visitorID string) Client
	Configured() bool
}

// Config holds the identity backend connection parameters.
type Config struct {
	URL     string // e.g. https://xyz.supabase.co
	AnonKey string // public API key
	Timeout time.Duration
}

// Configured reports whether both connection parameters are present.
func (c Config) Configured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// NewProvider selects the GoTrue provider or the stub based on cfg.
// store persists sessions for the GoTrue provider and may be nil, in which
// case sessions only live in memory.
func NewProvider(cfg Config, store repository.SessionRepository, httpClient *http.Client, logger *slog.Logger) Provider {
	if !cfg.Configured() {
		logger.Warn("identity backend not configured; sign-in and sign-up are disabled",
			slog.String("hint", "set SUPABASE_URL and SUPABASE_ANON_KEY"),
		)
		return StubProvider{}
	}
	return NewGoTrueProvider(cfg, store, httpClient, logger)
}
