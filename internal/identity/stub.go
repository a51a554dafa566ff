package identity

import (
	"context"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/model"
)

// StubProvider is used when the identity backend is not configured.
type StubProvider struct{}

func (StubProvider) ForVisitor(string) Client { return Stub{} }
func (StubProvider) Configured() bool         { return false }

// Stub is the not-configured Client: always signed out, and sign-in/sign-up
// fail with apperror.ErrNotConfigured.
type Stub struct{}

var _ Client = Stub{}

func (Stub) CurrentSession(context.Context) (*model.Session, error) { return nil, nil }

func (Stub) Subscribe(Handler) Subscription { return noopSubscription{} }

func (Stub) SignIn(context.Context, string, string) (*model.Session, error) {
	return nil, apperror.NotConfigured()
}

func (Stub) SignUp(context.Context, string, string, model.RegistrationProfile) (*model.Session, error) {
	return nil, apperror.NotConfigured()
}

func (Stub) SignOut(context.Context) error { return nil }
