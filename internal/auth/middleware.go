package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
)

// VisitorCookie is the name of the cookie holding the signed visitor token.
const VisitorCookie = "cinemax_visitor"

type contextKey string

const visitorIDKey contextKey = "visitorID"

// Visitor makes sure every request carries a visitor identity.
//
// A valid visitor cookie is reused; a missing, expired or forged one is
// replaced by a fresh xid signed with tokens. The visitor ID ends up in the
// request context (see VisitorIDFromContext) and keys the visitor's shell.
// It says nothing about whether the visitor is signed in.
func Visitor(tokens *TokenService, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extractVisitorID(r, tokens)
			if err != nil {
				id = xid.New().String()
				signed, err := tokens.Generate(id)
				if err != nil {
					logger.Error("visitor token generation failed", slog.String("error", err.Error()))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     VisitorCookie,
					Value:    signed,
					Path:     "/",
					MaxAge:   int(tokens.TTL().Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				logger.Debug("new visitor", slog.String("visitorID", id))
			}

			next.ServeHTTP(w, r.WithContext(WithVisitorID(r.Context(), id)))
		})
	}
}

// WithVisitorID returns a copy of ctx carrying the visitor ID.
func WithVisitorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, visitorIDKey, id)
}

// VisitorIDFromContext returns the visitor ID set by the Visitor middleware.
func VisitorIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(visitorIDKey).(string)
	return id, ok && id != ""
}

func extractVisitorID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(VisitorCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
