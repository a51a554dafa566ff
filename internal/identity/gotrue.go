package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/model"
	"github.com/sakif/cinemax-club/internal/repository"
)

const maxResponseBytes = 1 << 20

// msgUnreachable is shown when the backend cannot be reached. Transport
// details go to the log only.
const msgUnreachable = "The sign-in service could not be reached. Please try again."

// GoTrueProvider talks to a Supabase Auth (GoTrue) REST API.
type GoTrueProvider struct {
	authURL string
	anonKey string
	timeout time.Duration
	http    *http.Client
	store   repository.SessionRepository
	logger  *slog.Logger
}

// NewGoTrueProvider builds a provider for cfg.URL + "/auth/v1".
// A nil httpClient gets a default client.
func NewGoTrueProvider(cfg Config, store repository.SessionRepository, httpClient *http.Client, logger *slog.Logger) *GoTrueProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoTrueProvider{
		authURL: strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		timeout: timeout,
		http:    httpClient,
		store:   store,
		logger:  logger,
	}
}

func (p *GoTrueProvider) Configured() bool { return true }

// ForVisitor returns a fresh client bound to visitorID's stored session.
func (p *GoTrueProvider) ForVisitor(visitorID string) Client {
	return &GoTrue{
		provider:  p,
		visitorID: visitorID,
		hub:       newHub(),
	}
}

// GoTrue is the configured Client for one visitor.
type GoTrue struct {
	provider  *GoTrueProvider
	visitorID string
	hub       *hub

	mu      sync.Mutex
	session *model.Session
	loaded  bool

	// serialises refreshes so two concurrent reads spend one refresh token
	refreshMu sync.Mutex
}

var _ Client = (*GoTrue)(nil)

func (c *GoTrue) Subscribe(fn Handler) Subscription {
	return c.hub.subscribe(fn)
}

// CurrentSession returns the stored session, refreshing it first when the
// access token has expired. A refresh the backend rejects signs the visitor
// out.
func (c *GoTrue) CurrentSession(ctx context.Context) (*model.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	s, err := c.cached(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.Expired() {
		return s, nil
	}

	if s.RefreshToken == "" {
		c.setSession(ctx, nil, model.EventSignedOut)
		return nil, nil
	}

	refreshed, err := c.provider.tokenRequest(ctx, "refresh_token", map[string]string{
		"refresh_token": s.RefreshToken,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Status >= 400 && appErr.Status < 500 {
			c.provider.logger.Info("session refresh rejected; signing out",
				slog.String("visitorID", c.visitorID),
				slog.Int("status", appErr.Status),
			)
			c.setSession(ctx, nil, model.EventSignedOut)
		}
		return nil, err
	}

	c.setSession(ctx, refreshed, model.EventTokenRefreshed)
	return refreshed, nil
}

func (c *GoTrue) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	s, err := c.provider.tokenRequest(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	c.setSession(ctx, s, model.EventSignedIn)
	return s, nil
}

type signUpRequest struct {
	Email    string                    `json:"email"`
	Password string                    `json:"password"`
	Data     model.RegistrationProfile `json:"data"`
}

func (c *GoTrue) SignUp(ctx context.Context, email, password string, profile model.RegistrationProfile) (*model.Session, error) {
	profile.SIC = strings.ToUpper(profile.SIC)

	body, status, err := c.provider.do(ctx, http.MethodPost, "/signup", signUpRequest{
		Email:    email,
		Password: password,
		Data:     profile,
	}, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(body, status)
	}

	s, err := decodeSession(body)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		// email confirmation pending: the body is the bare user
		c.provider.logger.Info("sign-up accepted; verification pending", slog.String("visitorID", c.visitorID))
		return nil, nil
	}

	c.setSession(ctx, s, model.EventSignedIn)
	return s, nil
}

// SignOut revokes the session on the backend when possible and always
// clears it locally.
func (c *GoTrue) SignOut(ctx context.Context) error {
	s, err := c.cached(ctx)
	if err != nil {
		c.provider.logger.Warn("sign-out: loading session failed", slog.String("error", err.Error()))
	}

	if s != nil && s.AccessToken != "" {
		body, status, err := c.provider.do(ctx, http.MethodPost, "/logout", nil, s.Token())
		switch {
		case err != nil:
			c.provider.logger.Warn("sign-out: backend unreachable", slog.String("error", err.Error()))
		case status >= 400 && status != http.StatusUnauthorized && status != http.StatusNotFound:
			c.provider.logger.Warn("sign-out: backend rejected logout",
				slog.Int("status", status),
				slog.String("error", parseError(body, status).Error()),
			)
		}
	}

	c.setSession(ctx, nil, model.EventSignedOut)
	return nil
}

// cached returns the in-memory session, loading it from the store once.
func (c *GoTrue) cached(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded || c.provider.store == nil {
		c.loaded = true
		return c.session, nil
	}

	s, err := c.provider.store.Load(ctx, c.visitorID)
	if err != nil {
		return nil, fmt.Errorf("identity: loading session: %w", err)
	}
	c.session = s
	c.loaded = true
	return s, nil
}

// setSession replaces the session, persists it and notifies subscribers.
func (c *GoTrue) setSession(ctx context.Context, s *model.Session, event model.Event) {
	c.mu.Lock()
	c.session = s
	c.loaded = true
	c.mu.Unlock()

	if store := c.provider.store; store != nil {
		var err error
		if s == nil {
			err = store.Delete(ctx, c.visitorID)
		} else {
			err = store.Save(ctx, c.visitorID, s)
		}
		if err != nil {
			c.provider.logger.Error("persisting session failed",
				slog.String("visitorID", c.visitorID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.hub.emit(event, s)
}

// tokenRequest calls POST /token?grant_type=<grant> and decodes the session.
func (p *GoTrueProvider) tokenRequest(ctx context.Context, grant string, payload map[string]string) (*model.Session, error) {
	body, status, err := p.do(ctx, http.MethodPost, "/token?grant_type="+grant, payload, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, parseError(body, status)
	}

	s, err := decodeSession(body)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, apperror.Authentication("identity backend returned no access token", status)
	}
	return s, nil
}

// do performs one request against the auth API. With a token the request
// goes through an oauth2 transport carrying the user's bearer token;
// without one the public key is sent as the bearer, as the hosted SDK does.
func (p *GoTrueProvider) do(ctx context.Context, method, path string, payload any, token *oauth2.Token) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("identity: encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.authURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("identity: building request: %w", err)
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := p.http
	if token != nil {
		client = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, p.http), oauth2.StaticTokenSource(token))
	} else {
		req.Header.Set("Authorization", "Bearer "+p.anonKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Warn("identity backend request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, 0, apperror.Wrap(apperror.Authentication(msgUnreachable, 0), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, apperror.Wrap(apperror.Authentication(msgUnreachable, resp.StatusCode), err)
	}
	return body, resp.StatusCode, nil
}

func decodeSession(body []byte) (*model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, apperror.Authentication("malformed response from identity backend", 0)
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return &s, nil
}

// parseError extracts the backend's message. GoTrue has used "msg",
// "message", "error_description" and "error" across versions.
func parseError(body []byte, status int) *apperror.AppError {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"msg", "message", "error_description", "error"} {
			if r := gjson.GetBytes(body, key); r.Type == gjson.String && r.String() != "" {
				return apperror.Authentication(r.String(), status)
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return apperror.Authentication(text, status)
	}
	return apperror.Authentication(fmt.Sprintf("identity backend returned status %d", status), status)
}
