// Package identitytest runs an in-process, GoTrue-compatible identity
// backend for tests. It implements the four endpoints the adapter uses
// (signup, token, logout, user) with bcrypt-hashed passwords and HS256
// access tokens, and reproduces the backend's error bodies.
package identitytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/cinemax-club/internal/auth"
	"github.com/sakif/cinemax-club/internal/identity"
)

// AnonKey is the public API key the fake backend accepts.
const AnonKey = "test-anon-key"

type user struct {
	ID        string
	Email     string
	Hash      string
	Metadata  json.RawMessage
	Confirmed bool
	CreatedAt time.Time
}

// Server is a fake identity backend.
type Server struct {
	*httptest.Server

	// AutoConfirm makes sign-up return a session immediately.
	AutoConfirm bool
	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration

	passwords *auth.PasswordService
	tokens    *auth.TokenService

	mu       sync.Mutex
	users    map[string]*user  // by email
	refresh  map[string]string // refresh token → email
	calls    map[string]int    // "METHOD /path" → count
	gate     chan struct{}
	gateHits chan struct{}
}

// NewServer starts a backend that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	tokens, err := auth.NewTokenService("identitytest-signing-secret!!", "identitytest", time.Hour)
	if err != nil {
		t.Fatalf("identitytest: %v", err)
	}

	s := &Server{
		AutoConfirm: true,
		AccessTTL:   time.Hour,
		passwords:   auth.NewPasswordServiceWithCost(bcrypt.MinCost),
		tokens:      tokens,
		users:       make(map[string]*user),
		refresh:     make(map[string]string),
		calls:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/signup", s.handleSignUp)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/v1/user", s.handleUser)

	s.Server = httptest.NewServer(s.withAPIKey(mux))
	t.Cleanup(s.Close)
	return s
}

// Config returns identity.Config pointing at this server.
func (s *Server) Config() identity.Config {
	return identity.Config{URL: s.URL, AnonKey: AnonKey, Timeout: 5 * time.Second}
}

// Calls returns how many times "METHOD /auth/v1/<path>" was hit.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" /auth/v1"+path]
}

// AddUser registers a confirmed user directly.
func (s *Server) AddUser(email, password string, metadata map[string]any) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		panic(err)
	}
	md, _ := json.Marshal(metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = &user{
		ID:        xid.New().String(),
		Email:     email,
		Hash:      hash,
		Metadata:  md,
		Confirmed: true,
		CreatedAt: time.Now(),
	}
}

// Metadata returns the stored user_metadata for email.
func (s *Server) Metadata(email string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u.Metadata
	}
	return nil
}

// Hold makes every following request block until Release is called.
// Each blocked request is announced on the returned channel.
func (s *Server) Hold() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.gateHits = make(chan struct{}, 16)
	return s.gateHits
}

// Release unblocks requests held by Hold.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		gate, hits := s.gate, s.gateHits
		s.mu.Unlock()

		if gate != nil {
			hits <- struct{}{}
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if r.Header.Get("apikey") != AnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentials struct {
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	RefreshToken string          `json:"refresh_token"`
	Data         json.RawMessage `json:"data"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMsg(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}
	if !strings.Contains(in.Email, "@") {
		writeMsg(w, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
		return
	}
	if err := s.passwords.CheckStrength(in.Password); err != nil {
		writeMsg(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		writeMsg(w, http.StatusUnprocessableEntity, "weak_password", err.Error())
		return
	}

	key := strings.ToLower(in.Email)
	s.mu.Lock()
	if _, exists := s.users[key]; exists {
		s.mu.Unlock()
		writeMsg(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	md := in.Data
	if len(md) == 0 {
		md = json.RawMessage(`{}`)
	}
	u := &user{
		ID:        xid.New().String(),
		Email:     in.Email,
		Hash:      hash,
		Metadata:  md,
		Confirmed: s.AutoConfirm,
		CreatedAt: time.Now(),
	}
	s.users[key] = u
	s.mu.Unlock()

	if !u.Confirmed {
		writeJSON(w, http.StatusOK, userJSON(u))
		return
	}
	s.writeSession(w, u)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMsg(w, http.StatusBadRequest, "bad_json", "Could not parse request body as JSON")
		return
	}

	switch r.URL.Query().Get("grant_type") {
	case "password":
		s.mu.Lock()
		u, ok := s.users[strings.ToLower(in.Email)]
		s.mu.Unlock()
		if !ok || s.passwords.Verify(u.Hash, in.Password) != nil {
			// older GoTrue error shape
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
		if !u.Confirmed {
			writeMsg(w, http.StatusBadRequest, "email_not_confirmed", "Email not confirmed")
			return
		}
		s.writeSession(w, u)

	case "refresh_token":
		s.mu.Lock()
		email, ok := s.refresh[in.RefreshToken]
		delete(s.refresh, in.RefreshToken)
		u := s.users[strings.ToLower(email)]
		s.mu.Unlock()
		if !ok || u == nil {
			writeMsg(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		s.writeSession(w, u)

	default:
		writeMsg(w, http.StatusBadRequest, "validation_failed", "unsupported_grant_type")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearer(r)
	if !ok {
		writeMsg(w, http.StatusUnauthorized, "no_authorization", "This endpoint requires a valid Bearer token")
		return
	}

	s.mu.Lock()
	for tok, email := range s.refresh {
		if strings.EqualFold(email, claims.Email) {
			delete(s.refresh, tok)
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.bearer(r)
	if !ok {
		writeMsg(w, http.StatusUnauthorized, "no_authorization", "This endpoint requires a valid Bearer token")
		return
	}
	s.mu.Lock()
	u := s.users[strings.ToLower(claims.Email)]
	s.mu.Unlock()
	if u == nil {
		writeMsg(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (s *Server) bearer(r *http.Request) (*auth.Claims, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, false
	}
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (s *Server) writeSession(w http.ResponseWriter, u *user) {
	access, err := s.tokens.GenerateForEmail(u.ID, u.Email, s.AccessTTL)
	if err != nil {
		writeMsg(w, http.StatusInternalServerError, "unexpected_failure", err.Error())
		return
	}
	refresh := xid.New().String()

	s.mu.Lock()
	s.refresh[refresh] = u.Email
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int(s.AccessTTL.Seconds()),
		"expires_at":    time.Now().Add(s.AccessTTL).Unix(),
		"refresh_token": refresh,
		"user":          userJSON(u),
	})
}

func userJSON(u *user) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"aud":           "authenticated",
		"role":          "authenticated",
		"email":         u.Email,
		"user_metadata": u.Metadata,
		"created_at":    u.CreatedAt,
		"updated_at":    u.CreatedAt,
	}
}

func writeMsg(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
