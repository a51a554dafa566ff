package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/auth"
	"github.com/sakif/cinemax-club/internal/identity"
	"github.com/sakif/cinemax-club/internal/identity/identitytest"
	"github.com/sakif/cinemax-club/internal/metrics"
	"github.com/sakif/cinemax-club/internal/modal"
	"github.com/sakif/cinemax-club/internal/shell"
)

type authRecord struct{ mode, outcome string }

type fakeRecorder struct {
	mu   sync.Mutex
	seen []authRecord
}

func (f *fakeRecorder) RecordAuth(mode, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, authRecord{mode, outcome})
}

type fixture struct {
	t        *testing.T
	router   chi.Router
	registry *shell.Registry
	recorder *fakeRecorder
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, provider identity.Provider, opts shell.Options) *fixture {
	t.Helper()
	logger := discardLogger()

	registry := shell.NewRegistry(provider, opts, time.Hour, nil, logger)
	t.Cleanup(registry.Close)
	rec := &fakeRecorder{}

	page, err := NewPageHandler(registry, provider.Configured(), logger)
	require.NoError(t, err)
	authH := NewAuthHandler(registry, rec, logger)
	ticketH := NewTicketHandler(registry, logger)
	api := NewAPIHandler(registry, provider.Configured(), logger)

	r := chi.NewRouter()
	r.Get("/", page.HandleIndex)
	r.Get("/ticket/qr.png", ticketH.HandleQR)
	r.Post("/auth/open", authH.HandleOpen)
	r.Post("/auth/close", authH.HandleClose)
	r.Post("/auth/mode", authH.HandleMode)
	r.Post("/auth/submit", authH.HandleSubmit)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Get("/api/me", api.HandleMe)
	r.Get("/api/ticket", ticketH.HandleTicket)
	r.Get("/healthz", api.HandleHealth)

	return &fixture{t: t, router: r, registry: registry, recorder: rec}
}

func (f *fixture) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	f.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req = req.WithContext(auth.WithVisitorID(req.Context(), "visitor-1"))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(target string, form url.Values) {
	f.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	rec := f.do(http.MethodPost, target, form)
	require.Equal(f.t, http.StatusSeeOther, rec.Code, "POST %s", target)
	require.Equal(f.t, "/", rec.Header().Get("Location"))
}

func (f *fixture) page() string {
	f.t.Helper()
	rec := f.do(http.MethodGet, "/", nil)
	require.Equal(f.t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (f *fixture) modal() modal.State {
	return f.registry.Get("visitor-1").Modal().Snapshot()
}

func loginForm(email, password string) url.Values {
	return url.Values{"email": {email}, "password": {password}}
}

func registerForm() url.Values {
	return url.Values{
		"email": {"new@b.com"}, "password": {"secret-pw"},
		"sic": {"22cs042"}, "full_name": {"Alan Turing"}, "branch": {"CSE"}, "year": {"2"},
	}
}

func TestIndexSignedOut(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})

	rec := f.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "Login / Register")
	assert.NotContains(t, body, "My Bookings")
	assert.Contains(t, body, "Interstellar")
	assert.Contains(t, body, "9:30 PM • Hall A1")
	assert.Contains(t, body, "A Cinematic 3D Experience")
	assert.Contains(t, body, `src="/ticket/qr.png"`)
	assert.Contains(t, body, time.Now().Format("2006")+" Cinemax Club")
	assert.NotContains(t, body, `action="/auth/submit"`, "modal starts closed")
}

const (
	loginChecked    = `id="mode-login" class="mode-radio" checked`
	registerChecked = `id="mode-register" class="mode-radio" checked`
)

func TestModalOpenSwitchClose(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})

	f.post("/auth/open", nil)
	body := f.page()
	assert.Contains(t, body, `action="/auth/submit"`)
	assert.Contains(t, body, loginChecked)

	f.post("/auth/mode?mode=register", loginForm("a@b.com", "secret-pw"))
	body = f.page()
	assert.Contains(t, body, registerChecked)
	assert.Contains(t, body, `value="a@b.com"`, "typed email survives the switch")
	assert.NotContains(t, body, "secret-pw", "the password is never echoed")

	f.post("/auth/mode?mode=login", loginForm("a@b.com", "secret-pw"))
	state := f.modal()
	assert.True(t, state.Open)
	assert.Equal(t, modal.ModeLogin, state.Mode)
	assert.Equal(t, "a@b.com", state.Fields.Email)

	f.post("/auth/close", nil)
	assert.False(t, f.modal().Open)
	assert.NotContains(t, f.page(), `action="/auth/submit"`)
}

func TestSubmitFollowsPostedMode(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/open", nil)

	form := registerForm()
	form.Set("mode", "register")
	f.post("/auth/submit", form)

	state := f.modal()
	assert.Equal(t, modal.ModeRegister, state.Mode)
	assert.Equal(t, "22CS042", state.Fields.SIC)
	assert.Contains(t, f.page(), registerChecked)
	assert.Equal(t, []authRecord{{"register", metrics.OutcomeFailure}}, f.recorder.seen)
}

func TestFailedSubmitDoesNotKeepPassword(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/open", nil)
	f.post("/auth/submit", loginForm("a@b.com", "hunter22-secret"))

	state := f.modal()
	assert.True(t, state.Open)
	assert.NotContains(t, fmt.Sprintf("%+v", state), "hunter22-secret")

	body := f.page()
	assert.Contains(t, body, "Supabase is not configured.")
	assert.Contains(t, body, `value="a@b.com"`)
	assert.NotContains(t, body, "hunter22-secret")
}

func TestUnknownMode(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/open", nil)
	f.post("/auth/mode?mode=admin", url.Values{})

	assert.Contains(t, f.page(), "Unknown form mode.")
	assert.Equal(t, modal.ModeLogin, f.modal().Mode)
}

func TestSubmitRequiresFields(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/open", nil)
	f.post("/auth/mode?mode=register", url.Values{})

	form := registerForm()
	form.Del("branch")
	f.post("/auth/submit", form)

	body := f.page()
	assert.Contains(t, body, "Branch is required.")
	assert.True(t, f.modal().Open)
	assert.Equal(t, []authRecord{{"register", metrics.OutcomeInvalid}}, f.recorder.seen)
}

func TestRegisterWithoutBackend(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/open", nil)
	f.post("/auth/mode?mode=register", url.Values{})
	f.post("/auth/submit", registerForm())

	state := f.modal()
	assert.True(t, state.Open)
	assert.Equal(t, modal.ModeRegister, state.Mode)
	assert.False(t, state.Submitting)

	body := f.page()
	assert.Contains(t, body, "Supabase is not configured.")
	assert.Contains(t, body, `class="toast error"`)
	assert.Equal(t, []authRecord{{"register", metrics.OutcomeFailure}}, f.recorder.seen)
}

func TestSubmitOnClosedModalIsIgnored(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.post("/auth/submit", loginForm("a@b.com", "pw"))
	assert.Empty(t, f.recorder.seen)
}

func TestSubmitRateLimited(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{SubmitRate: rate.Every(time.Hour), SubmitBurst: 1})
	f.post("/auth/open", nil)
	f.post("/auth/submit", loginForm("a@b.com", "pw"))
	f.post("/auth/submit", loginForm("a@b.com", "pw"))

	assert.Contains(t, f.page(), "Too many attempts.")
	assert.Equal(t, []authRecord{
		{"login", metrics.OutcomeFailure},
		{"login", metrics.OutcomeRateLimited},
	}, f.recorder.seen)
}

func TestSignInFlow(t *testing.T) {
	srv := identitytest.NewServer(t)
	srv.AddUser("a@b.com", "secret-pw", map[string]any{"sic": "22cs001", "full_name": "Ada Lovelace", "branch": "CSE", "year": "3"})
	provider := identity.NewGoTrueProvider(srv.Config(), nil, srv.Client(), discardLogger())
	f := newFixture(t, provider, shell.Options{})

	rec := f.do(http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.post("/auth/open", nil)
	f.post("/auth/submit", loginForm("a@b.com", "secret-pw"))

	body := f.page()
	assert.Contains(t, body, "Welcome back!")
	assert.Contains(t, body, "Hi, Ada Lovelace")
	assert.Contains(t, body, "Logout")
	assert.NotContains(t, body, `action="/auth/submit"`, "modal closes on success")
	assert.NotContains(t, f.page(), "Welcome back!", "toasts show once")

	rec = f.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me MeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "a@b.com", me.Email)
	require.NotNil(t, me.Profile)
	assert.Equal(t, "22CS001", me.Profile.SIC)
	assert.NotContains(t, rec.Body.String(), "access_token")

	f.post("/auth/logout", nil)
	assert.Contains(t, f.page(), "Signed out")
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/me", nil).Code)
	assert.Equal(t, 1, srv.Calls("POST", "/logout"))
}

func TestSignInRejected(t *testing.T) {
	srv := identitytest.NewServer(t)
	srv.AddUser("a@b.com", "secret-pw", nil)
	provider := identity.NewGoTrueProvider(srv.Config(), nil, srv.Client(), discardLogger())
	f := newFixture(t, provider, shell.Options{})

	f.post("/auth/open", nil)
	f.post("/auth/submit", loginForm("a@b.com", "nope"))

	assert.Contains(t, f.page(), "Invalid login credentials")
	assert.True(t, f.modal().Open)
}

func TestTicketEndpoints(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})

	rec := f.do(http.MethodGet, "/ticket/qr.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = f.do(http.MethodGet, "/api/ticket", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tr TicketResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tr))
	assert.Equal(t, "DEMO-QR", tr.ID)
	assert.False(t, tr.Encrypted)
	assert.Equal(t, f.registry.Get("visitor-1").Ticket(), tr.Payload)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	rec := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","identity":"not_configured"}`, rec.Body.String())
}

func TestClosedRegistry(t *testing.T) {
	f := newFixture(t, identity.StubProvider{}, shell.Options{})
	f.registry.Close()

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/me", nil).Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{apperror.ValidationFailed("email", "Email is required."), http.StatusBadRequest, "validation_error"},
		{apperror.Unauthorized("no"), http.StatusUnauthorized, "unauthorized"},
		{apperror.Authentication("Invalid login credentials", 400), http.StatusUnauthorized, "authentication_failed"},
		{apperror.NotFound("ticket", "x"), http.StatusNotFound, "not_found"},
		{apperror.Busy(), http.StatusConflict, "busy"},
		{apperror.RateLimited(), http.StatusTooManyRequests, "rate_limited"},
		{apperror.NotConfigured(), http.StatusServiceUnavailable, "not_configured"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantType, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}
