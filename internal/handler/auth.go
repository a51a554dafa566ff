package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/metrics"
	"github.com/sakif/cinemax-club/internal/modal"
	"github.com/sakif/cinemax-club/internal/shell"
)

const maxFormBytes = 16 << 10

// AuthRecorder counts auth submissions. *metrics.Metrics implements it.
type AuthRecorder interface {
	RecordAuth(mode, outcome string)
}

// AuthHandler drives the visitor's auth modal from form posts. Every action
// ends in a redirect to the page, which renders the new modal state and any
// queued toasts.
type AuthHandler struct {
	shells  Shells
	metrics AuthRecorder
	logger  *slog.Logger
}

func NewAuthHandler(shells Shells, rec AuthRecorder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{shells: shells, metrics: rec, logger: logger}
}

// begin resolves the visitor's shell and parses the posted form. When it
// returns false the response has already been written.
func (h *AuthHandler) begin(w http.ResponseWriter, r *http.Request) (*shell.Shell, bool) {
	s, err := shellFor(h.shells, r)
	if err != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.Toasts().Error("The form could not be read. Please try again.")
		redirectHome(w, r)
		return nil, false
	}
	return s, true
}

// HandleOpen serves POST /auth/open.
func (h *AuthHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	s, ok := h.begin(w, r)
	if !ok {
		return
	}
	s.ShowAuth()
	redirectHome(w, r)
}

// HandleClose serves POST /auth/close. A close during a submit is ignored.
func (h *AuthHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	s, ok := h.begin(w, r)
	if !ok {
		return
	}
	s.Modal().Close()
	redirectHome(w, r)
}

// HandleMode serves POST /auth/mode?mode=login|register. The page switches
// forms in the browser; this route serves clients that post the switch.
// Posted fields other than the password are kept.
func (h *AuthHandler) HandleMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.begin(w, r)
	if !ok {
		return
	}
	mode, ok := modal.ParseMode(r.FormValue("mode"))
	if !ok {
		s.Toasts().Error("Unknown form mode.")
		redirectHome(w, r)
		return
	}
	m := s.Modal()
	m.Update(fieldsFromForm(r))
	m.SetMode(mode)
	redirectHome(w, r)
}

// HandleSubmit serves POST /auth/submit.
func (h *AuthHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer redirectHome(w, r)

	m := s.Modal()
	if !m.Snapshot().Open {
		// stale form from a closed modal
		return
	}
	if posted, ok := modal.ParseMode(r.PostFormValue("mode")); ok {
		m.SetMode(posted)
	}
	fields := fieldsFromForm(r)
	password := r.PostFormValue("password")
	m.Update(fields)
	state := m.Snapshot()
	mode := string(state.Mode)

	if err := validate(state.Mode, fields, password); err != nil {
		h.metrics.RecordAuth(mode, metrics.OutcomeInvalid)
		s.Toasts().Error(err.Error())
		return
	}
	if !s.AllowSubmit() {
		h.metrics.RecordAuth(mode, metrics.OutcomeRateLimited)
		s.Toasts().Error(apperror.RateLimited().Message)
		return
	}

	// the sign-in should finish even if the browser gives up waiting
	err := m.Submit(context.WithoutCancel(r.Context()), password)
	switch {
	case err == nil:
		h.metrics.RecordAuth(mode, metrics.OutcomeSuccess)
	case errors.Is(err, modal.ErrClosed):
		// closed by another tab in the meantime
	case errors.Is(err, apperror.ErrBusy):
		h.metrics.RecordAuth(mode, metrics.OutcomeBusy)
	default:
		h.metrics.RecordAuth(mode, metrics.OutcomeFailure)
		h.logger.Info("auth submit failed",
			slog.String("mode", mode),
			slog.String("error", err.Error()),
		)
	}
}

// HandleLogout serves POST /auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.begin(w, r)
	if !ok {
		return
	}
	s.SignOut(context.WithoutCancel(r.Context()))
	redirectHome(w, r)
}

func fieldsFromForm(r *http.Request) modal.Fields {
	return modal.Fields{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		SIC:      strings.TrimSpace(r.PostFormValue("sic")),
		FullName: strings.TrimSpace(r.PostFormValue("full_name")),
		Branch:   strings.TrimSpace(r.PostFormValue("branch")),
		Year:     strings.TrimSpace(r.PostFormValue("year")),
	}
}

// validate enforces the required fields of each form before anything is
// sent to the identity backend.
func validate(mode modal.Mode, f modal.Fields, password string) error {
	type field struct{ name, label, value string }
	required := []field{}
	if mode == modal.ModeRegister {
		required = append(required,
			field{"sic", "SIC", f.SIC},
			field{"full_name", "Full Name", f.FullName},
			field{"branch", "Branch", f.Branch},
			field{"year", "Year", f.Year},
		)
	}
	required = append(required,
		field{"email", "Email", f.Email},
		field{"password", "Password", password},
	)

	for _, fl := range required {
		if fl.value == "" {
			return apperror.ValidationFailed(fl.name, fl.label+" is required.")
		}
	}
	return nil
}
