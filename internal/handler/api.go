package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/model"
)

// APIHandler serves the small JSON API.
type APIHandler struct {
	shells     Shells
	configured bool
	logger     *slog.Logger
}

func NewAPIHandler(shells Shells, configured bool, logger *slog.Logger) *APIHandler {
	return &APIHandler{shells: shells, configured: configured, logger: logger}
}

// MeResponse describes the signed-in visitor. Tokens are never included.
type MeResponse struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	Profile *model.Profile `json:"profile"`
}

// HandleMe serves GET /api/me: the projected profile, or 401 when signed out.
func (h *APIHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	s, err := shellFor(h.shells, r)
	if err != nil {
		writeError(w, err)
		return
	}
	awaitReady(r.Context(), s)

	session := s.Session()
	if session == nil || session.User == nil {
		writeError(w, apperror.Unauthorized("Sign in to see your profile."))
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		ID:      session.User.ID,
		Email:   session.User.Email,
		Profile: s.Profile(),
	})
}

// HealthResponse reports liveness and which identity variant is active.
type HealthResponse struct {
	Status   string `json:"status"`
	Identity string `json:"identity"`
}

// HandleHealth serves GET /healthz.
func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	identity := "not_configured"
	if h.configured {
		identity = "supabase"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Identity: identity})
}
