// Package handler contains the HTTP handlers.
//
// Handlers are glue: they parse the request, call into the visitor's shell,
// and write the response. Each concern gets its own struct holding its
// dependencies, so nothing is global and templates are parsed once.
package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/cinemax-club/internal/shell"
	"github.com/sakif/cinemax-club/web"
)

const pageTitle = "Cinemax Club • Silicon University"

// PageHandler renders the single marketing page.
type PageHandler struct {
	templates  *template.Template
	shells     Shells
	configured bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewPageHandler parses the embedded templates once.
// configured reports whether the identity backend is set up.
func NewPageHandler(shells Shells, configured bool, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		templates:  tmpl,
		shells:     shells,
		configured: configured,
		now:        time.Now,
		logger:     logger,
	}, nil
}

type pageData struct {
	Title      string
	View       shell.View
	Features   []web.Feature
	Shows      []web.Show
	Year       int
	Configured bool
}

// HandleIndex serves GET /. Rendering drains the visitor's toasts.
//
// The page is rendered into a buffer first so a template error can still
// produce a clean 500 instead of half a page.
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	s, err := shellFor(h.shells, r)
	if err != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	awaitReady(r.Context(), s)

	data := pageData{
		Title:      pageTitle,
		View:       s.View(),
		Features:   web.Features,
		Shows:      web.Shows,
		Year:       h.now().Year(),
		Configured: h.configured,
	}

	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// the modal echoes typed form values
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
