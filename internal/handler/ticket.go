package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/cinemax-club/internal/apperror"
	"github.com/sakif/cinemax-club/internal/ticket"
)

// TicketHandler serves the visitor's demo ticket.
type TicketHandler struct {
	shells Shells
	logger *slog.Logger
}

func NewTicketHandler(shells Shells, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{shells: shells, logger: logger}
}

// HandleQR serves GET /ticket/qr.png.
func (h *TicketHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	s, err := shellFor(h.shells, r)
	if err != nil {
		writeError(w, err)
		return
	}
	img, ok := s.QRCode()
	if !ok {
		writeError(w, apperror.NotFound("ticket image", ticket.DemoID))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

// TicketResponse is the decoded demo ticket.
type TicketResponse struct {
	Payload  string    `json:"payload"`
	ID       string    `json:"id"`
	TS       int64     `json:"ts"`
	IssuedAt time.Time `json:"issued_at"`
	// Encrypted is always false: the payload is base64, readable by anyone.
	Encrypted bool `json:"encrypted"`
}

// HandleTicket serves GET /api/ticket.
func (h *TicketHandler) HandleTicket(w http.ResponseWriter, r *http.Request) {
	s, err := shellFor(h.shells, r)
	if err != nil {
		writeError(w, err)
		return
	}

	payload := s.Ticket()
	decoded, err := ticket.DecodePayload(payload)
	if err != nil {
		h.logger.Error("demo ticket does not decode", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TicketResponse{
		Payload:  payload,
		ID:       decoded.ID,
		TS:       decoded.TS,
		IssuedAt: decoded.Issued().UTC(),
	})
}
