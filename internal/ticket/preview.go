package ticket

import (
	"log/slog"
	"sync"
)

// Size is the rendered QR edge length in pixels.
const Size = 96

// DrawOptions controls how a QR code is drawn.
type DrawOptions struct {
	Width  int // pixels
	Margin int // quiet-zone modules
}

// Surface is something a QR code can be drawn onto.
type Surface interface {
	// Ready reports whether the surface can accept a draw.
	Ready() bool
	DrawQR(content string, opts DrawOptions) error
}

// Preview draws a payload onto its surface, redrawing only when the payload
// changes. Drawing is best effort: failures are logged and dropped.
type Preview struct {
	surface Surface
	logger  *slog.Logger

	mu   sync.Mutex
	last string
}

// NewPreview creates a Preview for surface.
func NewPreview(surface Surface, logger *slog.Logger) *Preview {
	return &Preview{surface: surface, logger: logger}
}

// Render draws payload unless it is empty, the surface is not ready, or it
// is the payload already drawn. It reports whether a draw was attempted.
func (p *Preview) Render(payload string) bool {
	if payload == "" || p.surface == nil || !p.surface.Ready() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if payload == p.last {
		return false
	}

	if err := p.surface.DrawQR(payload, DrawOptions{Width: Size, Margin: 0}); err != nil {
		p.logger.Warn("ticket preview draw failed", slog.String("error", err.Error()))
		return true
	}
	p.last = payload
	return true
}
