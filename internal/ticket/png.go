package ticket

import (
	"fmt"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
)

// PNGSurface renders QR codes to PNG bytes held in memory.
type PNGSurface struct {
	mu  sync.RWMutex
	png []byte
}

var _ Surface = (*PNGSurface)(nil)

// NewPNGSurface returns an empty surface.
func NewPNGSurface() *PNGSurface {
	return &PNGSurface{}
}

// Ready is always true; the surface needs no setup.
func (s *PNGSurface) Ready() bool { return s != nil }

// DrawQR encodes content at medium error correction.
func (s *PNGSurface) DrawQR(content string, opts DrawOptions) error {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("ticket: building qr code: %w", err)
	}
	if opts.Margin == 0 {
		q.DisableBorder = true
	}

	img, err := q.PNG(opts.Width)
	if err != nil {
		return fmt.Errorf("ticket: rendering qr code: %w", err)
	}

	s.mu.Lock()
	s.png = img
	s.mu.Unlock()
	return nil
}

// Bytes returns the last rendered PNG, or nil before the first draw.
func (s *PNGSurface) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.png
}
