// Package ticket builds the demo ticket payload and renders it as a QR code.
//
// The payload is base64-encoded JSON. It is an encoding, not encryption:
// anyone holding the string can read and forge it.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DemoID is the ticket ID shown on the marketing page.
const DemoID = "DEMO-QR"

// Payload is the decoded ticket content.
type Payload struct {
	ID string `json:"id"`
	TS int64  `json:"ts"` // unix milliseconds
}

// Issued returns the payload timestamp as a time.
func (p Payload) Issued() time.Time {
	return time.UnixMilli(p.TS)
}

// Encode returns base64(JSON(p)).
func Encode(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("ticket: encoding payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DemoPayload returns the demo ticket payload stamped with now.
func DemoPayload(now time.Time) string {
	// Marshal of two scalar fields cannot fail.
	s, _ := Encode(Payload{ID: DemoID, TS: now.UnixMilli()})
	return s
}

// DecodePayload reverses Encode.
func DecodePayload(s string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Payload{}, fmt.Errorf("ticket: payload is not base64: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("ticket: payload is not JSON: %w", err)
	}
	return p, nil
}
