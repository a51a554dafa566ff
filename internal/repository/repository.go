// Package repository declares the storage interfaces used by the identity
// adapter. Implementations live in subpackages (see sqlite).
package repository

import (
	"context"

	"github.com/sakif/cinemax-club/internal/model"
)

// SessionRepository persists one identity session per visitor.
//
// Load returns (nil, nil) when the visitor has no stored session.
// Delete is idempotent.
type SessionRepository interface {
	Load(ctx context.Context, visitorID string) (*model.Session, error)
	Save(ctx context.Context, visitorID string, session *model.Session) error
	Delete(ctx context.Context, visitorID string) error
}
