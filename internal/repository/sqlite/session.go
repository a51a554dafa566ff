package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/cinemax-club/internal/model"
	"github.com/sakif/cinemax-club/internal/repository"
)

// compile-time check that *DB implements repository.SessionRepository
var _ repository.SessionRepository = (*DB)(nil)

// Load returns the stored session for visitorID, or (nil, nil) if none.
func (db *DB) Load(ctx context.Context, visitorID string) (*model.Session, error) {
	var (
		s        model.Session
		userJSON string
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT access_token, token_type, refresh_token, expires_in, expires_at, user_json
		 FROM sessions WHERE visitor_id = ?`,
		visitorID,
	).Scan(
		&s.AccessToken,
		&s.TokenType,
		&s.RefreshToken,
		&s.ExpiresIn,
		&s.ExpiresAt,
		&userJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: loading session for %s: %w", visitorID, err)
	}

	if userJSON != "" {
		var u model.User
		if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
			return nil, fmt.Errorf("sqlite: decoding stored user for %s: %w", visitorID, err)
		}
		s.User = &u
	}

	return &s, nil
}

// Save inserts or replaces the visitor's session.
func (db *DB) Save(ctx context.Context, visitorID string, session *model.Session) error {
	if session == nil {
		return db.Delete(ctx, visitorID)
	}

	var userJSON string
	if session.User != nil {
		raw, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("sqlite: encoding user for %s: %w", visitorID, err)
		}
		userJSON = string(raw)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (visitor_id, access_token, token_type, refresh_token, expires_in, expires_at, user_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(visitor_id) DO UPDATE SET
			access_token  = excluded.access_token,
			token_type    = excluded.token_type,
			refresh_token = excluded.refresh_token,
			expires_in    = excluded.expires_in,
			expires_at    = excluded.expires_at,
			user_json     = excluded.user_json,
			updated_at    = excluded.updated_at`,
		visitorID,
		session.AccessToken,
		session.TokenType,
		session.RefreshToken,
		session.ExpiresIn,
		session.ExpiresAt,
		userJSON,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving session for %s: %w", visitorID, err)
	}
	return nil
}

// Delete removes the visitor's session. Deleting a missing row is not an error.
func (db *DB) Delete(ctx context.Context, visitorID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE visitor_id = ?`, visitorID); err != nil {
		return fmt.Errorf("sqlite: deleting session for %s: %w", visitorID, err)
	}
	return nil
}

// PruneBefore deletes sessions not written since cutoff and returns how many
// rows went away.
func (db *DB) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning sessions: %w", err)
	}
	return res.RowsAffected()
}
