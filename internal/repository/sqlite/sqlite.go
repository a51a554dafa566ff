// Package sqlite implements the repository interfaces on top of SQLite.
//
// The driver is modernc.org/sqlite, a pure Go port, so the binary builds
// without cgo. The only table is `sessions`: the identity adapter's
// persisted token bundle per visitor, which stands in for the browser
// storage the hosted SDK would normally use.
package sqlite

import (
	"database/sql"
	"fmt"

	// registers the "sqlite" driver with database/sql
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/cinemax.db" → file-based database
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is a separate database, so the pool is
	// pinned to one connection there.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			visitor_id    TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			token_type    TEXT NOT NULL DEFAULT 'bearer',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_in    INTEGER NOT NULL DEFAULT 0,
			expires_at    INTEGER NOT NULL DEFAULT 0,
			user_json     TEXT NOT NULL DEFAULT '',
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}
	return nil
}
