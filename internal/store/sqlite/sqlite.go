// Package sqlite implements the identity and profile stores on an embedded
// SQLite database. It backs local runs (storage.driver=sqlite) and the store
// integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the connection pool shared by the identity and profile stores.
type DB struct {
	conn   *sql.DB
	logger *zap.Logger
}

// New opens the database at path and applies the schema. ":memory:" gives a
// private in-memory database.
func New(path string, logger *zap.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	logger.Info("sqlite database ready", zap.String("path", path))
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Identities returns the identity store.
func (db *DB) Identities() *IdentityStore {
	return &IdentityStore{conn: db.conn}
}

// Profiles returns the profile store.
func (db *DB) Profiles() *ProfileStore {
	return &ProfileStore{conn: db.conn}
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash   TEXT NOT NULL DEFAULT '',
			metadata        TEXT NOT NULL DEFAULT '{}',
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			last_sign_in_at INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("creating identities table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id               TEXT PRIMARY KEY,
			username         TEXT NOT NULL,
			email            TEXT NOT NULL DEFAULT '',
			full_name        TEXT NOT NULL DEFAULT '',
			bio              TEXT NOT NULL DEFAULT '',
			website          TEXT NOT NULL DEFAULT '',
			location         TEXT NOT NULL DEFAULT '',
			avatar_url       TEXT NOT NULL DEFAULT '',
			favorites        TEXT NOT NULL DEFAULT '[]',
			privacy_settings TEXT,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS profiles_username_lower_idx ON profiles (lower(username));
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}
	return nil
}

// constraintCode returns the extended result code of a uniqueness violation,
// or 0 when err is not one. Connections without extended codes report the
// primary SQLITE_CONSTRAINT; the message then names the violated key.
func constraintCode(err error) int {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return 0
	}
	switch code := se.Code(); code {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return code
	case sqlite3.SQLITE_CONSTRAINT:
		msg := se.Error()
		switch {
		case strings.Contains(msg, "profiles.id"), strings.Contains(msg, "identities.id"):
			return sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return sqlite3.SQLITE_CONSTRAINT_UNIQUE
		}
	}
	return 0
}
