package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/archivebroni/internal/users"
)

// IdentityStore persists users.Identity rows.
type IdentityStore struct {
	conn *sql.DB
}

// Create inserts a new identity and assigns its ID and timestamps.
func (s *IdentityStore) Create(ctx context.Context, ident *users.Identity) error {
	now := time.Now().UTC().Truncate(time.Microsecond)
	ident.ID = uuid.New().String()
	ident.Email = strings.ToLower(ident.Email)
	ident.CreatedAt = now
	ident.UpdatedAt = now
	if ident.Metadata == nil {
		ident.Metadata = map[string]string{}
	}
	md, err := json.Marshal(ident.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encoding metadata: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ident.ID, ident.Email, ident.PasswordHash, string(md), now.UnixMicro(), now.UnixMicro(),
	)
	if err != nil {
		if constraintCode(err) != 0 {
			return users.ErrDuplicateEmail
		}
		return fmt.Errorf("sqlite: inserting identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (s *IdentityStore) GetByID(ctx context.Context, id string) (*users.Identity, error) {
	return s.scanOne(s.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id))
}

// GetByEmail retrieves an identity by email, case-insensitively.
func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (*users.Identity, error) {
	return s.scanOne(s.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = ?`, email))
}

// SetPasswordHash replaces the stored credential.
func (s *IdentityStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE identities SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC().UnixMicro(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password hash: %w", err)
	}
	return requireOneRow(res, users.ErrNotFound)
}

// TouchSignIn records a successful authentication.
func (s *IdentityStore) TouchSignIn(ctx context.Context, id string, at time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE identities SET last_sign_in_at = ? WHERE id = ?`, at.UTC().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("sqlite: recording sign-in: %w", err)
	}
	return nil
}

// Delete removes an identity.
func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting identity: %w", err)
	}
	return requireOneRow(res, users.ErrNotFound)
}

const identityColumns = `id, email, password_hash, metadata, created_at, updated_at, last_sign_in_at`

func (s *IdentityStore) scanOne(row *sql.Row) (*users.Identity, error) {
	var (
		ident            users.Identity
		md               string
		created, updated int64
		lastSignIn       sql.NullInt64
	)
	err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &md, &created, &updated, &lastSignIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning identity: %w", err)
	}
	if err := json.Unmarshal([]byte(md), &ident.Metadata); err != nil {
		return nil, fmt.Errorf("sqlite: decoding metadata: %w", err)
	}
	ident.CreatedAt = fromMicros(created)
	ident.UpdatedAt = fromMicros(updated)
	if lastSignIn.Valid {
		t := fromMicros(lastSignIn.Int64)
		ident.LastSignInAt = &t
	}
	return &ident, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func requireOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
