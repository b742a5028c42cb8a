package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an identity lookup finds no matching record.
var ErrNotFound = errors.New("identity not found")

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository stores identities in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new identity. Sets ID, CreatedAt, UpdatedAt on the identity.
func (r *Repository) Create(ctx context.Context, ident *Identity) error {
	id := uuid.New()
	now := time.Now().UTC()
	ident.ID = id.String()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	if ident.Metadata == nil {
		ident.Metadata = map[string]string{}
	}

	q := `
		INSERT INTO identities (id, email, password_hash, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q,
		id, strings.ToLower(ident.Email), ident.PasswordHash, ident.Metadata, ident.CreatedAt, ident.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by ID. Malformed IDs are reported as ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*Identity, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.scanOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, uid)
}

// GetByEmail retrieves an identity by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.scanOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, strings.ToLower(email))
}

// SetPasswordHash replaces the stored credential for an identity.
func (r *Repository) SetPasswordHash(ctx context.Context, id, hash string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	q := `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, uid, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSignIn records a successful authentication.
func (r *Repository) TouchSignIn(ctx context.Context, id string, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.db.Exec(ctx, `UPDATE identities SET last_sign_in_at = $2 WHERE id = $1`, uid, at)
	return err
}

// Delete removes an identity. Deleting a missing identity returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

const identityColumns = `id, email, password_hash, metadata, created_at, updated_at, last_sign_in_at`

// scanOne executes a single-row query and scans the result into an Identity.
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Identity, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var (
		ident Identity
		id    uuid.UUID
	)
	if err := rows.Scan(
		&id, &ident.Email, &ident.PasswordHash, &ident.Metadata,
		&ident.CreatedAt, &ident.UpdatedAt, &ident.LastSignInAt,
	); err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	ident.ID = id.String()
	return &ident, rows.Err()
}
