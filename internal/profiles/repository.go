package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Constraint names from migrations/002_profiles.up.sql.
const (
	pkConstraint       = "profiles_pkey"
	usernameConstraint = "profiles_username_lower_idx"
)

// Repository stores profiles in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, username, email, full_name, bio, website, location, avatar_url,
	favorites, privacy_settings, created_at, updated_at`

// Insert writes a new profile row.
func (r *Repository) Insert(ctx context.Context, p *Profile) (*Profile, error) {
	uid, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert profile: malformed id %q", p.ID)
	}
	favs, privacy, err := encodeDocs(p)
	if err != nil {
		return nil, err
	}

	q := `
		INSERT INTO profiles (id, username, email, full_name, bio, website, location, avatar_url,
			favorites, privacy_settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.Exec(ctx, q,
		uid, p.Username, p.Email, p.FullName, p.Bio, p.Website, p.Location, p.AvatarURL,
		favs, privacy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return nil, mapWriteError("insert profile", err)
	}
	cp := *p
	return &cp, nil
}

// Get retrieves the profile for id.
func (r *Repository) Get(ctx context.Context, id string) (*Profile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, uid))
}

// GetByUsername retrieves a profile by username, case-insensitively.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE lower(username) = lower($1)`, username))
}

// Update locks the row, applies patch and writes it back in one transaction.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (*Profile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p, err := scanProfile(tx.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, uid))
	if err != nil {
		return nil, err
	}
	if !patch.Apply(p) {
		return p, nil
	}

	favs, privacy, err := encodeDocs(p)
	if err != nil {
		return nil, err
	}
	q := `
		UPDATE profiles SET username = $2, full_name = $3, bio = $4, website = $5, location = $6,
			avatar_url = $7, favorites = $8, privacy_settings = $9, updated_at = $10
		WHERE id = $1`
	if _, err := tx.Exec(ctx, q,
		uid, p.Username, p.FullName, p.Bio, p.Website, p.Location, p.AvatarURL, favs, privacy, p.UpdatedAt,
	); err != nil {
		return nil, mapWriteError("update profile", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// Delete removes the profile for id.
func (r *Repository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p                   Profile
		id                  uuid.UUID
		favsRaw, privacyRaw []byte
	)
	err := row.Scan(&id, &p.Username, &p.Email, &p.FullName, &p.Bio, &p.Website, &p.Location,
		&p.AvatarURL, &favsRaw, &privacyRaw, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p.ID = id.String()
	if p.Favorites, err = ParseFavorites(favsRaw); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	if p.PrivacySettings, err = ParsePrivacy(privacyRaw); err != nil {
		return nil, fmt.Errorf("decode privacy settings: %w", err)
	}
	return &p, nil
}

func encodeDocs(p *Profile) (favs, privacy []byte, err error) {
	list := p.Favorites
	if list == nil {
		list = []Favorite{}
	}
	if favs, err = json.Marshal(list); err != nil {
		return nil, nil, fmt.Errorf("encode favorites: %w", err)
	}
	if privacy, err = json.Marshal(p.PrivacySettings); err != nil {
		return nil, nil, fmt.Errorf("encode privacy settings: %w", err)
	}
	return favs, privacy, nil
}

// mapWriteError converts unique violations to the store sentinels.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case pkConstraint:
			return ErrConflict
		case usernameConstraint:
			return ErrUsernameTaken
		}
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
