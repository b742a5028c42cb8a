package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/archivebroni/internal/profiles"
	sqlite3 "modernc.org/sqlite/lib"
)

// compile-time check that *ProfileStore implements profiles.Store
var _ profiles.Store = (*ProfileStore)(nil)

// ProfileStore persists profiles.Profile rows.
type ProfileStore struct {
	conn *sql.DB
}

const profileColumns = `id, username, email, full_name, bio, website, location, avatar_url,
	favorites, privacy_settings, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Insert writes a new profile row.
func (s *ProfileStore) Insert(ctx context.Context, p *profiles.Profile) (*profiles.Profile, error) {
	favs, privacy, err := encodeDocs(p)
	if err != nil {
		return nil, err
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.Email, p.FullName, p.Bio, p.Website, p.Location, p.AvatarURL,
		favs, privacy, p.CreatedAt.UnixMicro(), p.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		switch constraintCode(err) {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return nil, profiles.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return nil, profiles.ErrUsernameTaken
		}
		return nil, fmt.Errorf("sqlite: inserting profile: %w", err)
	}
	cp := *p
	cp.CreatedAt = fromMicros(p.CreatedAt.UnixMicro())
	cp.UpdatedAt = fromMicros(p.UpdatedAt.UnixMicro())
	return &cp, nil
}

// Get retrieves the profile for id.
func (s *ProfileStore) Get(ctx context.Context, id string) (*profiles.Profile, error) {
	return scanProfile(s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

// GetByUsername retrieves a profile by username, case-insensitively.
func (s *ProfileStore) GetByUsername(ctx context.Context, username string) (*profiles.Profile, error) {
	return scanProfile(s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE lower(username) = lower(?)`, username))
}

// Update applies patch to the row for id inside one transaction.
func (s *ProfileStore) Update(ctx context.Context, id string, patch profiles.Patch) (*profiles.Profile, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := scanProfile(tx.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
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
	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET username = ?, full_name = ?, bio = ?, website = ?, location = ?,
			avatar_url = ?, favorites = ?, privacy_settings = ?, updated_at = ?
		 WHERE id = ?`,
		p.Username, p.FullName, p.Bio, p.Website, p.Location, p.AvatarURL,
		favs, privacy, p.UpdatedAt.UnixMicro(), id,
	)
	if err != nil {
		if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, profiles.ErrUsernameTaken
		}
		return nil, fmt.Errorf("sqlite: updating profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return p, nil
}

// Delete removes the profile for id.
func (s *ProfileStore) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile: %w", err)
	}
	return requireOneRow(res, profiles.ErrNotFound)
}

func scanProfile(row rowScanner) (*profiles.Profile, error) {
	var (
		p                profiles.Profile
		favs             string
		privacy          sql.NullString
		created, updated int64
	)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.FullName, &p.Bio, &p.Website, &p.Location,
		&p.AvatarURL, &favs, &privacy, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profiles.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning profile: %w", err)
	}
	if p.Favorites, err = profiles.ParseFavorites([]byte(favs)); err != nil {
		return nil, fmt.Errorf("sqlite: decoding favorites: %w", err)
	}
	var privacyRaw []byte
	if privacy.Valid {
		privacyRaw = []byte(privacy.String)
	}
	if p.PrivacySettings, err = profiles.ParsePrivacy(privacyRaw); err != nil {
		return nil, fmt.Errorf("sqlite: decoding privacy settings: %w", err)
	}
	p.CreatedAt = fromMicros(created)
	p.UpdatedAt = fromMicros(updated)
	return &p, nil
}

func encodeDocs(p *profiles.Profile) (favs, privacy string, err error) {
	list := p.Favorites
	if list == nil {
		list = []profiles.Favorite{}
	}
	fb, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding favorites: %w", err)
	}
	pb, err := json.Marshal(p.PrivacySettings)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding privacy settings: %w", err)
	}
	return string(fb), string(pb), nil
}
