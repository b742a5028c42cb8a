package profiles

import (
	"context"

	"github.com/jmerrifield20/archivebroni/internal/users"
)

// Store persists profiles. IDs are unique, and usernames are unique
// case-insensitively.
//
// Insert returns ErrConflict when the ID exists and ErrUsernameTaken when the
// username belongs to another row. Get, GetByUsername, Update and Delete
// return ErrNotFound for a missing row. Update applies the patch with
// Patch.Apply inside the same unit of work as the read.
type Store interface {
	Insert(ctx context.Context, p *Profile) (*Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	Update(ctx context.Context, id string, patch Patch) (*Profile, error)
	Delete(ctx context.Context, id string) error
}

// IdentityProvider creates and manages identities. users.Provider satisfies it.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string, metadata map[string]string) (*users.Identity, error)
	Authenticate(ctx context.Context, email, password string) (*users.Identity, error)
	GetIdentity(ctx context.Context, id string) (*users.Identity, error)
	UpdateCredential(ctx context.Context, id, newPassword string) error
	DeleteIdentity(ctx context.Context, id string) error
}
