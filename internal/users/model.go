package users

import (
	"time"
)

// MetadataUsername is the metadata key holding the username chosen at signup.
const MetadataUsername = "username"

// Identity is a login-capable account. Profiles reference it by ID but never
// write it.
type Identity struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastSignInAt *time.Time        `json:"last_sign_in_at,omitempty"`
}

// Username returns the username recorded in metadata at signup, if any.
func (i *Identity) Username() string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	return i.Metadata[MetadataUsername]
}
