package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// Failure kinds reported by the server.
const (
	KindValidation        = "validation"
	KindIdentityCreation  = "identity_creation"
	KindProfileNotFound   = "profile_not_found"
	KindProfileAccess     = "profile_access"
	KindInvalidCredential = "invalid_credential"
	KindUnauthenticated   = "unauthenticated"
	KindIdentityAccess    = "identity_access"
	KindRateLimited       = "rate_limited"
)

// APIError is a failed operation.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
}

// envelope is the common part of every response body.
type envelope struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error,omitempty"`
	Warning string    `json:"warning,omitempty"`
}

// Favorite is a saved catalog item.
type Favorite struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	AddedAt  time.Time         `json:"added_at"`
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PrivacySettings controls public visibility.
type PrivacySettings struct {
	ProfilePublic bool `json:"profile_public"`
	EmailPublic   bool `json:"email_public"`
	AllowMessages bool `json:"allow_messages"`
}

// Profile is the caller's own profile.
type Profile struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	Email           string          `json:"email"`
	FullName        string          `json:"full_name,omitempty"`
	Bio             string          `json:"bio,omitempty"`
	Website         string          `json:"website,omitempty"`
	Location        string          `json:"location,omitempty"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
	Favorites       []Favorite      `json:"favorites"`
	PrivacySettings PrivacySettings `json:"privacy_settings"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PublicProfile is what other users see.
type PublicProfile struct {
	Username    string    `json:"username"`
	FullName    string    `json:"full_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Website     string    `json:"website,omitempty"`
	Location    string    `json:"location,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Email       string    `json:"email,omitempty"`
	MemberSince time.Time `json:"member_since"`
}

// Session is a signed-in session handle.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registration is the outcome of Register.
type Registration struct {
	IdentityID     string   `json:"identity_id"`
	ProfileCreated bool     `json:"profile_created"`
	Profile        *Profile `json:"profile,omitempty"`
	Warning        string   `json:"warning,omitempty"`
}

// ProfileUpdate carries the editable fields. Nil fields are unchanged.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Website  *string `json:"website,omitempty"`
	Location *string `json:"location,omitempty"`
}

// Favorites is the outcome of a favorites change.
type Favorites struct {
	Favorites []Favorite `json:"favorites"`
	Changed   bool       `json:"changed"`
}

// Deletion is the outcome of DeleteAccount.
type Deletion struct {
	ProfileDeleted  bool   `json:"profile_deleted"`
	IdentityDeleted bool   `json:"identity_deleted"`
	Warning         string `json:"warning,omitempty"`
}

// Export is the personal data bundle. It is kept raw so it can be written
// to disk unchanged.
type Export = json.RawMessage
