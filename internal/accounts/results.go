package accounts

import (
	"errors"
	"time"

	"github.com/jmerrifield20/archivebroni/internal/identity"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
	"github.com/jmerrifield20/archivebroni/internal/session"
	"github.com/jmerrifield20/archivebroni/internal/users"
)

// Failure describes why an operation did not succeed.
type Failure struct {
	Kind    profiles.Kind `json:"kind"`
	Message string        `json:"message"`
}

// Result is embedded in every operation outcome.
type Result struct {
	Success bool     `json:"success"`
	Error   *Failure `json:"error,omitempty"`
	Warning string   `json:"warning,omitempty"`
}

// Failed reports whether the operation did not succeed.
func (r Result) Failed() bool { return !r.Success }

func ok() Result { return Result{Success: true} }

func failed(f *Failure) Result { return Result{Error: f} }

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	Result
	IdentityID     string            `json:"identity_id,omitempty"`
	ProfileCreated bool              `json:"profile_created"`
	Profile        *profiles.Profile `json:"profile,omitempty"`
}

// LoginResult is the outcome of Login.
type LoginResult struct {
	Result
	Session *session.Session  `json:"session,omitempty"`
	Profile *profiles.Profile `json:"profile,omitempty"`
}

// ProfileResult is the outcome of operations returning the caller's profile.
type ProfileResult struct {
	Result
	Profile *profiles.Profile `json:"profile,omitempty"`
}

// FavoritesResult is the outcome of favorite list changes. Changed is false
// for a re-add of an existing favorite or a removal of an absent one.
type FavoritesResult struct {
	Result
	Favorites []profiles.Favorite `json:"favorites"`
	Changed   bool                `json:"changed"`
}

// DeleteResult is the outcome of DeleteAccount.
type DeleteResult struct {
	Result
	ProfileDeleted  bool `json:"profile_deleted"`
	IdentityDeleted bool `json:"identity_deleted"`
}

// Export is the personal data bundle returned by ExportData.
type Export struct {
	Profile    *profiles.Profile `json:"profile"`
	Auth       ExportAuth        `json:"auth"`
	ExportDate time.Time         `json:"export_date"`
}

// ExportAuth is the identity part of an Export.
type ExportAuth struct {
	Email      string     `json:"email"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSignIn *time.Time `json:"last_sign_in"`
}

// ExportResult is the outcome of ExportData.
type ExportResult struct {
	Result
	Export *Export `json:"export,omitempty"`
}

// PublicResult is the outcome of PublicProfile.
type PublicResult struct {
	Result
	Profile *profiles.PublicView `json:"profile,omitempty"`
}

// failure classifies err for callers.
func failure(err error) *Failure {
	kind := profiles.KindOf(err)
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		kind = profiles.KindUnauthenticated
	case errors.Is(err, users.ErrInvalidCredential):
		kind = profiles.KindInvalidCredential
	}
	return &Failure{Kind: kind, Message: err.Error()}
}

func validation(msg string) *Failure {
	return &Failure{Kind: profiles.KindValidation, Message: msg}
}
