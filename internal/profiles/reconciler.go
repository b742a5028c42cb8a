package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/archivebroni/internal/users"
	"go.uber.org/zap"
)

// Registration is the two-part outcome of Register: the identity exists once
// Register returns without error, while ProfileCreated reports whether the
// matching profile row is in place.
type Registration struct {
	IdentityID     string   `json:"identity_id"`
	ProfileCreated bool     `json:"profile_created"`
	Profile        *Profile `json:"profile,omitempty"`
	Warning        string   `json:"warning,omitempty"`
	// ProfileErr is the materialization failure behind Warning.
	ProfileErr error `json:"-"`
}

// Recorder observes reconciliation outcomes, e.g. for metrics.
type Recorder func(op, outcome string)

// Reconciler keeps identities and profiles in 1:1 correspondence.
type Reconciler struct {
	idp    IdentityProvider
	store  Store
	logger *zap.Logger
	now    func() time.Time
	record Recorder
}

// NewReconciler creates a new Reconciler.
func NewReconciler(idp IdentityProvider, store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		idp:    idp,
		store:  store,
		logger: logger,
		now:    time.Now,
		record: func(string, string) {},
	}
}

// SetRecorder installs an outcome observer.
func (r *Reconciler) SetRecorder(rec Recorder) {
	if rec != nil {
		r.record = rec
	}
}

// SetClock overrides the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Register creates an identity and materializes its profile. Input is
// validated before any remote call. A provider rejection is returned as a
// KindIdentityCreation error; a profile failure after the identity exists is
// reported through the Registration instead of an error.
func (r *Reconciler) Register(ctx context.Context, email, password, username string) (*Registration, error) {
	const op = "register"
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	switch {
	case email == "":
		return nil, validationError(op, "email is required")
	case strings.TrimSpace(password) == "":
		return nil, validationError(op, "password is required")
	case username == "":
		return nil, validationError(op, "username is required")
	case len(password) < users.MinPasswordLength:
		return nil, validationError(op, "password must be at least %d characters", users.MinPasswordLength)
	}

	ident, err := r.idp.CreateIdentity(ctx, email, password, map[string]string{users.MetadataUsername: username})
	if err != nil {
		r.record(op, "identity_rejected")
		return nil, &Error{Kind: KindIdentityCreation, Op: op, Err: err}
	}

	reg := &Registration{IdentityID: ident.ID}
	p, err := r.Materialize(ctx, ident.ID, username, ident.Email)
	if err != nil {
		r.logger.Warn("profile materialization deferred",
			zap.String("identity_id", ident.ID),
			zap.Error(err),
		)
		r.record(op, "profile_deferred")
		reg.Warning = fmt.Sprintf("account created, but profile setup did not complete: %v", err)
		reg.ProfileErr = err
		return reg, nil
	}

	r.record(op, "ok")
	reg.ProfileCreated = true
	reg.Profile = p
	return reg, nil
}

// Materialize inserts the profile for id, or returns the row that already
// exists for it. It never checks before inserting.
func (r *Reconciler) Materialize(ctx context.Context, id, username, email string) (*Profile, error) {
	const op = "materialize"
	now := r.now().UTC().Truncate(time.Microsecond)
	p := &Profile{
		ID:              id,
		Username:        username,
		Email:           email,
		Favorites:       []Favorite{},
		PrivacySettings: DefaultPrivacySettings(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := r.store.Insert(ctx, p)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrUsernameTaken) {
		return nil, classify(op, err)
	}

	// A concurrent flow may have inserted this row first. Postgres reports
	// either constraint for an identical row, so both paths re-read by ID.
	existing, getErr := r.store.Get(ctx, id)
	switch {
	case getErr == nil:
		r.logger.Debug("profile insert lost race; using existing row", zap.String("identity_id", id))
		r.record(op, "conflict_resolved")
		return existing, nil
	case errors.Is(getErr, ErrNotFound):
		return nil, classify(op, err)
	default:
		return nil, classify(op, getErr)
	}
}

// EnsureProfile returns the profile for ident, creating it when missing.
// Safe to call any number of times concurrently.
func (r *Reconciler) EnsureProfile(ctx context.Context, ident *users.Identity) (*Profile, error) {
	const op = "ensure_profile"
	if ident == nil || ident.ID == "" {
		return nil, &Error{Kind: KindUnauthenticated, Op: op}
	}

	p, err := r.store.Get(ctx, ident.ID)
	if err == nil {
		r.record(op, "hit")
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		r.record(op, "error")
		return nil, &Error{Kind: KindProfileAccess, Op: op, Err: err}
	}

	username := FallbackUsername(ident)
	p, err = r.Materialize(ctx, ident.ID, username, ident.Email)
	if errors.Is(err, ErrUsernameTaken) {
		p, err = r.Materialize(ctx, ident.ID, SuffixedUsername(username, ident.ID), ident.Email)
	}
	if err != nil {
		r.record(op, "error")
		return nil, &Error{Kind: KindProfileAccess, Op: op, Err: err}
	}

	r.logger.Info("profile self-healed", zap.String("identity_id", ident.ID), zap.String("username", p.Username))
	r.record(op, "healed")
	return p, nil
}

// FallbackUsername picks the username for a self-healed profile: the one
// recorded at signup, else the local part of the email.
func FallbackUsername(ident *users.Identity) string {
	if u := strings.TrimSpace(ident.Username()); u != "" {
		return u
	}
	local, _, _ := strings.Cut(ident.Email, "@")
	if local = strings.TrimSpace(local); local != "" {
		return local
	}
	return "user-" + shortID(ident.ID)
}

// SuffixedUsername disambiguates username with the first characters of id.
func SuffixedUsername(username, id string) string {
	return username + "-" + shortID(id)
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
