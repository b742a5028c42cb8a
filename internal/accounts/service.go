// Package accounts is the caller-facing surface of the user system. Every
// operation returns a result value carrying {success, error}; none of them
// return Go errors.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmerrifield20/archivebroni/internal/avatars"
	"github.com/jmerrifield20/archivebroni/internal/email"
	"github.com/jmerrifield20/archivebroni/internal/identity"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
	"github.com/jmerrifield20/archivebroni/internal/session"
	"github.com/jmerrifield20/archivebroni/internal/users"
	"go.uber.org/zap"
)

// MinNewPasswordLength applies to password changes.
const MinNewPasswordLength = 8

// Sessions issues and resolves session handles. *session.Manager satisfies it.
type Sessions interface {
	SignIn(ident *users.Identity) (*session.Session, error)
	Current(ctx context.Context, token string) (*users.Identity, error)
	SignOut(ctx context.Context, token string) error
	Forget(identityID string)
}

// AvatarStore keeps uploaded avatar objects. *avatars.MinioStore satisfies it.
type AvatarStore interface {
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) error
	PublicURL(key string) string
	RemoveAll(ctx context.Context, prefix string) error
}

// Upload is an avatar file received from a caller.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ProfileUpdate carries the editable profile fields. Nil fields are unchanged.
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Website  *string `json:"website,omitempty"`
	Location *string `json:"location,omitempty"`
}

// Service implements the account operations.
type Service struct {
	rec      *profiles.Reconciler
	idp      profiles.IdentityProvider
	sessions Sessions
	avatars  AvatarStore
	mailer   email.EmailSender
	logger   *zap.Logger

	noticeTimeout time.Duration
}

// NewService creates a new Service. avatarStore may be nil, in which case
// avatar uploads fail with a profile_access failure.
func NewService(rec *profiles.Reconciler, idp profiles.IdentityProvider, sessions Sessions, avatarStore AvatarStore, mailer email.EmailSender, logger *zap.Logger) *Service {
	return &Service{
		rec:           rec,
		idp:           idp,
		sessions:      sessions,
		avatars:       avatarStore,
		mailer:        mailer,
		logger:        logger,
		noticeTimeout: 10 * time.Second,
	}
}

// Register creates an identity and its profile. A profile failure after the
// identity exists still succeeds, with ProfileCreated=false and a warning.
func (s *Service) Register(ctx context.Context, emailAddr, password, username string) RegisterResult {
	reg, err := s.rec.Register(ctx, emailAddr, password, username)
	if err != nil {
		return RegisterResult{Result: failed(failure(err))}
	}
	res := RegisterResult{
		Result:         ok(),
		IdentityID:     reg.IdentityID,
		ProfileCreated: reg.ProfileCreated,
		Profile:        reg.Profile,
	}
	res.Warning = reg.Warning
	return res
}

// Login authenticates and opens a session. The profile is self-healed on the
// way; a failure there is a warning, not a failed login.
func (s *Service) Login(ctx context.Context, emailAddr, password string) LoginResult {
	if strings.TrimSpace(emailAddr) == "" || password == "" {
		return LoginResult{Result: failed(validation("email and password are required"))}
	}
	ident, err := s.idp.Authenticate(ctx, emailAddr, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredential) {
			return LoginResult{Result: failed(failure(err))}
		}
		s.logger.Error("authenticate failed", zap.Error(err))
		return LoginResult{Result: failed(&Failure{Kind: profiles.KindIdentityAccess, Message: "sign-in is temporarily unavailable"})}
	}

	sess, err := s.sessions.SignIn(ident)
	if err != nil {
		s.logger.Error("issue session failed", zap.String("identity_id", ident.ID), zap.Error(err))
		return LoginResult{Result: failed(&Failure{Kind: profiles.KindIdentityAccess, Message: "could not open a session"})}
	}

	res := LoginResult{Result: ok(), Session: sess}
	p, err := s.rec.EnsureProfile(ctx, ident)
	if err != nil {
		s.logger.Warn("profile unavailable at login", zap.String("identity_id", ident.ID), zap.Error(err))
		res.Warning = "signed in, but your profile could not be loaded; reload to retry"
		return res
	}
	res.Profile = p
	return res
}

// Logout revokes the session.
func (s *Service) Logout(ctx context.Context, token string) Result {
	if err := s.sessions.SignOut(ctx, token); err != nil {
		return failed(s.sessionFailure(err))
	}
	return ok()
}

// EnsureProfile returns the caller's profile, creating it when missing.
func (s *Service) EnsureProfile(ctx context.Context, token string) ProfileResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return ProfileResult{Result: failed(f)}
	}
	p, err := s.rec.EnsureProfile(ctx, ident)
	if err != nil {
		return ProfileResult{Result: failed(failure(err))}
	}
	return ProfileResult{Result: ok(), Profile: p}
}

// UpdateProfile edits the caller's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) ProfileResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return ProfileResult{Result: failed(f)}
	}
	p, err := s.rec.Update(ctx, ident.ID, profiles.Patch{
		Username: upd.Username,
		FullName: upd.FullName,
		Bio:      upd.Bio,
		Website:  upd.Website,
		Location: upd.Location,
	})
	if err != nil {
		return ProfileResult{Result: failed(failure(err))}
	}
	return ProfileResult{Result: ok(), Profile: p}
}

// UpdatePrivacy replaces the caller's privacy settings.
func (s *Service) UpdatePrivacy(ctx context.Context, token string, ps profiles.PrivacySettings) ProfileResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return ProfileResult{Result: failed(f)}
	}
	p, err := s.rec.UpdatePrivacy(ctx, ident.ID, ps)
	if err != nil {
		return ProfileResult{Result: failed(failure(err))}
	}
	return ProfileResult{Result: ok(), Profile: p}
}

// UploadAvatar stores an image and points the caller's profile at it.
func (s *Service) UploadAvatar(ctx context.Context, token string, up Upload) ProfileResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return ProfileResult{Result: failed(f)}
	}
	if err := avatars.Validate(up.ContentType, up.Size); err != nil {
		return ProfileResult{Result: failed(validation(err.Error()))}
	}
	if s.avatars == nil {
		return ProfileResult{Result: failed(&Failure{Kind: profiles.KindProfileAccess, Message: "avatar storage is not configured"})}
	}
	if _, err := s.rec.Get(ctx, ident.ID); err != nil {
		return ProfileResult{Result: failed(failure(err))}
	}

	key := avatars.ObjectKey(ident.ID, up.Filename, up.ContentType)
	if err := s.avatars.Put(ctx, key, up.ContentType, up.Size, up.Body); err != nil {
		s.logger.Error("avatar upload failed", zap.String("identity_id", ident.ID), zap.Error(err))
		return ProfileResult{Result: failed(&Failure{Kind: profiles.KindProfileAccess, Message: "avatar upload failed"})}
	}
	url := s.avatars.PublicURL(key)
	p, err := s.rec.Update(ctx, ident.ID, profiles.Patch{AvatarURL: &url})
	if err != nil {
		if rmErr := s.avatars.RemoveAll(context.WithoutCancel(ctx), key); rmErr != nil {
			s.logger.Warn("orphaned avatar object", zap.String("key", key), zap.Error(rmErr))
		}
		return ProfileResult{Result: failed(failure(err))}
	}
	return ProfileResult{Result: ok(), Profile: p}
}

// AddFavorite adds an item to the caller's favorites. Re-adding an existing
// (id, type) pair succeeds without changing the list.
func (s *Service) AddFavorite(ctx context.Context, token string, fav profiles.Favorite) FavoritesResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return FavoritesResult{Result: failed(f)}
	}
	p, added, err := s.rec.AddFavorite(ctx, ident.ID, fav)
	if err != nil {
		return FavoritesResult{Result: failed(failure(err))}
	}
	return FavoritesResult{Result: ok(), Favorites: p.Favorites, Changed: added}
}

// RemoveFavorite removes every entry for (itemID, itemType). Removing an
// absent pair succeeds.
func (s *Service) RemoveFavorite(ctx context.Context, token, itemID, itemType string) FavoritesResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return FavoritesResult{Result: failed(f)}
	}
	p, removed, err := s.rec.RemoveFavorite(ctx, ident.ID, itemID, itemType)
	if err != nil {
		return FavoritesResult{Result: failed(failure(err))}
	}
	return FavoritesResult{Result: ok(), Favorites: p.Favorites, Changed: removed}
}

// ChangePassword replaces the caller's password after re-verifying the
// current one.
func (s *Service) ChangePassword(ctx context.Context, token, current, newPassword, confirm string) Result {
	switch {
	case current == "" || newPassword == "" || confirm == "":
		return failed(validation("all password fields are required"))
	case newPassword != confirm:
		return failed(validation("passwords do not match"))
	case len(newPassword) < MinNewPasswordLength:
		return failed(validation(fmt.Sprintf("password must be at least %d characters", MinNewPasswordLength)))
	}

	ident, f := s.caller(ctx, token)
	if f != nil {
		return failed(f)
	}
	if _, err := s.idp.Authenticate(ctx, ident.Email, current); err != nil {
		if errors.Is(err, users.ErrInvalidCredential) {
			return failed(&Failure{Kind: profiles.KindInvalidCredential, Message: "current password is incorrect"})
		}
		return failed(s.providerFailure("authenticate", err))
	}
	if err := s.idp.UpdateCredential(ctx, ident.ID, newPassword); err != nil {
		if errors.Is(err, users.ErrWeakCredential) {
			return failed(validation(err.Error()))
		}
		return failed(s.providerFailure("update credential", err))
	}

	subject, body := email.PasswordChanged(ident.Username())
	s.notify(ctx, ident.Email, subject, body)
	return ok()
}

// DeleteAccount removes the caller's profile, then best-effort removes the
// identity. The profile is never restored: an identity failure still
// succeeds with IdentityDeleted=false and a warning. The session is revoked
// before anything is deleted. Once the identity is gone the profile is
// removed a second time, since another live session may have self-healed it
// in between.
func (s *Service) DeleteAccount(ctx context.Context, token string) DeleteResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return DeleteResult{Result: failed(f)}
	}
	log := s.logger.With(zap.String("identity_id", ident.ID))

	username := ident.Username()
	if p, err := s.rec.Get(ctx, ident.ID); err == nil {
		username = p.Username
	}

	cleanup := context.WithoutCancel(ctx)
	if err := s.sessions.SignOut(cleanup, token); err != nil {
		log.Warn("session revoke failed during deletion", zap.Error(err))
	}
	s.sessions.Forget(ident.ID)

	res := DeleteResult{Result: ok()}
	switch err := s.rec.Delete(ctx, ident.ID); {
	case err == nil:
		res.ProfileDeleted = true
	case profiles.IsNotFound(err):
		log.Info("no profile row to delete")
	default:
		return DeleteResult{Result: failed(failure(err))}
	}

	if err := s.idp.DeleteIdentity(ctx, ident.ID); err != nil && !errors.Is(err, users.ErrNotFound) {
		log.Warn("identity deletion failed after profile removal", zap.Error(err))
		res.Warning = "your profile was deleted, but the login could not be removed; contact support to finish"
	} else {
		res.IdentityDeleted = true
		s.sessions.Forget(ident.ID)
		switch err := s.rec.Delete(cleanup, ident.ID); {
		case err == nil:
			res.ProfileDeleted = true
			log.Warn("removed a profile re-created during account deletion")
		case !profiles.IsNotFound(err):
			log.Warn("profile sweep after identity deletion failed", zap.Error(err))
		}
	}

	if s.avatars != nil {
		if err := s.avatars.RemoveAll(cleanup, ident.ID+"/"); err != nil {
			log.Warn("avatar cleanup failed", zap.Error(err))
		}
	}

	subject, body := email.AccountDeleted(username)
	s.notify(cleanup, ident.Email, subject, body)
	return res
}

// ExportData returns the caller's personal data bundle.
func (s *Service) ExportData(ctx context.Context, token string) ExportResult {
	ident, f := s.caller(ctx, token)
	if f != nil {
		return ExportResult{Result: failed(f)}
	}
	p, err := s.rec.EnsureProfile(ctx, ident)
	if err != nil {
		return ExportResult{Result: failed(failure(err))}
	}
	if fresh, err := s.idp.GetIdentity(ctx, ident.ID); err == nil {
		ident = fresh
	} else {
		s.logger.Warn("export using session identity", zap.String("identity_id", ident.ID), zap.Error(err))
	}
	return ExportResult{Result: ok(), Export: &Export{
		Profile: p,
		Auth: ExportAuth{
			Email:      ident.Email,
			CreatedAt:  ident.CreatedAt,
			LastSignIn: ident.LastSignInAt,
		},
		ExportDate: time.Now().UTC(),
	}}
}

// PublicProfile returns the public view of another user's profile.
func (s *Service) PublicProfile(ctx context.Context, username string) PublicResult {
	v, err := s.rec.PublicProfile(ctx, username)
	if err != nil {
		return PublicResult{Result: failed(failure(err))}
	}
	return PublicResult{Result: ok(), Profile: v}
}

// caller resolves the session handle to its identity.
func (s *Service) caller(ctx context.Context, token string) (*users.Identity, *Failure) {
	if strings.TrimSpace(token) == "" {
		return nil, &Failure{Kind: profiles.KindUnauthenticated, Message: "not signed in"}
	}
	ident, err := s.sessions.Current(ctx, token)
	if err != nil {
		return nil, s.sessionFailure(err)
	}
	return ident, nil
}

func (s *Service) sessionFailure(err error) *Failure {
	if errors.Is(err, identity.ErrUnauthenticated) {
		return &Failure{Kind: profiles.KindUnauthenticated, Message: err.Error()}
	}
	s.logger.Error("session backend failed", zap.Error(err))
	return &Failure{Kind: profiles.KindIdentityAccess, Message: "session check unavailable"}
}

func (s *Service) providerFailure(op string, err error) *Failure {
	s.logger.Error("identity provider failed", zap.String("op", op), zap.Error(err))
	return &Failure{Kind: profiles.KindIdentityAccess, Message: "account service is temporarily unavailable"}
}

// notify sends a best-effort notice; failures are logged only.
func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.mailer == nil || to == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.noticeTimeout)
	defer cancel()
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("notice not delivered", zap.String("subject", subject), zap.Error(err))
	}
}
