package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/archivebroni/internal/identity"
	"github.com/jmerrifield20/archivebroni/internal/users"
	"go.uber.org/zap"
)

// identityGetter is the slice of the identity provider the manager needs.
type identityGetter interface {
	GetIdentity(ctx context.Context, id string) (*users.Identity, error)
}

// Session is an issued sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues, resolves and revokes sessions. It is the explicit handle
// every authenticated operation receives instead of ambient client state.
type Manager struct {
	tokens  *identity.SessionTokenIssuer
	revoked Revocations
	idp     identityGetter
	cache   *identityCache
	logger  *zap.Logger
	record  func(event string)
}

// NewManager creates a Manager. cacheTTL <= 0 disables the identity cache.
func NewManager(tokens *identity.SessionTokenIssuer, revoked Revocations, idp identityGetter, cacheTTL time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		tokens:  tokens,
		revoked: revoked,
		idp:     idp,
		cache:   newIdentityCache(cacheTTL),
		logger:  logger,
		record:  func(string) {},
	}
}

// SetRecorder installs an observer for session events.
func (m *Manager) SetRecorder(rec func(event string)) {
	if rec != nil {
		m.record = rec
	}
}

// SignIn issues a session for an authenticated identity.
func (m *Manager) SignIn(ident *users.Identity) (*Session, error) {
	tok, claims, err := m.tokens.Issue(ident.ID, ident.Email, ident.Username())
	if err != nil {
		return nil, err
	}
	m.cache.set(claims.ID, ident, claims.ExpiresAt.Time)
	m.record("signed_in")
	return &Session{Token: tok, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Current resolves token to its identity. Invalid, expired and revoked tokens,
// and tokens whose identity was deleted, yield identity.ErrUnauthenticated.
func (m *Manager) Current(ctx context.Context, token string) (*users.Identity, error) {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		m.record("rejected")
		return nil, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}

	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		m.record("rejected")
		return nil, fmt.Errorf("%w: session signed out", identity.ErrUnauthenticated)
	}

	if ident, ok := m.cache.get(claims.ID); ok {
		return ident, nil
	}

	ident, err := m.idp.GetIdentity(ctx, claims.IdentityID())
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			m.record("rejected")
			return nil, fmt.Errorf("%w: identity no longer exists", identity.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("resolve session identity: %w", err)
	}
	m.cache.set(claims.ID, ident, claims.ExpiresAt.Time)
	return ident, nil
}

// SignOut revokes token and drops its cached identity.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	claims, err := m.tokens.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}
	m.cache.invalidate(claims.ID)
	if err := m.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	m.logger.Debug("session revoked", zap.String("identity_id", claims.Subject), zap.String("jti", claims.ID))
	m.record("signed_out")
	return nil
}

// Forget drops every cached session resolved to identityID.
func (m *Manager) Forget(identityID string) {
	m.cache.invalidateIdentity(identityID)
}

// StartEviction evicts expired cache entries every interval until ctx is done.
func (m *Manager) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.cache.evict(); n > 0 {
					m.logger.Debug("session cache evicted", zap.Int("entries", n))
				}
			}
		}
	}()
}
