package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmailTaken is returned by CreateIdentity when the email belongs to a
	// different signup (the supplied password does not match).
	ErrEmailTaken = errors.New("email is registered to another account")
	// ErrWeakCredential is returned when a password is rejected by policy.
	ErrWeakCredential = errors.New("password does not meet policy")
	// ErrInvalidCredential is returned by Authenticate on any email/password mismatch.
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrInvalidEmail is returned when an address cannot be used for login.
	ErrInvalidEmail = errors.New("malformed email address")
)

// MinPasswordLength is the shortest password the provider accepts.
const MinPasswordLength = 6

// identityRepo is the storage interface consumed by Provider.
type identityRepo interface {
	Create(ctx context.Context, ident *Identity) error
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	TouchSignIn(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// Provider owns identities and their credentials.
type Provider struct {
	repo   identityRepo
	cost   int
	logger *zap.Logger
}

// NewProvider creates a new Provider backed by repo.
func NewProvider(repo identityRepo, logger *zap.Logger) *Provider {
	return &Provider{repo: repo, cost: bcrypt.DefaultCost, logger: logger}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (p *Provider) SetHashCost(cost int) {
	p.cost = cost
}

// CreateIdentity registers a new identity. The insert is attempted first; if
// the email already exists and password verifies against it, the existing
// identity is returned so a replayed signup converges on one record.
func (p *Provider) CreateIdentity(ctx context.Context, emailAddr, password string, metadata map[string]string) (*Identity, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrWeakCredential, MinPasswordLength)
	}

	hash, err := p.hash(password)
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	ident := &Identity{Email: emailAddr, PasswordHash: hash, Metadata: md}

	err = p.repo.Create(ctx, ident)
	if err == nil {
		p.logger.Info("identity created", zap.String("identity_id", ident.ID))
		return ident, nil
	}
	if !errors.Is(err, ErrDuplicateEmail) {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	existing, err := p.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("lookup existing identity: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(password)) != nil {
		return nil, ErrEmailTaken
	}
	p.logger.Debug("signup replay resolved to existing identity", zap.String("identity_id", existing.ID))
	return existing, nil
}

// Authenticate verifies email/password credentials and records the sign-in.
func (p *Provider) Authenticate(ctx context.Context, emailAddr, password string) (*Identity, error) {
	ident, err := p.repo.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if ident.PasswordHash == "" {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	now := time.Now().UTC()
	if err := p.repo.TouchSignIn(ctx, ident.ID, now); err != nil {
		p.logger.Warn("failed to record sign-in", zap.String("identity_id", ident.ID), zap.Error(err))
	} else {
		ident.LastSignInAt = &now
	}
	return ident, nil
}

// GetIdentity retrieves an identity by ID.
func (p *Provider) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	return p.repo.GetByID(ctx, id)
}

// UpdateCredential replaces the password of an identity.
func (p *Provider) UpdateCredential(ctx context.Context, id, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakCredential, MinPasswordLength)
	}
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	if err := p.repo.SetPasswordHash(ctx, id, hash); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	p.logger.Info("credential updated", zap.String("identity_id", id))
	return nil
}

// DeleteIdentity removes an identity.
func (p *Provider) DeleteIdentity(ctx context.Context, id string) error {
	if err := p.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	p.logger.Info("identity deleted", zap.String("identity_id", id))
	return nil
}

func (p *Provider) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", ErrWeakCredential)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
