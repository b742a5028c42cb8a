package users_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/archivebroni/internal/users"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ── Stub repo ─────────────────────────────────────────────────────────────

type stubIdentityRepo struct {
	mu      sync.RWMutex
	byID    map[string]*users.Identity
	byEmail map[string]string
	creates int
	failGet error
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{
		byID:    make(map[string]*users.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *stubIdentityRepo) Create(_ context.Context, ident *users.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if _, exists := r.byEmail[ident.Email]; exists {
		return users.ErrDuplicateEmail
	}
	ident.ID = uuid.New().String()
	now := time.Now()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	cp := *ident
	r.byID[ident.ID] = &cp
	r.byEmail[ident.Email] = ident.ID
	return nil
}

func (r *stubIdentityRepo) GetByID(_ context.Context, id string) (*users.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	ident, ok := r.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (r *stubIdentityRepo) GetByEmail(_ context.Context, email string) (*users.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	id, ok := r.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *stubIdentityRepo) SetPasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	ident.PasswordHash = hash
	return nil
}

func (r *stubIdentityRepo) TouchSignIn(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ident, ok := r.byID[id]; ok {
		ident.LastSignInAt = &at
	}
	return nil
}

func (r *stubIdentityRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	delete(r.byEmail, ident.Email)
	delete(r.byID, id)
	return nil
}

func newProvider(repo *stubIdentityRepo) *users.Provider {
	p := users.NewProvider(repo, zap.NewNop())
	p.SetHashCost(bcrypt.MinCost)
	return p
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestCreateIdentity_Success(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)

	ident, err := p.CreateIdentity(context.Background(), "  U1@X.com ", "secret1", map[string]string{"username": "u1"})
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if ident.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	if ident.Email != "u1@x.com" {
		t.Errorf("Email = %q, want normalised u1@x.com", ident.Email)
	}
	if ident.Username() != "u1" {
		t.Errorf("Username() = %q, want u1", ident.Username())
	}
	if ident.PasswordHash == "secret1" || ident.PasswordHash == "" {
		t.Error("expected bcrypt hash to be stored")
	}
}

func TestCreateIdentity_WeakPassword(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)

	_, err := p.CreateIdentity(context.Background(), "a@b.com", "12345", nil)
	if !errors.Is(err, users.ErrWeakCredential) {
		t.Fatalf("err = %v, want ErrWeakCredential", err)
	}
	if repo.creates != 0 {
		t.Errorf("repo.Create called %d times, want 0", repo.creates)
	}
}

func TestCreateIdentity_TooLongPassword(t *testing.T) {
	p := newProvider(newStubIdentityRepo())

	_, err := p.CreateIdentity(context.Background(), "a@b.com", strings.Repeat("x", 80), nil)
	if !errors.Is(err, users.ErrWeakCredential) {
		t.Fatalf("err = %v, want ErrWeakCredential", err)
	}
}

func TestCreateIdentity_MalformedEmail(t *testing.T) {
	p := newProvider(newStubIdentityRepo())

	_, err := p.CreateIdentity(context.Background(), "not-an-email", "secret1", nil)
	if !errors.Is(err, users.ErrInvalidEmail) {
		t.Fatalf("err = %v, want ErrInvalidEmail", err)
	}
}

func TestCreateIdentity_ReplayReturnsExisting(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)
	ctx := context.Background()

	first, err := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil)
	if err != nil {
		t.Fatalf("first CreateIdentity: %v", err)
	}
	second, err := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil)
	if err != nil {
		t.Fatalf("replayed CreateIdentity: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay returned %s, want %s", second.ID, first.ID)
	}
	if len(repo.byID) != 1 {
		t.Errorf("identities stored = %d, want 1", len(repo.byID))
	}
}

func TestCreateIdentity_EmailTakenWithDifferentPassword(t *testing.T) {
	p := newProvider(newStubIdentityRepo())
	ctx := context.Background()

	if _, err := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	_, err := p.CreateIdentity(ctx, "u1@x.com", "another-pass", nil)
	if !errors.Is(err, users.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestCreateIdentity_ConcurrentReplayConverges(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ident, err := p.CreateIdentity(ctx, "race@x.com", "secret1", nil)
			errs[i] = err
			if ident != nil {
				ids[i] = ident.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("call %d returned %s, want %s", i, ids[i], ids[0])
		}
	}
	if len(repo.byID) != 1 {
		t.Errorf("identities stored = %d, want 1", len(repo.byID))
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)
	ctx := context.Background()

	created, err := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}

	ident, err := p.Authenticate(ctx, "U1@x.com", "secret1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.ID != created.ID {
		t.Errorf("ID = %s, want %s", ident.ID, created.ID)
	}
	if ident.LastSignInAt == nil {
		t.Error("expected LastSignInAt to be set")
	}

	if _, err := p.Authenticate(ctx, "u1@x.com", "wrong-pass"); !errors.Is(err, users.ErrInvalidCredential) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredential", err)
	}
	if _, err := p.Authenticate(ctx, "nobody@x.com", "secret1"); !errors.Is(err, users.ErrInvalidCredential) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredential", err)
	}
}

func TestAuthenticate_StoreFailureIsNotInvalidCredential(t *testing.T) {
	repo := newStubIdentityRepo()
	repo.failGet = errors.New("connection refused")
	p := newProvider(repo)

	_, err := p.Authenticate(context.Background(), "u1@x.com", "secret1")
	if err == nil || errors.Is(err, users.ErrInvalidCredential) {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}
}

func TestUpdateCredential(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)
	ctx := context.Background()

	ident, _ := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil)
	if err := p.UpdateCredential(ctx, ident.ID, "new-secret-1"); err != nil {
		t.Fatalf("UpdateCredential: %v", err)
	}
	if _, err := p.Authenticate(ctx, "u1@x.com", "secret1"); !errors.Is(err, users.ErrInvalidCredential) {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := p.Authenticate(ctx, "u1@x.com", "new-secret-1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if err := p.UpdateCredential(ctx, ident.ID, "123"); !errors.Is(err, users.ErrWeakCredential) {
		t.Errorf("short password err = %v, want ErrWeakCredential", err)
	}
}

func TestDeleteIdentity(t *testing.T) {
	repo := newStubIdentityRepo()
	p := newProvider(repo)
	ctx := context.Background()

	ident, _ := p.CreateIdentity(ctx, "u1@x.com", "secret1", nil)
	if err := p.DeleteIdentity(ctx, ident.ID); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	if _, err := p.GetIdentity(ctx, ident.ID); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("GetIdentity after delete err = %v, want ErrNotFound", err)
	}
	if err := p.DeleteIdentity(ctx, ident.ID); !errors.Is(err, users.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
