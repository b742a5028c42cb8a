package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
	"github.com/jmerrifield20/archivebroni/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestDB returns a fresh in-memory database closed at test end.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newProfile(id, username string) *profiles.Profile {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &profiles.Profile{
		ID:              id,
		Username:        username,
		Email:           username + "@example.com",
		Favorites:       []profiles.Favorite{},
		PrivacySettings: profiles.DefaultPrivacySettings(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// =========================================================================
// IDENTITIES
// =========================================================================

func TestIdentityCreateAndGet(t *testing.T) {
	s := newTestDB(t).Identities()
	ctx := context.Background()

	ident := &users.Identity{Email: "U1@X.com", PasswordHash: "hash", Metadata: map[string]string{"username": "u1"}}
	require.NoError(t, s.Create(ctx, ident))
	assert.NotEmpty(t, ident.ID)

	got, err := s.GetByEmail(ctx, "u1@x.com")
	require.NoError(t, err)
	assert.Equal(t, ident.ID, got.ID)
	assert.Equal(t, "u1", got.Username())
	assert.Nil(t, got.LastSignInAt)

	byID, err := s.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1@x.com", byID.Email)
}

func TestIdentityCreate_DuplicateEmail(t *testing.T) {
	s := newTestDB(t).Identities()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &users.Identity{Email: "dup@x.com"}))
	err := s.Create(ctx, &users.Identity{Email: "DUP@x.com"})
	assert.ErrorIs(t, err, users.ErrDuplicateEmail)
}

func TestIdentitySignInAndDelete(t *testing.T) {
	s := newTestDB(t).Identities()
	ctx := context.Background()

	ident := &users.Identity{Email: "a@b.com"}
	require.NoError(t, s.Create(ctx, ident))

	at := time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC)
	require.NoError(t, s.TouchSignIn(ctx, ident.ID, at))
	got, err := s.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSignInAt)
	assert.True(t, got.LastSignInAt.Equal(at))

	require.NoError(t, s.SetPasswordHash(ctx, ident.ID, "new-hash"))
	require.NoError(t, s.Delete(ctx, ident.ID))
	_, err = s.GetByID(ctx, ident.ID)
	assert.ErrorIs(t, err, users.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, ident.ID), users.ErrNotFound)
	assert.ErrorIs(t, s.SetPasswordHash(ctx, ident.ID, "x"), users.ErrNotFound)
}

// =========================================================================
// PROFILES
// =========================================================================

func TestProfileInsert_ConstraintMapping(t *testing.T) {
	s := newTestDB(t).Profiles()
	ctx := context.Background()
	id := uuid.New().String()

	_, err := s.Insert(ctx, newProfile(id, "alice"))
	require.NoError(t, err)

	_, err = s.Insert(ctx, newProfile(id, "alice-again"))
	assert.ErrorIs(t, err, profiles.ErrConflict)

	_, err = s.Insert(ctx, newProfile(uuid.New().String(), "ALICE"))
	assert.ErrorIs(t, err, profiles.ErrUsernameTaken)
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestDB(t).Profiles()
	ctx := context.Background()
	p := newProfile(uuid.New().String(), "bob")
	p.Favorites = []profiles.Favorite{{ID: "1", Type: "film", AddedAt: p.CreatedAt, Metadata: map[string]string{"year": "1979"}}}

	_, err := s.Insert(ctx, p)
	require.NoError(t, err)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))
	assert.Equal(t, profiles.DefaultPrivacySettings(), got.PrivacySettings)
	require.Len(t, got.Favorites, 1)
	assert.Equal(t, "1979", got.Favorites[0].Metadata["year"])

	byName, err := s.GetByUsername(ctx, "BOB")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)
}

func TestProfileNullPrivacyDefaults(t *testing.T) {
	db := newTestDB(t)
	s := db.Profiles()
	ctx := context.Background()
	p := newProfile(uuid.New().String(), "carol")
	_, err := s.Insert(ctx, p)
	require.NoError(t, err)

	_, err = db.conn.ExecContext(ctx, `UPDATE profiles SET privacy_settings = NULL WHERE id = ?`, p.ID)
	require.NoError(t, err)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, profiles.DefaultPrivacySettings(), got.PrivacySettings)
}

func TestProfileUpdate(t *testing.T) {
	s := newTestDB(t).Profiles()
	ctx := context.Background()
	p := newProfile(uuid.New().String(), "dave")
	_, err := s.Insert(ctx, p)
	require.NoError(t, err)

	bio := "hello"
	got, err := s.Update(ctx, p.ID, profiles.Patch{Bio: &bio, At: p.UpdatedAt})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Bio)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt), "updated_at must advance on a clock tie")

	stored, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.Update(ctx, uuid.New().String(), profiles.Patch{Bio: &bio})
	assert.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestProfileUpdate_UsernameTaken(t *testing.T) {
	s := newTestDB(t).Profiles()
	ctx := context.Background()
	_, err := s.Insert(ctx, newProfile(uuid.New().String(), "erin"))
	require.NoError(t, err)
	p := newProfile(uuid.New().String(), "frank")
	_, err = s.Insert(ctx, p)
	require.NoError(t, err)

	name := "Erin"
	_, err = s.Update(ctx, p.ID, profiles.Patch{Username: &name})
	assert.ErrorIs(t, err, profiles.ErrUsernameTaken)
}

func TestProfileDelete(t *testing.T) {
	s := newTestDB(t).Profiles()
	ctx := context.Background()
	p := newProfile(uuid.New().String(), "gina")
	_, err := s.Insert(ctx, p)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, p.ID))
	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, profiles.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, p.ID), profiles.ErrNotFound)
}

// The reconciler against the real store: concurrent self-heal converges on
// one row.
func TestEnsureProfileAgainstSQLite(t *testing.T) {
	db := newTestDB(t)
	prov := users.NewProvider(db.Identities(), zap.NewNop())
	prov.SetHashCost(4)
	r := profiles.NewReconciler(prov, db.Profiles(), zap.NewNop())
	ctx := context.Background()

	ident, err := prov.CreateIdentity(ctx, "heal@x.com", "secret1", nil)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.EnsureProfile(ctx, ident)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}

	var count int
	require.NoError(t, db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count))
	assert.Equal(t, 1, count)
}

// laggyProfiles delays reads the way a remote store would, widening any
// window between reading favorites and writing them back.
type laggyProfiles struct {
	*ProfileStore
}

func (s laggyProfiles) Get(ctx context.Context, id string) (*profiles.Profile, error) {
	time.Sleep(2 * time.Millisecond)
	return s.ProfileStore.Get(ctx, id)
}

func TestConcurrentFavoriteAddsAreNotLost(t *testing.T) {
	db := newTestDB(t)
	store := laggyProfiles{db.Profiles()}
	r := profiles.NewReconciler(users.NewProvider(db.Identities(), zap.NewNop()), store, zap.NewNop())
	ctx := context.Background()

	p, err := store.Insert(ctx, newProfile(uuid.New().String(), "collector"))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = r.AddFavorite(ctx, p.ID, profiles.Favorite{ID: uuid.New().String(), Type: "record"})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "add %d", i)
	}

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Favorites, n)
}

func TestConcurrentDuplicateFavoriteAddsOnce(t *testing.T) {
	db := newTestDB(t)
	store := laggyProfiles{db.Profiles()}
	r := profiles.NewReconciler(users.NewProvider(db.Identities(), zap.NewNop()), store, zap.NewNop())
	ctx := context.Background()

	p, err := store.Insert(ctx, newProfile(uuid.New().String(), "repeater"))
	require.NoError(t, err)

	const n = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := r.AddFavorite(ctx, p.ID, profiles.Favorite{ID: "lp-1", Type: "record"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Favorites, 1)

	_, removed, err := r.RemoveFavorite(ctx, p.ID, "lp-1", "record")
	require.NoError(t, err)
	assert.True(t, removed)
	_, removed, err = r.RemoveFavorite(ctx, p.ID, "lp-1", "record")
	require.NoError(t, err)
	assert.False(t, removed)
}
