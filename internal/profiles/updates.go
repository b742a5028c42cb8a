package profiles

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// Update validates patch and applies it to the existing profile for id.
// It never creates a row.
func (r *Reconciler) Update(ctx context.Context, id string, patch Patch) (*Profile, error) {
	const op = "update_profile"
	if err := validatePatch(op, &patch); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		p, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, classify(op, err)
		}
		return p, nil
	}
	patch.At = r.now()
	p, err := r.store.Update(ctx, id, patch)
	if err != nil {
		return nil, classify(op, err)
	}
	return p, nil
}

// UpdatePrivacy replaces the privacy settings of the profile for id.
func (r *Reconciler) UpdatePrivacy(ctx context.Context, id string, ps PrivacySettings) (*Profile, error) {
	p, err := r.store.Update(ctx, id, Patch{Privacy: &ps, At: r.now()})
	if err != nil {
		return nil, classify("update_privacy", err)
	}
	return p, nil
}

// AddFavorite appends fav unless an entry with the same (ID, Type) exists,
// in which case the profile is returned unchanged and added is false. The
// duplicate check runs on the row the store is about to write.
func (r *Reconciler) AddFavorite(ctx context.Context, id string, fav Favorite) (p *Profile, added bool, err error) {
	const op = "add_favorite"
	fav.ID = strings.TrimSpace(fav.ID)
	fav.Type = strings.TrimSpace(fav.Type)
	if fav.ID == "" || fav.Type == "" {
		return nil, false, validationError(op, "favorite id and type are required")
	}

	now := r.now()
	fav.AddedAt = now.UTC()
	p, err = r.store.Update(ctx, id, Patch{At: now, EditFavorites: func(cur []Favorite) ([]Favorite, bool) {
		added = !HasFavorite(cur, fav.ID, fav.Type)
		if !added {
			return cur, false
		}
		return append(append([]Favorite{}, cur...), fav), true
	}})
	if err != nil {
		return nil, false, classify(op, err)
	}
	return p, added, nil
}

// RemoveFavorite drops every entry matching (itemID, itemType). Removing an
// absent pair returns the profile unchanged with removed false.
func (r *Reconciler) RemoveFavorite(ctx context.Context, id, itemID, itemType string) (p *Profile, removed bool, err error) {
	p, err = r.store.Update(ctx, id, Patch{At: r.now(), EditFavorites: func(cur []Favorite) ([]Favorite, bool) {
		next, n := WithoutFavorite(cur, itemID, itemType)
		removed = n > 0
		return next, removed
	}})
	if err != nil {
		return nil, false, classify("remove_favorite", err)
	}
	return p, removed, nil
}

// Get returns the profile for id without self-healing.
func (r *Reconciler) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, classify("get_profile", err)
	}
	return p, nil
}

// Delete removes the profile for id.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return classify("delete_profile", err)
	}
	return nil
}

// PublicProfile returns the public view of the profile owned by username.
// Private profiles are reported as not found.
func (r *Reconciler) PublicProfile(ctx context.Context, username string) (*PublicView, error) {
	const op = "public_profile"
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, validationError(op, "username is required")
	}
	p, err := r.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, classify(op, err)
	}
	v, ok := p.Public()
	if !ok {
		return nil, &Error{Kind: KindProfileNotFound, Op: op, Err: ErrNotFound}
	}
	return v, nil
}

// HasFavorite reports whether favs contains (itemID, itemType).
func HasFavorite(favs []Favorite, itemID, itemType string) bool {
	for _, f := range favs {
		if f.ID == itemID && f.Type == itemType {
			return true
		}
	}
	return false
}

// WithoutFavorite returns favs minus every (itemID, itemType) entry and the
// number removed.
func WithoutFavorite(favs []Favorite, itemID, itemType string) ([]Favorite, int) {
	out := make([]Favorite, 0, len(favs))
	for _, f := range favs {
		if f.ID == itemID && f.Type == itemType {
			continue
		}
		out = append(out, f)
	}
	return out, len(favs) - len(out)
}

func validatePatch(op string, patch *Patch) error {
	if patch.Username != nil {
		u := strings.TrimSpace(*patch.Username)
		if u == "" {
			return validationError(op, "username is required")
		}
		patch.Username = &u
	}
	if patch.Bio != nil && utf8.RuneCountInString(*patch.Bio) > MaxBioLength {
		return validationError(op, "bio must not exceed %d characters", MaxBioLength)
	}
	return nil
}

// IsNotFound reports whether err means the profile row is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || KindOf(err) == KindProfileNotFound
}
