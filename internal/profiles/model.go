package profiles

import (
	"encoding/json"
	"time"
)

// MaxBioLength is the longest bio accepted, counted in characters.
const MaxBioLength = 500

// Profile is the application-side record of a user, keyed by identity ID.
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

// Favorite is one bookmarked catalog item. (ID, Type) identifies it.
type Favorite struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	AddedAt  time.Time         `json:"added_at"`
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PrivacySettings controls what PublicView exposes.
type PrivacySettings struct {
	ProfilePublic bool `json:"profile_public"`
	EmailPublic   bool `json:"email_public"`
	AllowMessages bool `json:"allow_messages"`
}

// DefaultPrivacySettings returns the settings applied when none are stored.
func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{ProfilePublic: true, EmailPublic: false, AllowMessages: true}
}

// UnmarshalJSON fills keys missing from the document with their defaults.
func (ps *PrivacySettings) UnmarshalJSON(b []byte) error {
	var raw struct {
		ProfilePublic *bool `json:"profile_public"`
		EmailPublic   *bool `json:"email_public"`
		AllowMessages *bool `json:"allow_messages"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*ps = DefaultPrivacySettings()
	if raw.ProfilePublic != nil {
		ps.ProfilePublic = *raw.ProfilePublic
	}
	if raw.EmailPublic != nil {
		ps.EmailPublic = *raw.EmailPublic
	}
	if raw.AllowMessages != nil {
		ps.AllowMessages = *raw.AllowMessages
	}
	return nil
}

// ParsePrivacy decodes a stored privacy document. NULL or empty input yields
// the defaults.
func ParsePrivacy(raw []byte) (PrivacySettings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultPrivacySettings(), nil
	}
	var ps PrivacySettings
	if err := json.Unmarshal(raw, &ps); err != nil {
		return DefaultPrivacySettings(), err
	}
	return ps, nil
}

// ParseFavorites decodes a stored favorites document. NULL yields an empty list.
func ParseFavorites(raw []byte) ([]Favorite, error) {
	favs := []Favorite{}
	if len(raw) == 0 || string(raw) == "null" {
		return favs, nil
	}
	if err := json.Unmarshal(raw, &favs); err != nil {
		return []Favorite{}, err
	}
	if favs == nil {
		favs = []Favorite{}
	}
	return favs, nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Username  *string
	FullName  *string
	Bio       *string
	Website   *string
	Location  *string
	AvatarURL *string
	Privacy   *PrivacySettings
	// EditFavorites computes the new favorites list from the stored one.
	// It runs against the row as read inside the store's unit of work, and
	// returns false when nothing changed.
	EditFavorites func(cur []Favorite) (next []Favorite, changed bool)
	// At is the caller's clock reading for the write.
	At time.Time
}

// IsEmpty reports whether the patch changes no field.
func (pt Patch) IsEmpty() bool {
	return pt.Username == nil && pt.FullName == nil && pt.Bio == nil && pt.Website == nil &&
		pt.Location == nil && pt.AvatarURL == nil && pt.Privacy == nil && pt.EditFavorites == nil
}

// Apply writes the patch onto p and advances UpdatedAt. Stores call it inside
// the same transaction that reads the current row, and skip the write when it
// returns false.
func (pt Patch) Apply(p *Profile) bool {
	changed := false
	if pt.EditFavorites != nil {
		if next, ok := pt.EditFavorites(p.Favorites); ok {
			p.Favorites = next
			changed = true
		}
	}
	if pt.Username != nil {
		p.Username = *pt.Username
	}
	if pt.FullName != nil {
		p.FullName = *pt.FullName
	}
	if pt.Bio != nil {
		p.Bio = *pt.Bio
	}
	if pt.Website != nil {
		p.Website = *pt.Website
	}
	if pt.Location != nil {
		p.Location = *pt.Location
	}
	if pt.AvatarURL != nil {
		p.AvatarURL = *pt.AvatarURL
	}
	if pt.Privacy != nil {
		p.PrivacySettings = *pt.Privacy
	}
	fields := pt
	fields.EditFavorites = nil
	if !changed && fields.IsEmpty() {
		return false
	}
	at := pt.At
	if at.IsZero() {
		at = time.Now()
	}
	p.UpdatedAt = NextUpdatedAt(p.UpdatedAt, at)
	return true
}

// NextUpdatedAt returns the timestamp for a write observed at now on a row
// last written at prev. The result is strictly after prev, at microsecond
// precision, which is what both stores persist.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	floor := prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

// PublicView is what other users may see of a profile.
type PublicView struct {
	Username    string    `json:"username"`
	FullName    string    `json:"full_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Website     string    `json:"website,omitempty"`
	Location    string    `json:"location,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Email       string    `json:"email,omitempty"`
	MemberSince time.Time `json:"member_since"`
}

// Public returns the public projection of p, or false when the profile is
// private. Email is included only when EmailPublic is set.
func (p *Profile) Public() (*PublicView, bool) {
	if !p.PrivacySettings.ProfilePublic {
		return nil, false
	}
	v := &PublicView{
		Username:    p.Username,
		FullName:    p.FullName,
		Bio:         p.Bio,
		Website:     p.Website,
		Location:    p.Location,
		AvatarURL:   p.AvatarURL,
		MemberSince: p.CreatedAt,
	}
	if p.PrivacySettings.EmailPublic {
		v.Email = p.Email
	}
	return v, true
}
