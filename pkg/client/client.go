package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sync"
	"time"
)

// maxResponse bounds how much of a response body is read.
const maxResponse = 1 << 20

// Client is the SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *publicCache

	// session state, guarded by mu
	mu    sync.Mutex
	token string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithCacheTTL enables in-memory caching of public profile lookups.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newPublicCache(ttl)
		return nil
	}
}

// WithSessionToken attaches an existing session token to every request.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed server.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: 30 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the server at base.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithSessionFile(path),
//	)
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Register creates an account. A nil error with ProfileCreated=false is a
// partial success; see Registration.Warning.
func (c *Client) Register(ctx context.Context, email, password, username string) (*Registration, error) {
	var out Registration
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": email, "password": password, "username": username}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login signs in and stores the session token on the client. The returned
// profile may be nil when the server could not load it; warning says why.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, *Profile, string, error) {
	var out struct {
		Session *Session `json:"session"`
		Profile *Profile `json:"profile"`
		Warning string   `json:"warning"`
	}
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, nil, "", err
	}
	if out.Session == nil {
		return nil, nil, "", fmt.Errorf("login response carried no session")
	}
	c.setToken(out.Session.Token)
	return out.Session, out.Profile, out.Warning, nil
}

// Logout revokes the current session and clears it from the client.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

// Me returns the caller's profile, creating it on the server if missing.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	return c.profileCall(ctx, http.MethodGet, "/api/v1/profile/me", nil)
}

// UpdateProfile edits the caller's profile fields.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Profile, error) {
	return c.profileCall(ctx, http.MethodPatch, "/api/v1/profile/me", upd)
}

// UpdatePrivacy replaces the caller's privacy settings.
func (c *Client) UpdatePrivacy(ctx context.Context, ps PrivacySettings) (*Profile, error) {
	return c.profileCall(ctx, http.MethodPut, "/api/v1/profile/me/privacy", ps)
}

// UploadAvatar uploads an image as the caller's avatar.
func (c *Client) UploadAvatar(ctx context.Context, filename, contentType string, r io.Reader) (*Profile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/profile/me/avatar", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Profile *Profile `json:"profile"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

// AddFavorite saves an item. Changed is false when it was already saved.
func (c *Client) AddFavorite(ctx context.Context, fav Favorite) (*Favorites, error) {
	var out Favorites
	if err := c.call(ctx, http.MethodPost, "/api/v1/profile/me/favorites", fav, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveFavorite removes an item. Changed is false when it was not saved.
func (c *Client) RemoveFavorite(ctx context.Context, itemType, itemID string) (*Favorites, error) {
	var out Favorites
	path := "/api/v1/profile/me/favorites/" + url.PathEscape(itemType) + "/" + url.PathEscape(itemID)
	if err := c.call(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the caller's password.
func (c *Client) ChangePassword(ctx context.Context, current, newPassword, confirm string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/profile/me/password", map[string]string{
		"current_password": current,
		"new_password":     newPassword,
		"confirm_password": confirm,
	}, nil)
}

// DeleteAccount deletes the caller's profile and identity, and clears the
// session from the client.
func (c *Client) DeleteAccount(ctx context.Context) (*Deletion, error) {
	var out Deletion
	if err := c.call(ctx, http.MethodDelete, "/api/v1/profile/me", nil, &out); err != nil {
		return nil, err
	}
	c.setToken("")
	return &out, nil
}

// Export downloads the caller's personal data bundle.
func (c *Client) Export(ctx context.Context) (Export, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/profile/me/export", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	status, body, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, decodeError(status, body)
	}
	return Export(body), nil
}

// PublicProfile returns another user's public profile.
func (c *Client) PublicProfile(ctx context.Context, username string) (*PublicProfile, error) {
	if c.cache != nil {
		if p, ok := c.cache.get(username); ok {
			return p, nil
		}
	}
	var out struct {
		Profile *PublicProfile `json:"profile"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(username), nil, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(username, out.Profile)
	}
	return out.Profile, nil
}

func (c *Client) profileCall(ctx context.Context, method, path string, in any) (*Profile, error) {
	var out struct {
		Profile *Profile `json:"profile"`
	}
	if err := c.call(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return out.Profile, nil
}

// call sends in as JSON (when non-nil) and decodes the response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// do executes req and decodes a successful body into out.
func (c *Client) do(req *http.Request, out any) error {
	status, body, err := c.send(req)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if status >= 300 {
			return &APIError{Status: status, Kind: KindProfileAccess, Message: string(body)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success || status >= 300 {
		return decodeError(status, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// send executes req, attaching the session token if present.
func (c *Client) send(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func decodeError(status int, body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		return env.Error
	}
	return &APIError{Status: status, Kind: KindProfileAccess, Message: http.StatusText(status)}
}

// --- simple in-memory public profile cache ---

type cacheEntry struct {
	profile   *PublicProfile
	expiresAt time.Time
}

type publicCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newPublicCache(ttl time.Duration) *publicCache {
	return &publicCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (pc *publicCache) get(key string) (*PublicProfile, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	e, ok := pc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.profile, true
}

func (pc *publicCache) set(key string, p *PublicProfile) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[key] = &cacheEntry{profile: p, expiresAt: time.Now().Add(pc.ttl)}
}
