package session

import (
	"sync"
	"time"

	"github.com/jmerrifield20/archivebroni/internal/users"
)

// cacheEntry holds a resolved session identity.
type cacheEntry struct {
	ident     users.Identity
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// identityCache is a thread-safe in-memory cache of token ID to identity.
// Entries expire after a configurable TTL; sign-out invalidates eagerly.
type identityCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newIdentityCache(ttl time.Duration) *identityCache {
	return &identityCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// get looks up a cached identity by token ID. The result is a copy.
func (c *identityCache) get(jti string) (*users.Identity, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[jti]
	if !ok || e.expired() {
		return nil, false
	}
	ident := e.ident
	return &ident, true
}

// set stores an identity, never beyond the token's own expiry.
func (c *identityCache) set(jti string, ident *users.Identity, tokenExpiry time.Time) {
	if c.ttl <= 0 {
		return
	}
	exp := time.Now().Add(c.ttl)
	if !tokenExpiry.IsZero() && tokenExpiry.Before(exp) {
		exp = tokenExpiry
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[jti] = &cacheEntry{ident: *ident, expiresAt: exp}
}

// invalidate removes one token's entry.
func (c *identityCache) invalidate(jti string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, jti)
}

// invalidateIdentity removes every entry resolved to identityID.
func (c *identityCache) invalidateIdentity(identityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.ident.ID == identityID {
			delete(c.entries, k)
		}
	}
}

// evict removes all expired entries.
func (c *identityCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// len returns the number of cached entries (including expired).
func (c *identityCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
