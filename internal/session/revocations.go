// Package session resolves bearer tokens to identities and tracks sign-outs.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations records token IDs that were signed out before expiry.
type Revocations interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocations keeps the revocation list in Redis. Entries expire with the
// token they revoke, so the list never outgrows the live sessions.
type RedisRevocations struct {
	client *redis.Client
	prefix string
}

// NewRedisRevocations connects to redisURL and verifies the connection.
func NewRedisRevocations(redisURL string) (*RedisRevocations, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisRevocationsWithClient(client), nil
}

// NewRedisRevocationsWithClient creates a revocation list from an existing client.
func NewRedisRevocationsWithClient(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: "revoked:"}
}

func (s *RedisRevocations) key(jti string) string {
	return s.prefix + jti
}

// Revoke marks jti as signed out until expiresAt.
func (s *RedisRevocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(jti), expiresAt.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti was signed out.
func (s *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// Ping checks if Redis is reachable.
func (s *RedisRevocations) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisRevocations) Close() error {
	return s.client.Close()
}

// MemoryRevocations is the single-process revocation list used when no Redis
// URL is configured.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRevocations creates an empty in-process revocation list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time)}
}

// Revoke marks jti as signed out until expiresAt.
func (m *MemoryRevocations) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, k)
		}
	}
	if expiresAt.After(now) {
		m.entries[jti] = expiresAt
	}
	return nil
}

// IsRevoked reports whether jti was signed out.
func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.entries[jti]
	return ok && time.Now().Before(exp), nil
}
