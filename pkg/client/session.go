package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrSessionExpired is returned by LoadSession for a session past its expiry.
var ErrSessionExpired = errors.New("saved session has expired")

// SaveSession writes s to path with owner-only permissions, creating the
// parent directory if needed.
func SaveSession(path string, s *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadSession reads a session written by SaveSession.
func LoadSession(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

// ClearSession removes a saved session. A missing file is not an error.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// WithSessionFile loads the session saved at path. A missing or expired
// session leaves the client signed out.
func WithSessionFile(path string) Option {
	return func(c *Client) error {
		s, err := LoadSession(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrSessionExpired) {
				return nil
			}
			return err
		}
		c.token = s.Token
		return nil
	}
}
