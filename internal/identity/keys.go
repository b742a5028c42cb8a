package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	signingKeyFile = "session-signing.key"
	signingKeyBits = 2048
)

// KeyManager manages the session signing key lifecycle. It creates and
// persists the key on first run, then reloads it on subsequent starts so
// issued sessions survive restarts.
type KeyManager struct {
	dir string
	key *rsa.PrivateKey
}

// NewKeyManager returns a KeyManager that stores the key in dir.
func NewKeyManager(dir string) *KeyManager {
	return &KeyManager{dir: dir}
}

// LoadOrCreate loads the key from disk if it exists; creates a new one otherwise.
func (m *KeyManager) LoadOrCreate() error {
	err := m.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return m.Create()
}

// Load reads an existing key from the configured directory.
func (m *KeyManager) Load() error {
	keyPEM, err := os.ReadFile(filepath.Join(m.dir, signingKeyFile))
	if err != nil {
		return fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return fmt.Errorf("signing key: no RSA PRIVATE KEY block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse signing key: %w", err)
	}
	m.key = key
	return nil
}

// Create generates a new RSA key, saves it to disk, and activates it.
func (m *KeyManager) Create() error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create key dir %q: %w", m.dir, err)
	}
	key, err := rsa.GenerateKey(rand.Reader, signingKeyBits)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(m.dir, signingKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write signing key: %w", err)
	}
	m.key = key
	return nil
}

// Key returns the loaded private key.
func (m *KeyManager) Key() *rsa.PrivateKey { return m.key }

// KeyID derives a stable key identifier from the public modulus.
func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}
