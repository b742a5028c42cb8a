package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "session"

// SessionClaims are the JWT claims for a signed-in session. The token ID
// (jti) is the revocation handle.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type"`
}

// IdentityID returns the subject of the session.
func (c *SessionClaims) IdentityID() string { return c.Subject }

// SessionTokenIssuer issues and verifies session JWTs signed with RS256.
type SessionTokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	kid    string
	issuer string
	ttl    time.Duration
}

// NewSessionTokenIssuer creates a SessionTokenIssuer.
//
//	issuerURL: the "iss" claim value; matches the server's base URL.
//	ttl: token lifetime (default: 24 hours).
func NewSessionTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *SessionTokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SessionTokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		kid:    KeyID(&key.PublicKey),
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed session token for an identity.
func (s *SessionTokenIssuer) Issue(identityID, email, username string) (string, *SessionClaims, error) {
	now := time.Now().UTC()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		Email:    email,
		Username: username,
		Type:     sessionTokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionTokenIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.pub, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	if claims.Type != sessionTokenType || claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("not a session token")
	}
	return claims, nil
}

// PublicKey returns the verification key.
func (s *SessionTokenIssuer) PublicKey() *rsa.PublicKey { return s.pub }

// KeyID returns the "kid" header placed on issued tokens.
func (s *SessionTokenIssuer) KeyID() string { return s.kid }

// TTL returns the lifetime of issued tokens.
func (s *SessionTokenIssuer) TTL() time.Duration { return s.ttl }
