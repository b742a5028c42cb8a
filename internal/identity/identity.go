// Package identity implements the session credential layer.
//
// It provides:
//   - KeyManager: creates/loads the RSA key that signs session tokens
//   - SessionTokenIssuer: issues and verifies RS256 session JWTs
//   - JWKSProvider: JWKS and discovery HTTP endpoints
//   - RequireSession: Gin middleware enforcing a live Bearer session
package identity
