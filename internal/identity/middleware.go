package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/archivebroni/internal/users"
)

// ErrUnauthenticated is returned when a request carries no live session.
var ErrUnauthenticated = errors.New("no active session")

const (
	ctxIdentity     = "archivebroni_identity"
	ctxSessionToken = "archivebroni_session_token"
)

// SessionResolver resolves a bearer token to the identity it was issued for.
// Implementations return an error wrapping ErrUnauthenticated for invalid,
// expired or revoked tokens.
type SessionResolver interface {
	Current(ctx context.Context, token string) (*users.Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return tok, tok != ""
}

// RequireSession returns a Gin middleware that enforces a live Bearer session.
//
// On success it injects the *users.Identity and the raw token into the context.
func RequireSession(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c)
		if !ok {
			abortSession(c, http.StatusUnauthorized, "unauthenticated", "Bearer session token required")
			return
		}

		ident, err := sessions.Current(c.Request.Context(), tokenStr)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				abortSession(c, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			abortSession(c, http.StatusServiceUnavailable, "identity_access", "session check unavailable")
			return
		}

		c.Set(ctxIdentity, ident)
		c.Set(ctxSessionToken, tokenStr)
		c.Next()
	}
}

func abortSession(c *gin.Context, status int, kind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"kind": kind, "message": msg},
	})
}

// IdentityFromCtx retrieves the identity injected by RequireSession.
// Returns nil when the route is not behind RequireSession.
func IdentityFromCtx(c *gin.Context) *users.Identity {
	v, _ := c.Get(ctxIdentity)
	ident, _ := v.(*users.Identity)
	return ident
}

// SessionTokenFromCtx retrieves the raw token accepted by RequireSession.
func SessionTokenFromCtx(c *gin.Context) string {
	v, _ := c.Get(ctxSessionToken)
	s, _ := v.(string)
	return s
}
