// Package authgate guards every HTTP API route (other than static
// assets) and every control command other than "auth" behind a single
// shared bearer token, compared in constant time.
package authgate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName is the cookie set on successful token presentation so that
// nested sub-resource requests (e.g. the preview proxy) authenticate
// without re-presenting the token in every URL.
const CookieName = "cc_remote_token"

// CookieTTL is how long the auth cookie remains valid.
const CookieTTL = 24 * time.Hour

// Gate holds the single immutable server token.
type Gate struct {
	token string
}

// New constructs a Gate from an explicit override, falling back to a
// freshly generated 4-byte (8 hex char) token when override is empty.
func New(override string) *Gate {
	if override != "" {
		return &Gate{token: override}
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic("authgate: system randomness unavailable: " + err.Error())
	}
	return &Gate{token: hex.EncodeToString(buf)}
}

// Token returns the server's bearer token, for printing in the startup
// banner.
func (g *Gate) Token() string { return g.token }

// Check reports whether candidate matches the server token, in constant
// time regardless of where the mismatch occurs.
func (g *Gate) Check(candidate string) bool {
	if len(candidate) != len(g.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.token)) == 1
}

// IssueCookie sets the 24h sub-resource auth cookie on a successful gate
// check.
func (g *Gate) IssueCookie(c *gin.Context) {
	c.SetCookie(CookieName, g.token, int(CookieTTL.Seconds()), "/", "", false, true)
}

// Middleware returns a gin.HandlerFunc that rejects requests lacking a
// valid bearer token or auth cookie with 401, and issues the cookie on
// a successful bearer presentation so later sub-resource requests don't
// need to repeat it.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearer := extractBearer(c.GetHeader("Authorization")); bearer != "" {
			if g.Check(bearer) {
				g.IssueCookie(c)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cookie, err := c.Cookie(CookieName)
		if err == nil && g.Check(cookie) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
