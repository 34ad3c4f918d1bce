// README: Firebase auth middleware; verifies the bearer token and exposes the caller uid.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatmap/internal/infra"
)

const (
	ctxKeyUID  = "auth.uid"
	ctxKeyName = "auth.name"
)

// Auth rejects requests without a valid Firebase ID token. The token comes from
// the Authorization header, or the access_token query parameter for EventSource
// clients that cannot set headers.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxKeyUID, token.UID)
		c.Set(ctxKeyName, token.Name)
		c.Next()
	}
}

// CallerUID returns the verified uid, or "" when auth is disabled.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxKeyUID)
}

// CallerName returns the display name claim, if the token carried one.
func CallerName(c *gin.Context) string {
	return c.GetString(ctxKeyName)
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		const prefix = "Bearer "
		if !strings.HasPrefix(h, prefix) {
			return ""
		}
		return strings.TrimSpace(h[len(prefix):])
	}
	return strings.TrimSpace(c.Query("access_token"))
}
