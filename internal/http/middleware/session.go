// README: Session id resolution (auth uid, header, query, fresh uuid).
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionHeader   = "X-Session-ID"
	ctxKeySession   = "session.id"
	maxSessionIDLen = 64
)

// Session resolves the conversation id: the verified uid when auth is on, else
// the X-Session-ID header or session_id query parameter, else a new uuid. The
// resolved id is echoed in the X-Session-ID response header.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CallerUID(c)
		if id == "" {
			id = c.GetHeader(SessionHeader)
		}
		if id == "" {
			id = c.Query("session_id")
		}
		if !ValidSessionID(id) {
			id = uuid.NewString()
		}
		c.Set(ctxKeySession, id)
		c.Header(SessionHeader, id)
		c.Next()
	}
}

func SessionID(c *gin.Context) string {
	return c.GetString(ctxKeySession)
}

// ValidSessionID accepts 1-64 characters of letters, digits, '-' and '_'.
func ValidSessionID(v string) bool {
	if v == "" || len(v) > maxSessionIDLen {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}
