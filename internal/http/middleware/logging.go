// README: Access log middleware writing one logrus entry per request.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Logging(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"session_id": SessionID(c),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("http: request failed")
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Warn("http: request")
		default:
			entry.Info("http: request")
		}
	}
}
