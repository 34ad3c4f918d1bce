// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatmap/internal/http/middleware"
)

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}
	r.GET("/api/suggestions", s.history.Suggestions)

	api := r.Group("/api")
	if s.verifier != nil {
		api.Use(middleware.Auth(s.verifier))
	}
	api.Use(middleware.Session())

	api.POST("/chat", s.chat.Submit)
	api.GET("/chat", s.chat.Active)
	api.POST("/chat/cancel", s.chat.Cancel)
	api.POST("/chat/clear", s.chat.Clear)
	api.GET("/events", s.chat.Events)

	api.GET("/map", s.maps.Get)
	api.GET("/map/nearby", s.maps.Nearby)

	api.GET("/history", s.history.List)

	return r
}
