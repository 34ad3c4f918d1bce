// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatmap/internal/ai"
	"chatmap/internal/modules/turn"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTurnError(c *gin.Context, err error) {
	var ce *ai.ConfigError
	switch {
	case errors.As(err, &ce):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: ce.Error(), Missing: ce.Missing})
	case errors.Is(err, turn.ErrEmptyQuery):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, turn.ErrClosed):
		writeError(c, http.StatusServiceUnavailable, "server shutting down")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
