// README: History handler; lists a session's recorded turns and the suggested-query catalog.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatmap/internal/http/middleware"
	"chatmap/internal/modules/history"
)

const maxHistoryLimit = 200

type HistoryHandler struct {
	store history.Store
}

// NewHistoryHandler builds the handler; store may be nil when recording is disabled.
func NewHistoryHandler(store history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// List handles GET /api/history?limit=.
func (h *HistoryHandler) List(c *gin.Context) {
	if h.store == nil {
		writeError(c, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit := history.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessionID := middleware.SessionID(c)
	records, err := h.store.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": sessionID, "turns": records})
}

// Suggestions handles GET /api/suggestions?category=.
func (h *HistoryHandler) Suggestions(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"suggestions": SuggestionsFor(c.Query("category"))})
}
