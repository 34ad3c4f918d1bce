// README: Chat handler; submits, cancels and clears turns and streams conversation events over SSE.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chatmap/internal/http/middleware"
	"chatmap/internal/modules/turn"
)

const defaultHeartbeat = 15 * time.Second

type ChatHandler struct {
	sessions  *turn.Manager
	endpoints Endpoints
	heartbeat time.Duration
	log       logrus.FieldLogger
}

func NewChatHandler(sessions *turn.Manager, endpoints Endpoints, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{sessions: sessions, endpoints: endpoints, heartbeat: defaultHeartbeat, log: log}
}

type chatReq struct {
	Query    string       `json:"query"`
	Settings *settingsReq `json:"settings"`
}

type chatResp struct {
	SessionID string `json:"session_id"`
	TurnID    uint64 `json:"turn_id"`
}

// Submit handles POST /api/chat.
func (h *ChatHandler) Submit(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	cfg, err := h.endpoints.Resolve(req.Settings, c.GetHeader("X-API-Key"))
	if err != nil {
		writeTurnError(c, err)
		return
	}

	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	t, err := o.Submit(req.Query, cfg)
	if err != nil {
		writeTurnError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, chatResp{SessionID: o.SessionID(), TurnID: t.ID()})
}

// Cancel handles POST /api/chat/cancel.
func (h *ChatHandler) Cancel(c *gin.Context) {
	o, ok := h.sessions.Lookup(middleware.SessionID(c))
	cancelled := ok && o.Cancel()
	writeJSON(c, http.StatusOK, gin.H{"cancelled": cancelled})
}

// Clear handles POST /api/chat/clear.
func (h *ChatHandler) Clear(c *gin.Context) {
	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	st := o.Clear()
	writeJSON(c, http.StatusOK, gin.H{"session_id": o.SessionID(), "map": st})
}

// Active handles GET /api/chat: the in-flight turn, if any, and the conversation so far.
func (h *ChatHandler) Active(c *gin.Context) {
	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	resp := gin.H{"session_id": o.SessionID(), "messages": o.History()}
	if t := o.Active(); t != nil {
		resp["active"] = t.Info()
	}
	writeJSON(c, http.StatusOK, resp)
}

// Events handles GET /api/events. The first event is the current map; after
// that every conversation event is forwarded until the client goes away.
func (h *ChatHandler) Events(c *gin.Context) {
	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	events, unsubscribe := o.Events().Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	st, version := o.MapState()
	c.SSEvent(string(turn.EventMap), turn.Event{Type: turn.EventMap, SessionID: o.SessionID(), TurnID: version, Map: &st})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
		case now := <-heartbeat.C:
			c.SSEvent("ping", gin.H{"ts": now.Unix()})
		}
		c.Writer.Flush()
	}
}
