// README: Map handler; serves the render state with its viewport and nearby-marker lookups.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatmap/internal/http/middleware"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/mapstate"
	"chatmap/internal/modules/turn"
	"chatmap/internal/types"
)

const (
	defaultNearbyKm = 5.0
	maxNearbyKm     = 500.0
)

// NearbyFinder answers radius queries over a session's markers.
type NearbyFinder interface {
	Nearby(ctx context.Context, sessionID string, p types.Point, radiusKm float64) ([]mapstate.Nearby, error)
}

type MapHandler struct {
	sessions *turn.Manager
	nearby   NearbyFinder
}

// NewMapHandler builds the handler; nearby may be nil when Redis is not configured.
func NewMapHandler(sessions *turn.Manager, nearby NearbyFinder) *MapHandler {
	return &MapHandler{sessions: sessions, nearby: nearby}
}

type mapResp struct {
	SessionID    string             `json:"session_id"`
	Version      uint64             `json:"version"`
	Map          mapstate.State     `json:"map"`
	Viewport     *mapstate.Viewport `json:"viewport"`
	EncodedRoute string             `json:"encoded_route,omitempty"`
}

// Get handles GET /api/map.
func (h *MapHandler) Get(c *gin.Context) {
	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	st, version := o.MapState()
	writeJSON(c, http.StatusOK, mapResp{
		SessionID:    o.SessionID(),
		Version:      version,
		Map:          st,
		Viewport:     mapstate.FitBounds(st.Markers, mapstate.DefaultPadRatio),
		EncodedRoute: st.EncodedRoute(),
	})
}

type nearbyItem struct {
	geo.Location
	DistanceKm float64 `json:"distance_km"`
}

// Nearby handles GET /api/map/nearby?lat=&lng=&radius_km=.
func (h *MapHandler) Nearby(c *gin.Context) {
	if h.nearby == nil {
		writeError(c, http.StatusServiceUnavailable, "nearby search needs redis")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return
	}
	radius := defaultNearbyKm
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 || r > maxNearbyKm {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}

	o, err := h.sessions.Get(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		writeTurnError(c, err)
		return
	}
	hits, err := h.nearby.Nearby(c.Request.Context(), o.SessionID(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	st, _ := o.MapState()
	byID := make(map[string]geo.Location, len(st.Markers))
	for _, m := range st.Markers {
		byID[m.ID] = m
	}
	items := make([]nearbyItem, 0, len(hits))
	for _, hit := range hits {
		// The GEO set lags the in-memory state until the next snapshot.
		if m, ok := byID[hit.ID]; ok {
			items = append(items, nearbyItem{Location: m, DistanceKm: hit.DistanceKm})
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"session_id": o.SessionID(), "markers": items})
}
