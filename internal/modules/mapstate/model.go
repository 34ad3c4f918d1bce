// README: Map render state shared by one conversation: ordered markers, optional route polyline and task type.
package mapstate

import (
	"googlemaps.github.io/maps"

	"chatmap/internal/modules/geo"
	"chatmap/internal/types"
)

type State struct {
	TaskType geo.TaskType   `json:"task_type"`
	Markers  []geo.Location `json:"markers"`
	// Route is nil unless TaskType is ROUTE with at least two markers.
	Route []types.Point `json:"route,omitempty"`
}

// Default is the neutral empty state: no markers, no route, LOCATION_LIST.
func Default() State {
	return State{TaskType: geo.TaskLocationList, Markers: []geo.Location{}}
}

// EncodedRoute returns the route in Google's encoded polyline format, or "" without a route.
func (s State) EncodedRoute() string {
	if len(s.Route) < 2 {
		return ""
	}
	path := make([]maps.LatLng, len(s.Route))
	for i, p := range s.Route {
		path[i] = maps.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	return maps.Encode(path)
}

func (s State) clone() State {
	out := State{TaskType: s.TaskType, Markers: make([]geo.Location, len(s.Markers))}
	copy(out.Markers, s.Markers)
	if s.Route != nil {
		out.Route = make([]types.Point, len(s.Route))
		copy(out.Route, s.Route)
	}
	return out
}
