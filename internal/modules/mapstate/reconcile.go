// README: Pure mapping from an extraction result to the next map state.
package mapstate

import (
	"chatmap/internal/modules/geo"
	"chatmap/internal/types"
)

// Reconcile maps an extraction result onto a new render state.
// The output depends on result alone, so repeated application is idempotent.
func Reconcile(result geo.Result, _ State) State {
	switch result.TaskType {
	case geo.TaskRoute:
		if len(result.Locations) == 0 {
			return State{TaskType: geo.TaskNoMapUpdate, Markers: []geo.Location{}}
		}
		next := State{TaskType: geo.TaskRoute, Markers: copyLocations(result.Locations)}
		if len(result.Locations) >= 2 {
			next.Route = make([]types.Point, len(result.Locations))
			for i, l := range result.Locations {
				next.Route[i] = types.Point{Lat: l.Latitude, Lng: l.Longitude}
			}
		}
		return next
	case geo.TaskLocationList:
		if len(result.Locations) == 0 {
			return State{TaskType: geo.TaskNoMapUpdate, Markers: []geo.Location{}}
		}
		return State{TaskType: geo.TaskLocationList, Markers: copyLocations(result.Locations)}
	default:
		return State{TaskType: geo.TaskNoMapUpdate, Markers: []geo.Location{}}
	}
}

func copyLocations(in []geo.Location) []geo.Location {
	out := make([]geo.Location, len(in))
	copy(out, in)
	return out
}
