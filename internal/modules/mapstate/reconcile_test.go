package mapstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"chatmap/internal/modules/geo"
	"chatmap/internal/types"
)

func loc(id string, lat, lng float64) geo.Location {
	return geo.Location{ID: id, Title: id, Description: id, Latitude: lat, Longitude: lng}
}

var beijingSights = []geo.Location{
	loc("故宫", 39.9163, 116.3972),
	loc("天安门广场", 39.9054, 116.3976),
	loc("颐和园", 39.9988, 116.2752),
	loc("长城", 40.4319, 116.5704),
}

var beijingToShanghai = []geo.Location{
	loc("故宫", 39.9163, 116.3972),
	loc("长城", 40.4319, 116.5704),
	loc("拙政园", 31.3242, 120.6293),
	loc("外滩", 31.2304, 121.4904),
	loc("东方明珠", 31.2396, 121.4998),
}

func TestReconcile_LocationList(t *testing.T) {
	got := Reconcile(geo.Result{TaskType: geo.TaskLocationList, Locations: beijingSights}, Default())
	assert.Equal(t, geo.TaskLocationList, got.TaskType)
	assert.Equal(t, beijingSights, got.Markers)
	assert.Nil(t, got.Route)
	assert.Empty(t, got.EncodedRoute())
}

func TestReconcile_Route(t *testing.T) {
	got := Reconcile(geo.Result{TaskType: geo.TaskRoute, Locations: beijingToShanghai}, Default())
	assert.Equal(t, geo.TaskRoute, got.TaskType)
	assert.Equal(t, beijingToShanghai, got.Markers)
	require.Len(t, got.Route, 5)
	for i, l := range beijingToShanghai {
		assert.Equal(t, types.Point{Lat: l.Latitude, Lng: l.Longitude}, got.Route[i])
	}
	assert.NotEmpty(t, got.EncodedRoute())
}

func TestReconcile_SingleStopRouteHasNoPolyline(t *testing.T) {
	got := Reconcile(geo.Result{TaskType: geo.TaskRoute, Locations: beijingToShanghai[:1]}, Default())
	assert.Equal(t, geo.TaskRoute, got.TaskType)
	assert.Len(t, got.Markers, 1)
	assert.Nil(t, got.Route)
}

func TestReconcile_NoMapUpdateClears(t *testing.T) {
	prev := Reconcile(geo.Result{TaskType: geo.TaskRoute, Locations: beijingToShanghai}, Default())
	got := Reconcile(geo.Empty("人工智能的未来"), prev)
	assert.Equal(t, geo.TaskNoMapUpdate, got.TaskType)
	assert.Empty(t, got.Markers)
	assert.Nil(t, got.Route)
}

func TestReconcile_Idempotent(t *testing.T) {
	results := []geo.Result{
		{TaskType: geo.TaskLocationList, Locations: beijingSights},
		{TaskType: geo.TaskRoute, Locations: beijingToShanghai},
		geo.Empty(""),
	}
	starts := []State{Default(), Reconcile(results[1], Default())}
	for _, r := range results {
		for _, s := range starts {
			once := Reconcile(r, s)
			assert.Equal(t, once, Reconcile(r, once))
		}
	}
}

func TestReconcile_DoesNotAliasInput(t *testing.T) {
	in := append([]geo.Location{}, beijingSights...)
	got := Reconcile(geo.Result{TaskType: geo.TaskLocationList, Locations: in}, Default())
	in[0].Title = "changed"
	assert.Equal(t, "故宫", got.Markers[0].Title)
}

func TestEncodedRoute_DecodesToRoute(t *testing.T) {
	s := Reconcile(geo.Result{TaskType: geo.TaskRoute, Locations: beijingToShanghai}, Default())
	path, err := maps.DecodePolyline(s.EncodedRoute())
	require.NoError(t, err)
	require.Len(t, path, len(s.Route))
	for i, p := range path {
		assert.InDelta(t, s.Route[i].Lat, p.Lat, 1e-5)
		assert.InDelta(t, s.Route[i].Lng, p.Lng, 1e-5)
	}
}
