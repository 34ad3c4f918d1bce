package mapstate

import (
	"math"

	"chatmap/internal/modules/geo"
	"chatmap/internal/types"
)

const (
	earthRadiusKm = 6371.0
	// DefaultPadRatio pads each side by 10% of the marker span.
	DefaultPadRatio = 0.1
	// minPadDeg keeps a single marker from collapsing the box to a point.
	minPadDeg = 0.01
)

type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Viewport is what a renderer needs to fit the map around the markers.
type Viewport struct {
	Bounds Bounds      `json:"bounds"`
	Center types.Point `json:"center"`
	SpanKm float64     `json:"span_km"`
}

// FitBounds returns the padded bounding box over markers, or nil when there are none.
func FitBounds(markers []geo.Location, padRatio float64) *Viewport {
	if len(markers) == 0 {
		return nil
	}
	if padRatio < 0 {
		padRatio = 0
	}

	b := Bounds{South: 90, West: 180, North: -90, East: -180}
	for _, m := range markers {
		b.South = math.Min(b.South, m.Latitude)
		b.North = math.Max(b.North, m.Latitude)
		b.West = math.Min(b.West, m.Longitude)
		b.East = math.Max(b.East, m.Longitude)
	}

	latPad := math.Max((b.North-b.South)*padRatio, minPadDeg)
	lngPad := math.Max((b.East-b.West)*padRatio, minPadDeg)
	b.South = math.Max(b.South-latPad, -90)
	b.North = math.Min(b.North+latPad, 90)
	b.West = math.Max(b.West-lngPad, -180)
	b.East = math.Min(b.East+lngPad, 180)

	return &Viewport{
		Bounds: b,
		Center: types.Point{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2},
		SpanKm: haversineKm(b.South, b.West, b.North, b.East),
	}
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
