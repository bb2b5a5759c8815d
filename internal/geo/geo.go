package geo

import (
	"context"
	"math"
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ETAOracle estimates travel time between two points. The engine treats it as
// an external collaborator and never does routing math of its own.
type ETAOracle interface {
	ETA(ctx context.Context, from, to Location) (int, error)
}

// HaversineOracle is the fallback oracle used when no external routing service
// is configured: straight-line distance at a configured average speed.
type HaversineOracle struct {
	SpeedKmh float64
}

func NewHaversineOracle(speedKmh float64) *HaversineOracle {
	if speedKmh <= 0 {
		speedKmh = 20
	}
	return &HaversineOracle{SpeedKmh: speedKmh}
}

const earthRadiusKm = 6371.0

func (o *HaversineOracle) ETA(_ context.Context, from, to Location) (int, error) {
	distKm := haversineKm(from, to)
	minutes := int(math.Ceil(distKm / o.SpeedKmh * 60))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, nil
}

func haversineKm(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
