package geo

import (
	"math"

	"github.com/roshanrateria/EcoRoute/internal/models"
)

// PoolRadiusMeters is how close two delivery points must be for their
// orders to share a trip.
const PoolRadiusMeters = 500.0

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// WithinPoolRadius reports whether two delivery points are close enough
// to be pooled into one trip.
func WithinPoolRadius(a, b models.Coord) bool {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng) <= PoolRadiusMeters
}

// Centroid is the mean coordinate of the given points. Returns the zero
// coord for an empty slice.
func Centroid(points []models.Coord) models.Coord {
	if len(points) == 0 {
		return models.Coord{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return models.Coord{Lat: lat / n, Lng: lng / n}
}

// Interpolate moves linearly from `from` toward `to` by fraction t in [0,1].
// Good enough for a simulated rider; no geodesic correction at city scale.
func Interpolate(from, to models.Coord, t float64) models.Coord {
	return models.Coord{
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Lng: from.Lng + (to.Lng-from.Lng)*t,
	}
}
