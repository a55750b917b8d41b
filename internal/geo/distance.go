// Package geo evaluates positions against session geofences.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula. It returns NaN when either point is not a valid
// coordinate.
func DistanceMeters(latA, lngA, latB, lngB float64) float64 {
	if !ValidCoordinate(latA, lngA) || !ValidCoordinate(latB, lngB) {
		return math.NaN()
	}

	dLat := toRad(latB - latA)
	dLng := toRad(lngB - lngA)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(latA))*math.Cos(toRad(latB))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push a past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidCoordinate reports whether lat/lng are finite and in range.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Known reports whether d is a usable distance.
func Known(d *float64) bool {
	return d != nil && !math.IsNaN(*d) && !math.IsInf(*d, 0)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
