// Package geo holds the coordinate helpers used for deduplication and job
// distance annotations.
package geo

import "math"

// DefaultToleranceDeg is the dedup bounding-box half-width in degrees,
// roughly ten metres. Bounding-box comparison (not geodesic radius) is a
// deliberate compatibility choice; the value is configurable via
// DEDUP_TOLERANCE_DEG.
const DefaultToleranceDeg = 0.0001

const earthRadiusKm = 6371.0

// WithinBox reports whether two coordinates fall inside the same tolerance
// box.
func WithinBox(lat1, lon1, lat2, lon2, toleranceDeg float64) bool {
	return math.Abs(lat1-lat2) <= toleranceDeg && math.Abs(lon1-lon2) <= toleranceDeg
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ValidCoordinates reports whether lat/lon form a usable position. The 0,0
// null island pair is treated as missing input from broken clients.
func ValidCoordinates(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
