// Package geo provides the great-circle math and unit helpers used by
// the aircraft overlay: distances in nautical miles, bearings, and the
// clamping/normalization primitives the rest of the module relies on.
package geo

import "math"

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile converts nautical miles to kilometers
	KmPerNauticalMile = 1.852
)

// Point is a position on Earth's surface in the WGS84 coordinate
// system (the same system as GPS and every public ADS-B feed).
type Point struct {
	// Lat is latitude in decimal degrees (-90 to +90)
	Lat float64

	// Lon is longitude in decimal degrees (-180 to +180)
	Lon float64
}

// ValidLat reports whether v is a finite latitude in [-90, 90].
func ValidLat(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -90 && v <= 90
}

// ValidLon reports whether v is a finite longitude in [-180, 180].
func ValidLon(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -180 && v <= 180
}

// Valid reports whether the point is a usable geodetic coordinate.
func (p Point) Valid() bool {
	return ValidLat(p.Lat) && ValidLon(p.Lon)
}

// DistanceNM calculates the great-circle distance between two points.
// Uses the Haversine formula for accuracy over short and long distances.
// Returns distance in nautical miles.
func DistanceNM(from, to Point) float64 {
	lat1Rad := from.Lat * DegreesToRadians
	lon1Rad := from.Lon * DegreesToRadians
	lat2Rad := to.Lat * DegreesToRadians
	lon2Rad := to.Lon * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c / KmPerNauticalMile
}

// Bearing calculates the initial bearing (forward azimuth) from one
// point to another along a great circle.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East.
func Bearing(from, to Point) float64 {
	lat1 := from.Lat * DegreesToRadians
	lon1 := from.Lon * DegreesToRadians
	lat2 := to.Lat * DegreesToRadians
	lon2 := to.Lon * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := math.Atan2(y, x) * RadiansToDegrees

	if bearing < 0 {
		bearing += 360
	}
	return bearing
}

// Destination returns the point reached by travelling distanceNM
// nautical miles from start along the given initial bearing in degrees.
func Destination(start Point, bearingDeg, distanceNM float64) Point {
	angular := distanceNM * KmPerNauticalMile / EarthRadiusKm
	brg := bearingDeg * DegreesToRadians
	lat1 := start.Lat * DegreesToRadians
	lon1 := start.Lon * DegreesToRadians

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	lon2 = math.Mod(lon2+3*math.Pi, 2*math.Pi) - math.Pi

	return Point{
		Lat: lat2 * RadiansToDegrees,
		Lon: lon2 * RadiansToDegrees,
	}
}

// NormalizeHeading wraps a heading into [0, 360). Non-finite values
// are treated as 0 so a garbage track field never propagates NaN into
// marker rotation.
func NormalizeHeading(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Clamp limits v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
