package geo

import (
	"math"
	"testing"
)

// TestDistanceNM tests great-circle distances against known values.
func TestDistanceNM(t *testing.T) {
	// San Francisco to Los Angeles is approximately 300-350 nm
	sf := Point{Lat: 37.7749, Lon: -122.4194}
	la := Point{Lat: 34.0522, Lon: -118.2437}

	dist := DistanceNM(sf, la)
	if dist < 280 || dist > 360 {
		t.Errorf("Distance SF to LA should be ~300-350nm, got %f", dist)
	}

	// Same point should be zero
	if d := DistanceNM(sf, sf); d != 0 {
		t.Errorf("Distance to same point should be 0, got %f", d)
	}

	// One degree of latitude is ~60 nm
	a := Point{Lat: 37.0, Lon: -122.0}
	b := Point{Lat: 38.0, Lon: -122.0}
	if d := DistanceNM(a, b); math.Abs(d-60) > 1 {
		t.Errorf("One degree of latitude should be ~60nm, got %f", d)
	}
}

// TestBearing tests cardinal bearings.
func TestBearing(t *testing.T) {
	tests := []struct {
		name     string
		from, to Point
		min, max float64
	}{
		{"North", Point{37, -122}, Point{38, -122}, -1, 1},
		{"East", Point{37, -122}, Point{37, -121}, 85, 95},
		{"South", Point{38, -122}, Point{37, -122}, 175, 185},
		{"West", Point{37, -121}, Point{37, -122}, 265, 275},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := Bearing(tc.from, tc.to)
			if tc.name == "North" {
				// Wraps around 0/360
				if b > 5 && b < 355 {
					t.Errorf("Bearing due north should be ~0, got %f", b)
				}
				return
			}
			if b < tc.min || b > tc.max {
				t.Errorf("Bearing should be in [%f, %f], got %f", tc.min, tc.max, b)
			}
		})
	}
}

// TestDestination tests destination point computation.
func TestDestination(t *testing.T) {
	start := Point{Lat: 37.0, Lon: -122.0}

	// 60 nm due north is approximately one degree of latitude
	dest := Destination(start, 0, 60)
	if math.Abs(dest.Lat-38.0) > 0.1 {
		t.Errorf("Expected destination lat ~38, got %f", dest.Lat)
	}
	if math.Abs(dest.Lon-(-122.0)) > 0.1 {
		t.Errorf("Expected destination lon ~-122, got %f", dest.Lon)
	}

	// Due east should keep latitude roughly constant
	dest = Destination(start, 90, 60)
	if math.Abs(dest.Lat-37.0) > 0.1 {
		t.Errorf("Expected destination lat ~37 when going east, got %f", dest.Lat)
	}
	if dest.Lon <= -122.0 {
		t.Errorf("Expected destination lon > -122 when going east, got %f", dest.Lon)
	}

	// Round trip: destination distance should match requested distance
	dest = Destination(start, 135, 42)
	if d := DistanceNM(start, dest); math.Abs(d-42) > 0.5 {
		t.Errorf("Expected 42nm to destination, got %f", d)
	}
}

// TestNormalizeHeading tests heading wrap-around and garbage input.
func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{361, 1},
		{-90, 270},
		{720, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}

	for _, tc := range tests {
		if got := NormalizeHeading(tc.in); got != tc.want {
			t.Errorf("NormalizeHeading(%f) = %f, want %f", tc.in, got, tc.want)
		}
	}
}

// TestClamp tests range clamping.
func TestClamp(t *testing.T) {
	if got := Clamp(3, 5, 250); got != 5 {
		t.Errorf("Clamp below range should return lo, got %f", got)
	}
	if got := Clamp(300, 5, 250); got != 250 {
		t.Errorf("Clamp above range should return hi, got %f", got)
	}
	if got := Clamp(25, 5, 250); got != 25 {
		t.Errorf("Clamp in range should return value, got %f", got)
	}
}

// TestValidLatLon tests geodetic range validation.
func TestValidLatLon(t *testing.T) {
	if !ValidLat(90) || !ValidLat(-90) || ValidLat(90.01) || ValidLat(math.NaN()) {
		t.Error("ValidLat range check failed")
	}
	if !ValidLon(180) || !ValidLon(-180) || ValidLon(180.01) || ValidLon(math.Inf(1)) {
		t.Error("ValidLon range check failed")
	}
	if (Point{Lat: 91, Lon: 0}).Valid() {
		t.Error("Point with lat 91 should be invalid")
	}
	if !(Point{Lat: 38.03, Lon: -78.50}).Valid() {
		t.Error("Point should be valid")
	}
}
