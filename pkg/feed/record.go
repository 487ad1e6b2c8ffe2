// Package feed decodes a public aircraft-position feed: a loosely
// typed JSON document whose rows carry telemetry under a handful of
// historical field-naming conventions. Nothing in a row can be
// trusted, so every accessor is defensive and returns an explicit
// ok flag instead of panicking or guessing.
package feed

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/unklstewy/sky-overlay/pkg/geo"
)

// Record is a single aircraft row as received from the feed. Fields
// may be absent, wrongly typed, or present under any of several
// aliases; accessors resolve them in a fixed priority order.
type Record map[string]any

// latAliases and lonAliases are tried in this exact order. The order
// is a compatibility contract with several feed generations and must
// not be reordered.
var (
	latAliases = []string{"lat", "latitude", "Lat", "Latitude", "lat_deg", "latitude_deg"}
	lonAliases = []string{"lon", "lng", "longitude", "Lon", "Lng", "Longitude", "lon_deg", "longitude_deg"}

	// nestedPositionFields are scanned, in order, when the direct
	// aliases yield no usable pair.
	nestedPositionFields = []string{"position", "pos", "location", "loc", "coordinates", "coord"}

	// identityAliases are tried in order to resolve the stable
	// per-aircraft key.
	identityAliases = []string{"hex", "icao", "icao24", "id", "addr", "reg", "registration", "flight", "callsign"}
)

// asFloat coerces a loosely typed JSON value to a finite float64.
// Accepts numbers, json.Number, and numeric strings; rejects
// everything else including NaN and infinities.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return asFloat(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return asFloat(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return asFloat(f)
	default:
		return 0, false
	}
}

// asString coerces a value to a trimmed non-empty string.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}

// fieldFloat resolves the first alias whose value passes the
// validator. A present-but-invalid alias does not stop the scan.
func (r Record) fieldFloat(aliases []string, valid func(float64) bool) (float64, bool) {
	for _, key := range aliases {
		v, present := r[key]
		if !present {
			continue
		}
		f, ok := asFloat(v)
		if ok && valid(f) {
			return f, true
		}
	}
	return 0, false
}

// Position extracts a validated coordinate pair from the record.
//
// Direct aliases are tried first, independently for latitude and
// longitude. If either side is still missing, the nested fallback
// fields are scanned in order, accepting either a 2-element sequence
// (tried as (lat,lon) first, then (lon,lat), disambiguated by range
// validity) or an object carrying the same named sub-fields.
//
// Returns ok=false only when every tier is exhausted. Never panics,
// regardless of the record's shape.
func (r Record) Position() (geo.Point, bool) {
	lat, haveLat := r.fieldFloat(latAliases, geo.ValidLat)
	lon, haveLon := r.fieldFloat(lonAliases, geo.ValidLon)
	if haveLat && haveLon {
		return geo.Point{Lat: lat, Lon: lon}, true
	}

	for _, key := range nestedPositionFields {
		v, present := r[key]
		if !present {
			continue
		}
		if p, ok := positionFromNested(v); ok {
			return p, true
		}
	}
	return geo.Point{}, false
}

// positionFromNested interprets one nested position candidate.
func positionFromNested(v any) (geo.Point, bool) {
	switch n := v.(type) {
	case []any:
		if len(n) != 2 {
			return geo.Point{}, false
		}
		a, okA := asFloat(n[0])
		b, okB := asFloat(n[1])
		if !okA || !okB {
			return geo.Point{}, false
		}
		// (lat,lon) ordering wins whenever it is range-valid, even
		// if (lon,lat) would also be valid. Fixed tie-break.
		if geo.ValidLat(a) && geo.ValidLon(b) {
			return geo.Point{Lat: a, Lon: b}, true
		}
		if geo.ValidLat(b) && geo.ValidLon(a) {
			return geo.Point{Lat: b, Lon: a}, true
		}
		return geo.Point{}, false
	case map[string]any:
		sub := Record(n)
		lat, haveLat := sub.fieldFloat(latAliases, geo.ValidLat)
		lon, haveLon := sub.fieldFloat(lonAliases, geo.ValidLon)
		if haveLat && haveLon {
			return geo.Point{Lat: lat, Lon: lon}, true
		}
		return geo.Point{}, false
	default:
		return geo.Point{}, false
	}
}

// Identity resolves the stable per-aircraft key from the first
// present identity-like field. Returns ok=false for anonymous rows,
// which the overlay skips entirely.
func (r Record) Identity() (string, bool) {
	for _, key := range identityAliases {
		v, present := r[key]
		if !present {
			continue
		}
		if s, ok := asString(v); ok {
			return s, true
		}
	}
	return "", false
}

// GeometricAltitude returns the geometric (GPS) altitude in feet.
func (r Record) GeometricAltitude() (float64, bool) {
	v, present := r["alt_geom"]
	if !present {
		return 0, false
	}
	return asFloat(v)
}

// BarometricAltitude returns the barometric altitude in feet, trying
// the modern and legacy alias chain. The string "ground" used by
// dump1090-family feeds does not parse as a number, so grounded
// aircraft fall through to ok=false here.
func (r Record) BarometricAltitude() (float64, bool) {
	for _, key := range []string{"alt_baro", "altitude", "alt"} {
		v, present := r[key]
		if !present {
			continue
		}
		if f, ok := asFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Altitude returns the best available altitude in feet, preferring
// geometric over barometric. ok=false means the aircraft is treated
// as grounded.
func (r Record) Altitude() (float64, bool) {
	if f, ok := r.GeometricAltitude(); ok {
		return f, true
	}
	return r.BarometricAltitude()
}

// Grounded reports whether no finite altitude field could be parsed.
func (r Record) Grounded() bool {
	_, ok := r.Altitude()
	return !ok
}

// Heading returns the ground track in degrees, normalized to [0,360).
// ok=false means no heading-like field parsed.
func (r Record) Heading() (float64, bool) {
	for _, key := range []string{"track", "true_heading", "mag_heading", "heading"} {
		v, present := r[key]
		if !present {
			continue
		}
		if f, ok := asFloat(v); ok {
			return geo.NormalizeHeading(f), true
		}
	}
	return 0, false
}

// Callsign returns the flight callsign with surrounding whitespace
// trimmed, or "" when absent.
func (r Record) Callsign() string {
	for _, key := range []string{"flight", "callsign"} {
		if s, ok := asString(r[key]); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Squawk returns the transponder code as a string (e.g. "7700").
func (r Record) Squawk() string {
	if s, ok := asString(r["squawk"]); ok {
		return s
	}
	return ""
}

// SourceType returns the position-source technology tag
// (e.g. "adsb_icao", "mlat", "tisb_other", "adsc").
func (r Record) SourceType() string {
	if s, ok := asString(r["type"]); ok {
		return s
	}
	return ""
}

// PositionAge returns the age of the last position report in seconds,
// preferring the position-specific field over the generic one.
func (r Record) PositionAge() (float64, bool) {
	for _, key := range []string{"seen_pos", "seen"} {
		v, present := r[key]
		if !present {
			continue
		}
		if f, ok := asFloat(v); ok && f >= 0 {
			return f, true
		}
	}
	return 0, false
}

// Category returns the ADS-B emitter category code (e.g. "A3").
func (r Record) Category() string {
	if s, ok := asString(r["category"]); ok {
		return strings.ToUpper(s)
	}
	return ""
}

// TypeDesignator returns the ICAO type designator (e.g. "B738").
func (r Record) TypeDesignator() string {
	for _, key := range []string{"t", "type_designator"} {
		if s, ok := asString(r[key]); ok {
			return strings.ToUpper(s)
		}
	}
	return ""
}

// Description returns the free-text airframe description when the
// feed includes one (e.g. "BOEING 737-800").
func (r Record) Description() string {
	for _, key := range []string{"desc", "description"} {
		if s, ok := asString(r[key]); ok {
			return s
		}
	}
	return ""
}

// WakeClass returns the wake turbulence category letter when present.
func (r Record) WakeClass() string {
	for _, key := range []string{"wtc", "wake"} {
		if s, ok := asString(r[key]); ok {
			return strings.ToUpper(s)
		}
	}
	return ""
}
