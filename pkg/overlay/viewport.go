package overlay

import (
	"errors"
	"math"

	"github.com/unklstewy/sky-overlay/pkg/geo"
)

const (
	// MinRadiusNM and MaxRadiusNM clamp the derived search radius.
	MinRadiusNM = 5.0
	MaxRadiusNM = 250.0

	// DefaultRadiusNM is used when the host map cannot report bounds.
	DefaultRadiusNM = 25.0

	// radiusFactor pads the viewport-corner distance so aircraft
	// just outside the visible edge are already tracked when the
	// user pans.
	radiusFactor = 1.10
)

// ErrNoViewport reports a host map that cannot provide a center for
// this fetch cycle. The cycle aborts like a transient failure.
var ErrNoViewport = errors.New("overlay: host map viewport unavailable")

// FetchContext is the geographic center and search radius used for
// one fetch cycle. It is retained after a successful fetch as the
// reference for staleness and out-of-range eviction until the next
// successful fetch supersedes it.
type FetchContext struct {
	Center   geo.Point
	RadiusNM float64
}

// buildFetchContext derives the fetch center and radius from the
// current map view. The radius is the distance from center to the
// viewport corner, padded by 10%, rounded up, and clamped to
// [MinRadiusNM, MaxRadiusNM]; without bounds it falls back to
// DefaultRadiusNM.
func buildFetchContext(host HostMap) (FetchContext, error) {
	center, ok := host.Center()
	if !ok || !center.Valid() {
		return FetchContext{}, ErrNoViewport
	}

	radius := DefaultRadiusNM
	if sw, ne, ok := host.Bounds(); ok && sw.Valid() && ne.Valid() {
		corner := geo.DistanceNM(center, ne)
		if d := geo.DistanceNM(center, sw); d > corner {
			corner = d
		}
		radius = math.Ceil(radiusFactor * corner)
	}
	radius = geo.Clamp(radius, MinRadiusNM, MaxRadiusNM)

	return FetchContext{Center: center, RadiusNM: radius}, nil
}
