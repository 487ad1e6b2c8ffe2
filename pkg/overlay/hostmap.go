package overlay

import (
	"github.com/unklstewy/sky-overlay/pkg/geo"
	"github.com/unklstewy/sky-overlay/pkg/icon"
)

// MarkerHandle is the overlay's ownership of one host-map marker
// object. Handles are created by HostMap.AddMarker, owned exclusively
// by one MarkerEntry, and released exactly once via Remove.
type MarkerHandle interface {
	// SetPosition moves the marker. Called on every poll that
	// reports the aircraft.
	SetPosition(p geo.Point)

	// SetIcon swaps the rendered icon resource. Called only when the
	// visual encoding key changes.
	SetIcon(res *icon.Resource)

	// SetRotation applies a heading rotation in degrees. Returns
	// false when the underlying element is not attached yet; the
	// overlay retries on the next rotation pass. Must be idempotent.
	SetRotation(deg float64) bool

	// Remove destroys the marker. No method may be called afterward.
	Remove()
}

// ViewListener receives pan/zoom lifecycle notifications from the
// host map. Both callbacks may be invoked from the host map's own
// goroutine; the overlay serializes them internally.
type ViewListener interface {
	// InteractionStart fires when a pan or zoom begins.
	InteractionStart()

	// InteractionEnd fires when a pan or zoom settles.
	InteractionEnd()
}

// HostMap is the map widget the overlay draws on. The overlay
// consumes only these capabilities; rendering, projection, and input
// belong to the host.
type HostMap interface {
	// Center returns the current view center. ok=false aborts the
	// fetch cycle like a transient failure.
	Center() (geo.Point, bool)

	// Bounds returns the current view corners (south-west,
	// north-east). ok=false selects the default search radius.
	Bounds() (sw, ne geo.Point, ok bool)

	// AddMarker creates a marker at the given position with an
	// initial icon and rotation.
	AddMarker(p geo.Point, res *icon.Resource, rotation float64) MarkerHandle

	// Subscribe registers a pan/zoom listener.
	Subscribe(l ViewListener)

	// Unsubscribe removes a previously registered listener.
	Unsubscribe(l ViewListener)
}
