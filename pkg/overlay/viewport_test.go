package overlay

import (
	"errors"
	"math"
	"testing"

	"github.com/unklstewy/sky-overlay/pkg/geo"
)

// TestBuildFetchContext tests radius derivation from the host map's
// viewport.
func TestBuildFetchContext(t *testing.T) {
	t.Run("NoCenter", func(t *testing.T) {
		host := newFakeHost(geo.Point{})
		host.haveCenter = false
		if _, err := buildFetchContext(host); !errors.Is(err, ErrNoViewport) {
			t.Errorf("Expected ErrNoViewport, got %v", err)
		}
	})

	t.Run("InvalidCenter", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 91, Lon: 0})
		if _, err := buildFetchContext(host); !errors.Is(err, ErrNoViewport) {
			t.Errorf("Expected ErrNoViewport, got %v", err)
		}
	})

	t.Run("NoBoundsFallsBackToDefault", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 38, Lon: -78})
		fc, err := buildFetchContext(host)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if fc.RadiusNM != DefaultRadiusNM {
			t.Errorf("Radius = %f, want default %f", fc.RadiusNM, DefaultRadiusNM)
		}
		if fc.Center.Lat != 38 || fc.Center.Lon != -78 {
			t.Errorf("Center = %+v, want 38/-78", fc.Center)
		}
	})

	t.Run("BoundsDeriveRadius", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 38, Lon: -78})
		host.sw = geo.Point{Lat: 37.5, Lon: -78.5}
		host.ne = geo.Point{Lat: 38.5, Lon: -77.5}
		host.haveBounds = true

		fc, err := buildFetchContext(host)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		// Corner is roughly 38 NM out; padded and rounded up the
		// radius lands in the low forties.
		if fc.RadiusNM < 40 || fc.RadiusNM > 46 {
			t.Errorf("Radius = %f, want ~42", fc.RadiusNM)
		}
		if fc.RadiusNM != math.Ceil(fc.RadiusNM) {
			t.Errorf("Radius should be a whole number, got %f", fc.RadiusNM)
		}
	})

	t.Run("TinyViewportClampsToMin", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 38, Lon: -78})
		host.sw = geo.Point{Lat: 37.99, Lon: -78.01}
		host.ne = geo.Point{Lat: 38.01, Lon: -77.99}
		host.haveBounds = true

		fc, err := buildFetchContext(host)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if fc.RadiusNM != MinRadiusNM {
			t.Errorf("Radius = %f, want min %f", fc.RadiusNM, MinRadiusNM)
		}
	})

	t.Run("HugeViewportClampsToMax", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 38, Lon: -78})
		host.sw = geo.Point{Lat: 28, Lon: -88}
		host.ne = geo.Point{Lat: 48, Lon: -68}
		host.haveBounds = true

		fc, err := buildFetchContext(host)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if fc.RadiusNM != MaxRadiusNM {
			t.Errorf("Radius = %f, want max %f", fc.RadiusNM, MaxRadiusNM)
		}
	})

	t.Run("AsymmetricBoundsUseFartherCorner", func(t *testing.T) {
		host := newFakeHost(geo.Point{Lat: 38, Lon: -78})
		host.sw = geo.Point{Lat: 36, Lon: -78.1}
		host.ne = geo.Point{Lat: 38.1, Lon: -77.9}
		host.haveBounds = true

		fc, err := buildFetchContext(host)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		// SW corner is ~120 NM out, NE only ~8; the farther one wins.
		if fc.RadiusNM < 100 {
			t.Errorf("Radius = %f, expected the farther corner to govern", fc.RadiusNM)
		}
	})
}
