package overlay

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/geo"
)

// testTimings keeps scheduler tests fast without changing the state
// machine under test.
func testTimings() SchedulerConfig {
	return SchedulerConfig{
		MinInterval:    10 * time.Millisecond,
		Backoff:        40 * time.Millisecond,
		Debounce:       15 * time.Millisecond,
		IdleInterval:   400 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// feedServer is a scriptable stand-in for the position feed.
type feedServer struct {
	mu       sync.Mutex
	requests int
	status   int
	body     string
	srv      *httptest.Server
}

func newFeedServer() *feedServer {
	f := &feedServer{status: http.StatusOK, body: `{"ac":[],"now":1700000000,"total":0}`}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		status, body := f.status, f.body
		f.mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	return f
}

func (f *feedServer) set(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.body = body
}

func (f *feedServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *feedServer) close() { f.srv.Close() }

func aircraftBody(hex string, lat, lon, alt, track float64) string {
	return fmt.Sprintf(
		`{"ac":[{"hex":%q,"lat":%g,"lon":%g,"alt_baro":%g,"track":%g,"t":"B738"}],"now":1700000000,"total":1}`,
		hex, lat, lon, alt, track)
}

func newTestOverlay(t *testing.T, srv *feedServer, host HostMap) *Overlay {
	t.Helper()
	client := feed.NewClient(srv.srv.URL)
	client.SetLimit(0)
	o := New(Config{
		Client:    client,
		Scheduler: testTimings(),
		Logger:    log.New(io.Discard, "", 0),
	})
	if err := o.Init(host); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return o
}

// TestOverlayEndToEnd tests the full pipeline: poll, extract, encode,
// upsert, then a second poll that turns the aircraft without creating
// a second marker or re-rendering its icon.
func TestOverlayEndToEnd(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	o := newTestOverlay(t, srv, host)
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, "first marker", func() bool {
		return o.Markers().Len() == 1
	})

	entry, ok := o.Markers().Get("abc123")
	if !ok {
		t.Fatal("Expected marker for abc123")
	}
	if entry.Position.Lat != 38.03 || entry.Position.Lon != -78.50 {
		t.Errorf("Position = %+v, want 38.03/-78.50", entry.Position)
	}
	if entry.Rotation != 90 {
		t.Errorf("Rotation = %f, want 90", entry.Rotation)
	}
	if got := o.cache.Renders(); got != 1 {
		t.Errorf("Expected 1 icon render, got %d", got)
	}

	// Same aircraft turns around; next poll updates rotation in place.
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.45, 12000, 270))
	o.RequestFetch(ReasonIdle)

	waitFor(t, time.Second, "rotation update", func() bool {
		e, ok := o.Markers().Get("abc123")
		return ok && e.Rotation == 270
	})
	if o.Markers().Len() != 1 {
		t.Errorf("Expected 1 marker after update, got %d", o.Markers().Len())
	}
	if host.handleCount() != 1 {
		t.Errorf("Expected 1 host handle, got %d", host.handleCount())
	}
	if got := o.cache.Renders(); got != 1 {
		t.Errorf("Unchanged encoding should not re-render, got %d renders", got)
	}

	snap, ok := o.Snapshot()
	if !ok {
		t.Fatal("Expected a snapshot while started")
	}
	if !snap.HaveContext || snap.LastContext.RadiusNM != DefaultRadiusNM {
		t.Errorf("Snapshot context = %+v, want default radius retained", snap.LastContext)
	}
	if snap.Failures != 0 {
		t.Errorf("Expected no failures, got %d", snap.Failures)
	}
}

// TestSupersession tests that of two overlapping fetch requests only
// the later one's result is applied, silently.
func TestSupersession(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n == 1 {
			// Hold the first request until it is cancelled underneath
			// us, then answer into the void.
			select {
			case <-r.Context().Done():
			case <-release:
			case <-time.After(2 * time.Second):
			}
			io.WriteString(w, aircraftBody("first", 38.1, -78.5, 10000, 0))
			return
		}
		io.WriteString(w, aircraftBody("second", 38.2, -78.5, 20000, 180))
	}))
	defer srv.Close()
	defer close(release)

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	client := feed.NewClient(srv.URL)
	client.SetLimit(0)
	o := New(Config{
		Client:    client,
		Scheduler: testTimings(),
		Logger:    log.New(io.Discard, "", 0),
	})
	if err := o.Init(host); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, "first request to arrive", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return requests == 1
	})

	// Supersede while the first request is still in flight.
	o.RequestFetch(ReasonViewport)

	waitFor(t, time.Second, "second result", func() bool {
		_, ok := o.Markers().Get("second")
		return ok
	})

	if _, ok := o.Markers().Get("first"); ok {
		t.Error("Superseded result must never be applied")
	}
	snap, _ := o.Snapshot()
	if snap.Failures != 0 {
		t.Errorf("Supersession is silent, got %d failures", snap.Failures)
	}
	if snap.Fetches != 2 {
		t.Errorf("Expected 2 fetch starts, got %d", snap.Fetches)
	}
}

// TestFailureBackoff tests that feed failures are absorbed, logged,
// and followed by a backoff window.
func TestFailureBackoff(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusBadGateway, "upstream sad")

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	o := newTestOverlay(t, srv, host)
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, "failure to register", func() bool {
		snap, ok := o.Snapshot()
		return ok && snap.Failures >= 1
	})

	snap, _ := o.Snapshot()
	if snap.HaveContext {
		t.Error("Failed fetch must not retain a context")
	}
	if snap.BackoffUntil.IsZero() {
		t.Error("Failure should set a backoff window")
	}
	if o.Markers().Len() != 0 {
		t.Errorf("Failed fetch must not create markers, got %d", o.Markers().Len())
	}

	// Recovery: once the feed heals, the next cycle applies normally
	// and the backoff clears.
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))
	o.RequestFetch(ReasonIdle)

	waitFor(t, time.Second, "recovery", func() bool {
		return o.Markers().Len() == 1
	})
	snap, _ = o.Snapshot()
	if !snap.BackoffUntil.IsZero() {
		t.Error("Success should clear the backoff window")
	}
}

// TestMissingViewport tests that a host map without a center aborts
// the cycle like a transient failure.
func TestMissingViewport(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()

	host := newFakeHost(geo.Point{})
	host.haveCenter = false
	o := newTestOverlay(t, srv, host)
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, "aborted cycle", func() bool {
		snap, ok := o.Snapshot()
		return ok && snap.Failures >= 1
	})
	if srv.requestCount() != 0 {
		t.Errorf("No network request should be made without a viewport, got %d", srv.requestCount())
	}
}

// TestIdleRepoll tests the background polling cadence.
func TestIdleRepoll(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	client := feed.NewClient(srv.srv.URL)
	client.SetLimit(0)
	cfg := testTimings()
	cfg.IdleInterval = 30 * time.Millisecond
	o := New(Config{
		Client:    client,
		Scheduler: cfg,
		Logger:    log.New(io.Discard, "", 0),
	})
	if err := o.Init(host); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 2*time.Second, "repeated idle polls", func() bool {
		return srv.requestCount() >= 3
	})
}

// TestInteractionDebounce tests that pan/zoom suspends idle polling
// and a settled interaction triggers one debounced viewport fetch.
func TestInteractionDebounce(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	o := newTestOverlay(t, srv, host)
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, "initial fetch", func() bool {
		return srv.requestCount() == 1
	})

	o.InteractionStart()
	time.Sleep(100 * time.Millisecond)
	if got := srv.requestCount(); got != 1 {
		t.Errorf("Polling should be suspended during interaction, got %d requests", got)
	}

	o.InteractionEnd()
	waitFor(t, time.Second, "debounced viewport fetch", func() bool {
		return srv.requestCount() >= 2
	})
}

// TestLifecycle tests the init/start/stop/dispose contract.
func TestLifecycle(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))

	host := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	client := feed.NewClient(srv.srv.URL)
	client.SetLimit(0)
	o := New(Config{
		Client:    client,
		Scheduler: testTimings(),
		Logger:    log.New(io.Discard, "", 0),
	})

	if err := o.Start(); err != ErrNotInitialized {
		t.Fatalf("Start before Init = %v, want ErrNotInitialized", err)
	}
	if err := o.Init(nil); err == nil {
		t.Fatal("Init with nil host should fail")
	}

	if err := o.Init(host); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if len(host.listeners) != 1 {
		t.Fatalf("Init should subscribe one listener, got %d", len(host.listeners))
	}
	if err := o.Init(host); err != nil {
		t.Fatalf("Re-Init with the same host should be a no-op, got %v", err)
	}
	if len(host.listeners) != 1 {
		t.Fatalf("Re-Init must not duplicate the subscription, got %d", len(host.listeners))
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start while started should be a no-op, got %v", err)
	}

	waitFor(t, time.Second, "marker", func() bool {
		return o.Markers().Len() == 1
	})

	// Stop preserves markers and caches so restart has no flicker.
	o.Stop()
	if _, ok := o.Snapshot(); ok {
		t.Error("Snapshot should report not-started after Stop")
	}
	if o.Markers().Len() != 1 {
		t.Errorf("Stop must preserve markers, got %d", o.Markers().Len())
	}
	if o.cache.Len() != 1 {
		t.Errorf("Stop must preserve the icon cache, got %d entries", o.cache.Len())
	}

	if err := o.Start(); err != nil {
		t.Fatalf("Restart after Stop failed: %v", err)
	}

	o.Dispose()
	if o.Markers() != nil {
		t.Error("Dispose should release the marker set")
	}
	if len(host.listeners) != 0 {
		t.Errorf("Dispose should unsubscribe, %d listeners remain", len(host.listeners))
	}
	if host.handle(0).state().removed != 1 {
		t.Error("Dispose should remove host markers exactly once")
	}
	if o.cache.Len() != 0 {
		t.Errorf("Dispose should clear the icon cache, got %d entries", o.cache.Len())
	}
	o.Dispose() // idempotent

	if err := o.Start(); err != ErrNotInitialized {
		t.Errorf("Start after Dispose = %v, want ErrNotInitialized", err)
	}
}

// TestRebindDisposesPrevious tests that initializing against a second
// host map tears down the first binding completely.
func TestRebindDisposesPrevious(t *testing.T) {
	srv := newFeedServer()
	defer srv.close()
	srv.set(http.StatusOK, aircraftBody("abc123", 38.03, -78.50, 12000, 90))

	first := newFakeHost(geo.Point{Lat: 38, Lon: -78.5})
	second := newFakeHost(geo.Point{Lat: 40, Lon: -75})
	o := newTestOverlay(t, srv, first)
	defer o.Dispose()

	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, time.Second, "marker on first host", func() bool {
		return first.handleCount() == 1
	})

	if err := o.Init(second); err != nil {
		t.Fatalf("Re-Init failed: %v", err)
	}
	if len(first.listeners) != 0 {
		t.Errorf("Rebind should unsubscribe from the first host, %d remain", len(first.listeners))
	}
	if first.handle(0).state().removed != 1 {
		t.Error("Rebind should remove the first host's markers")
	}
	if len(second.listeners) != 1 {
		t.Errorf("Rebind should subscribe to the second host, got %d", len(second.listeners))
	}

	// Polling does not resume until Start is called again.
	if _, ok := o.Snapshot(); ok {
		t.Error("Rebind should leave the overlay stopped")
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start after rebind failed: %v", err)
	}
	waitFor(t, time.Second, "marker on second host", func() bool {
		return second.handleCount() == 1
	})
}

// TestForwardingBeforeStart tests that control calls are safe no-ops
// before the scheduler exists.
func TestForwardingBeforeStart(t *testing.T) {
	o := New(Config{Logger: log.New(io.Discard, "", 0)})
	o.RequestFetch(ReasonViewport)
	o.InteractionStart()
	o.InteractionEnd()
	o.Stop()
	if _, ok := o.Snapshot(); ok {
		t.Error("Snapshot should report not-started")
	}
}
