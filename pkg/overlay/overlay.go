// Package overlay keeps a live set of aircraft markers synchronized
// with a panning/zooming host map. It polls a public position feed on
// a strict single-flight schedule, converts untrusted rows into
// renderable markers, and evicts markers that go stale or drift out
// of the search area.
package overlay

import (
	"errors"
	"log"
	"sync"

	"github.com/unklstewy/sky-overlay/pkg/feed"
	"github.com/unklstewy/sky-overlay/pkg/icon"
)

// Config configures an Overlay. Every field has a usable default;
// the zero value polls the default public feed.
type Config struct {
	// Endpoint overrides the feed URL (default: feed.DefaultEndpoint)
	Endpoint string

	// EmergencyStyling forces emergency-squawk aircraft to red
	EmergencyStyling bool

	// OutlineColor and OutlineWidth style the icon stroke
	OutlineColor string
	OutlineWidth int

	// Lookup is the optional external shape-descriptor collaborator
	Lookup icon.DescriptorLookup

	// Catalog overrides the built-in shape catalog
	Catalog map[string]icon.Shape

	// Render rasterizes icons for the host map's renderer
	Render icon.RenderFunc

	// Scheduler overrides the fetch timing knobs
	Scheduler SchedulerConfig

	// Logger receives failure reports (default: log.Default())
	Logger *log.Logger

	// Client overrides the feed client; tests use this to disable
	// rate limiting
	Client *feed.Client
}

type lifecycleState int

const (
	stateUninitialized lifecycleState = iota
	stateInitialized
	stateStarted
	stateStopped
	stateDisposed
)

// ErrNotInitialized is returned by Start before Init has bound a
// host map. This is the one misuse that surfaces synchronously; all
// runtime failures are logged and absorbed by the scheduler.
var ErrNotInitialized = errors.New("overlay: not initialized with a host map")

// Overlay is the lifecycle façade. One Overlay binds to one host map
// at a time; re-initializing against a different map fully tears down
// and recreates the per-binding state.
type Overlay struct {
	mu      sync.Mutex
	cfg     Config
	logger  *log.Logger
	client  *feed.Client
	encoder *icon.Encoder
	cache   *icon.Cache

	host    HostMap
	markers *Markers
	sched   *scheduler
	state   lifecycleState
}

// New creates an overlay with the given configuration. No network or
// map activity happens until Init and Start.
func New(cfg Config) *Overlay {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	client := cfg.Client
	if client == nil {
		client = feed.NewClient(cfg.Endpoint)
	}
	encoder := icon.NewEncoder(icon.Config{
		Lookup:           cfg.Lookup,
		Catalog:          cfg.Catalog,
		EmergencyStyling: cfg.EmergencyStyling,
		OutlineColor:     cfg.OutlineColor,
		OutlineWidth:     cfg.OutlineWidth,
	})
	return &Overlay{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		encoder: encoder,
		cache:   icon.NewCache(cfg.Render),
	}
}

// Init binds the overlay to a host map and subscribes to its pan/zoom
// events. Binding to a different map first disposes the previous
// binding completely; re-binding the same map is a no-op.
func (o *Overlay) Init(host HostMap) error {
	if host == nil {
		return errors.New("overlay: host map is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.host == host && o.state != stateDisposed {
		return nil
	}
	if o.host != nil {
		o.disposeLocked()
	}

	o.host = host
	o.markers = NewMarkers(host, o.cache)
	o.state = stateInitialized
	host.Subscribe(o)
	return nil
}

// Start begins polling. Idempotent while started; restarting after
// Stop resumes with the preserved markers and caches so there is no
// visual flicker.
func (o *Overlay) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case stateUninitialized, stateDisposed:
		return ErrNotInitialized
	case stateStarted:
		return nil
	}

	o.sched = newScheduler(o.cfg.Scheduler, o.client, o.host, o.markers, o.encoder, o.logger)
	o.sched.start()
	o.state = stateStarted
	return nil
}

// Stop cancels timers and any in-flight request but preserves marker
// state and caches.
func (o *Overlay) Stop() {
	o.mu.Lock()
	sched := o.sched
	if o.state == stateStarted {
		o.sched = nil
		o.state = stateStopped
	}
	o.mu.Unlock()

	if sched != nil {
		sched.stop()
	}
}

// Dispose stops polling, removes the event subscription, destroys all
// markers, and clears all caches. Idempotent.
func (o *Overlay) Dispose() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disposeLocked()
}

func (o *Overlay) disposeLocked() {
	if o.state == stateDisposed {
		return
	}
	if o.sched != nil {
		o.sched.stop()
		o.sched = nil
	}
	if o.host != nil {
		o.host.Unsubscribe(o)
		o.host = nil
	}
	if o.markers != nil {
		o.markers.Clear()
		o.markers = nil
	}
	o.cache.Clear()
	o.state = stateDisposed
}

// RequestFetch asks the scheduler for a fetch cycle. No-op unless
// started.
func (o *Overlay) RequestFetch(reason FetchReason) {
	if s := o.scheduler(); s != nil {
		s.requestFetchAsync(reason)
	}
}

// InteractionStart implements ViewListener.
func (o *Overlay) InteractionStart() {
	if s := o.scheduler(); s != nil {
		s.interactionStart()
	}
}

// InteractionEnd implements ViewListener.
func (o *Overlay) InteractionEnd() {
	if s := o.scheduler(); s != nil {
		s.interactionEnd()
	}
}

// Markers exposes the live marker set for rendering. Nil before Init
// and after Dispose.
func (o *Overlay) Markers() *Markers {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.markers
}

// Snapshot returns the scheduler's current state, ok=false when not
// started.
func (o *Overlay) Snapshot() (Snapshot, bool) {
	s := o.scheduler()
	if s == nil {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

func (o *Overlay) scheduler() *scheduler {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sched
}
