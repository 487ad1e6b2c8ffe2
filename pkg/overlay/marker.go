package overlay

import (
	"sync"
	"time"

	"github.com/unklstewy/sky-overlay/pkg/geo"
	"github.com/unklstewy/sky-overlay/pkg/icon"
)

const (
	// StaleAfter is how long an identity may be absent from poll
	// results before its marker is evicted.
	StaleAfter = 60 * time.Second

	// EvictSlackNM is added to the fetch radius before out-of-range
	// eviction, so aircraft sitting on the search boundary do not
	// flicker in and out.
	EvictSlackNM = 5.0
)

// MarkerEntry is the tracked state for one aircraft identity. The
// entry exclusively owns its host-map marker handle; the handle is
// released exactly once, on eviction or disposal.
type MarkerEntry struct {
	// Identity is the stable per-aircraft key
	Identity string

	// Position is the last reported coordinate; always the most
	// recent poll's value, never interpolated
	Position geo.Point

	// LastSeen is the time of the last poll that reported this
	// identity
	LastSeen time.Time

	// IconKey summarizes the currently applied visual encoding
	IconKey string

	// Rotation is the last applied heading-derived rotation in
	// degrees
	Rotation float64

	handle          MarkerHandle
	rotationPending bool
}

// Markers owns the live set of on-map markers keyed by identity. It
// is the single source of truth for what is currently drawn.
//
// All poll-driven mutation happens on the scheduler goroutine; the
// mutex exists for the façade's snapshot reads and disposal.
type Markers struct {
	mu      sync.Mutex
	entries map[string]*MarkerEntry
	cache   *icon.Cache
	host    HostMap
}

// NewMarkers creates an empty marker set bound to a host map and an
// icon cache.
func NewMarkers(host HostMap, cache *icon.Cache) *Markers {
	return &Markers{
		entries: make(map[string]*MarkerEntry),
		cache:   cache,
		host:    host,
	}
}

// Upsert creates or updates the marker for an identity. Position is
// always updated; the icon is re-applied only when the encoding key
// changed and the rotation only when the heading changed, so an
// unchanged aircraft costs no render or transform work.
func (m *Markers) Upsert(identity string, p geo.Point, info icon.Info, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[identity]
	if !ok {
		res := m.cache.Get(info)
		entry = &MarkerEntry{
			Identity: identity,
			Position: p,
			IconKey:  res.Key,
			Rotation: info.Rotation,
		}
		entry.handle = m.host.AddMarker(p, res, info.Rotation)
		if !entry.handle.SetRotation(info.Rotation) {
			entry.rotationPending = true
		}
		m.entries[identity] = entry
		entry.LastSeen = now
		return
	}

	entry.Position = p
	entry.LastSeen = now
	entry.handle.SetPosition(p)

	if key := info.Key(); key != entry.IconKey {
		res := m.cache.Get(info)
		entry.handle.SetIcon(res)
		entry.IconKey = res.Key
	}
	if info.Rotation != entry.Rotation || entry.rotationPending {
		entry.Rotation = info.Rotation
		entry.rotationPending = !entry.handle.SetRotation(info.Rotation)
	}
}

// Evict removes every entry that has not been seen for StaleAfter or
// whose last position lies farther than the context radius plus
// EvictSlackNM from the context center. Each evicted entry's handle
// is released back to the host map. Returns the number evicted.
func (m *Markers) Evict(now time.Time, ref FetchContext) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for identity, entry := range m.entries {
		stale := now.Sub(entry.LastSeen) > StaleAfter
		outOfRange := geo.DistanceNM(ref.Center, entry.Position) > ref.RadiusNM+EvictSlackNM
		if stale || outOfRange {
			entry.handle.Remove()
			delete(m.entries, identity)
			evicted++
		}
	}
	return evicted
}

// ApplyRotations re-applies the stored rotation to every marker.
// Called after map interaction (the projection may have changed) and
// after each poll to retry rotations deferred while a handle was not
// yet attached. Applying a rotation twice is harmless.
func (m *Markers) ApplyRotations() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		if entry.handle.SetRotation(entry.Rotation) {
			entry.rotationPending = false
		} else {
			entry.rotationPending = true
		}
	}
}

// Len returns the number of live markers.
func (m *Markers) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Entries returns a snapshot copy of the live marker state for
// rendering and inspection.
func (m *Markers) Entries() []MarkerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MarkerEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		e := *entry
		e.handle = nil
		out = append(out, e)
	}
	return out
}

// Get returns a copy of one entry by identity.
func (m *Markers) Get(identity string) (MarkerEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[identity]
	if !ok {
		return MarkerEntry{}, false
	}
	e := *entry
	e.handle = nil
	return e, true
}

// Clear destroys every marker and releases all handles. Used on
// disposal; Stop deliberately does not call this so a restart resumes
// without visual flicker.
func (m *Markers) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for identity, entry := range m.entries {
		entry.handle.Remove()
		delete(m.entries, identity)
	}
}
