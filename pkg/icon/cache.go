package icon

import "sync"

// RenderFunc rasterizes one shape into a renderer-specific icon
// handle. The handle is opaque to this package.
type RenderFunc func(info Info) any

// Resource is one immutable cache entry: a rendered icon shared by
// every marker whose current encoding matches the key.
type Resource struct {
	// Key is the composite encoding key this resource was built from
	Key string

	// Handle is the renderer-specific icon object
	Handle any
}

// Cache memoizes rendered icon resources by encoding key. Entries
// are never invalidated except by Clear on full disposal; the key
// space is small and finite in practice, so unbounded growth is
// acceptable for the overlay's lifetime.
type Cache struct {
	mu        sync.Mutex
	render    RenderFunc
	resources map[string]*Resource
	renders   int
}

// NewCache creates an icon cache backed by the given renderer.
func NewCache(render RenderFunc) *Cache {
	return &Cache{
		render:    render,
		resources: make(map[string]*Resource),
	}
}

// Get returns the cached resource for the encoding, rendering it on
// first use.
func (c *Cache) Get(info Info) *Resource {
	key := info.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if res, ok := c.resources[key]; ok {
		return res
	}

	res := &Resource{Key: key}
	if c.render != nil {
		res.Handle = c.render(info)
	}
	c.resources[key] = res
	c.renders++
	return res
}

// Renders returns how many resources have been rasterized. Used to
// verify that re-applying an unchanged encoding does no render work.
func (c *Cache) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}

// Len returns the number of cached resources.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resources)
}

// Clear drops every cached resource. Called only on overlay disposal.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources = make(map[string]*Resource)
}
