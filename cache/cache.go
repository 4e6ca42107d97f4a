// Package cache provides the weighted, pinnable LRU store of decoded frames.
package cache

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/rasterpipe/core"
)

// EvictReason says why an entry left the cache.
type EvictReason string

const (
	ReasonCapacity    EvictReason = "capacity"
	ReasonInvalidated EvictReason = "invalidated"
	ReasonCleared     EvictReason = "cleared"
)

// EvictFunc observes removals.  It runs after the cache lock is released.
type EvictFunc func(key core.Fingerprint, reason EvictReason)

type entry struct {
	key    core.Fingerprint
	img    *core.DecodedImage
	weight int64
	pins   int
}

// Stats is a point-in-time copy of cache counters.
type Stats struct {
	Entries   int
	Pinned    int
	Weight    int64
	Capacity  int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a least-recently-used store of DecodedImages bounded by total byte
// weight.  Pinned entries are never evicted.  When only pinned entries (or the
// entry being inserted) remain, the cache overshoots its capacity and logs a
// warning instead of refusing the insert.  Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	weight   int64
	ll       *list.List // front is most recently used
	items    map[core.Fingerprint]*list.Element

	group singleflight.Group

	logger  core.Logger
	metrics core.MetricsCollector
	onEvict EvictFunc

	hits, misses, evictions int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a metrics collector fed with the resident weight.
func WithMetrics(m core.MetricsCollector) Option { return func(c *Cache) { c.metrics = m } }

// WithEvictFunc registers an eviction observer.
func WithEvictFunc(fn EvictFunc) Option { return func(c *Cache) { c.onEvict = fn } }

// New returns an empty cache holding at most capacity bytes of unpinned frames.
func New(capacity int64, opts ...Option) *Cache {
	c := &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[core.Fingerprint]*list.Element),
		logger:   core.NopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type removal struct {
	key    core.Fingerprint
	reason EvictReason
}

// Get returns the entry for key and marks it most recently used.
func (c *Cache) Get(key core.Fingerprint) (*core.DecodedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*entry).img, true
}

// GetOrInsert returns the cached entry for key, or runs compute and caches its
// result.  Concurrent calls for the same key share one compute; errors are
// returned to every waiter and not cached.
func (c *Cache) GetOrInsert(key core.Fingerprint, compute func() (*core.DecodedImage, error)) (*core.DecodedImage, bool, error) {
	if img, ok := c.Get(key); ok {
		return img, true, nil
	}
	v, err, _ := c.group.Do(string(key), func() (interface{}, error) {
		// A flight that finished between our miss and Do already inserted it.
		c.mu.Lock()
		if el, ok := c.items[key]; ok {
			c.ll.MoveToFront(el)
			img := el.Value.(*entry).img
			c.mu.Unlock()
			return img, nil
		}
		c.mu.Unlock()

		img, err := compute()
		if err != nil {
			return nil, err
		}
		c.Insert(key, img)
		return img, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*core.DecodedImage), false, nil
}

// Insert stores img under key, replacing any previous entry (pins carry over),
// then evicts least recently used unpinned entries until the weight fits.
// The inserted entry is never evicted by its own insertion.
func (c *Cache) Insert(key core.Fingerprint, img *core.DecodedImage) {
	c.mu.Lock()
	c.insertLocked(key, img)
	removed := c.evictLocked(key)
	c.mu.Unlock()
	c.notify(removed)
}

func (c *Cache) insertLocked(key core.Fingerprint, img *core.DecodedImage) *entry {
	w := img.Weight()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.weight += w - e.weight
		e.img, e.weight = img, w
		c.ll.MoveToFront(el)
		return e
	}
	e := &entry{key: key, img: img, weight: w}
	c.items[key] = c.ll.PushFront(e)
	c.weight += w
	return e
}

// Acquire pins key, inserting img first if the entry was evicted in the
// meantime.  It returns the image now held by the cache.
func (c *Cache) Acquire(key core.Fingerprint, img *core.DecodedImage) *core.DecodedImage {
	c.mu.Lock()
	var e *entry
	if el, ok := c.items[key]; ok {
		e = el.Value.(*entry)
		c.ll.MoveToFront(el)
	} else {
		e = c.insertLocked(key, img)
	}
	e.pins++
	removed := c.evictLocked(key)
	c.mu.Unlock()
	c.notify(removed)
	return e.img
}

// Pin protects key from eviction.  It reports false if key is not cached.
func (c *Cache) Pin(key core.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	el.Value.(*entry).pins++
	return true
}

// Unpin releases one Pin.  When the last pin goes, an eviction pass runs.
func (c *Cache) Unpin(key core.Fingerprint) {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e := el.Value.(*entry)
	if e.pins > 0 {
		e.pins--
	}
	var removed []removal
	if e.pins == 0 {
		removed = c.evictLocked("")
	}
	c.mu.Unlock()
	c.notify(removed)
}

// Invalidate removes key regardless of pins.  It reports whether an entry
// was present.
func (c *Cache) Invalidate(key core.Fingerprint) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		c.removeLocked(el)
	}
	c.mu.Unlock()
	if ok {
		c.notify([]removal{{key: key, reason: ReasonInvalidated}})
	}
	return ok
}

// Clear drops every entry, pinned or not.
func (c *Cache) Clear() {
	c.mu.Lock()
	removed := make([]removal, 0, len(c.items))
	for el := c.ll.Back(); el != nil; el = c.ll.Back() {
		removed = append(removed, removal{key: el.Value.(*entry).key, reason: ReasonCleared})
		c.removeLocked(el)
	}
	c.mu.Unlock()
	c.notify(removed)
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key core.Fingerprint) bool {
	c.mu.Lock()
	_, ok := c.items[key]
	c.mu.Unlock()
	return ok
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Weight returns the total weight of all entries.
func (c *Cache) Weight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Entries:   len(c.items),
		Weight:    c.weight,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	for _, el := range c.items {
		if el.Value.(*entry).pins > 0 {
			s.Pinned++
		}
	}
	return s
}

// ── eviction internals ────────────────────────────────────────────────────────

// evictLocked removes unpinned entries from the LRU end until the weight fits,
// skipping exempt.
func (c *Cache) evictLocked(exempt core.Fingerprint) []removal {
	var removed []removal
	for el := c.ll.Back(); el != nil && c.weight > c.capacity; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.pins == 0 && e.key != exempt {
			c.removeLocked(el)
			c.evictions++
			removed = append(removed, removal{key: e.key, reason: ReasonCapacity})
		}
		el = prev
	}
	if c.weight > c.capacity {
		c.logger.Warn("cache.overcapacity",
			"weight", c.weight,
			"capacity", c.capacity,
			"entries", len(c.items),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordMemory(c.weight)
	}
	return removed
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.weight -= e.weight
}

func (c *Cache) notify(removed []removal) {
	for _, r := range removed {
		c.logger.Debug("cache.evict", "key", string(r.key), "reason", string(r.reason))
		if c.onEvict != nil {
			c.onEvict(r.key, r.reason)
		}
	}
}
