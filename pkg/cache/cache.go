package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// Options controls entry lifetimes. TTL is the window in which a value is
// served without a refetch; StaleWhileRevalidate is how long past TTL a value
// may still be served while a background refresh runs.
type Options struct {
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	MaxEntries           int
	Clock                clockwork.Clock
}

type MetricsHooks struct {
	OnHit        func(labels map[string]string)
	OnMiss       func(labels map[string]string)
	OnStale      func(labels map[string]string)
	OnStore      func(labels map[string]string)
	OnError      func(labels map[string]string)
	OnInvalidate func(labels map[string]string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
	staleAt   time.Time
	lastUsed  time.Time
}

// Cache is a keyed query cache. Every write path (load, Set, Update,
// Invalidate) bumps a per-key generation; a load only stores its result if
// the generation it started under is still current, so a slow refresh can
// never overwrite a newer optimistic value or invalidation.
type Cache struct {
	mu            sync.RWMutex
	items         map[string]*entry
	order         []string
	gens          map[string]uint64
	loaders       map[string]Loader
	invalidations map[string]int
	opts          Options
	metrics       MetricsHooks
	clock         clockwork.Clock
	sf            singleflight.Group
}

func New(opts Options, hooks MetricsHooks) *Cache {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		items:         make(map[string]*entry),
		order:         make([]string, 0, 16),
		gens:          make(map[string]uint64),
		loaders:       make(map[string]Loader),
		invalidations: make(map[string]int),
		opts:          opts,
		metrics:       hooks,
		clock:         clock,
	}
}

// Loader fetches the authoritative value for key. ok=false with a nil error
// means "no value" and is treated like an error for caching purposes.
type Loader func(ctx context.Context, key string) (interface{}, bool, error)

type loadResult struct {
	val interface{}
	ok  bool
	err error
}

// Get returns the cached value for key, loading it with loader on a miss.
// The loader is remembered so that Invalidate can refetch the key.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, bool, error) {
	now := c.clock.Now()
	c.mu.Lock()
	c.loaders[key] = loader
	gen := c.gens[key]
	if e, ok := c.items[key]; ok {
		if now.Before(e.expiresAt) {
			e.lastUsed = now
			c.mu.Unlock()
			c.fire(c.metrics.OnHit, key)
			return e.value, true, nil
		}
		if now.Before(e.staleAt) {
			e.lastUsed = now
			val := e.value
			c.mu.Unlock()
			c.fire(c.metrics.OnStale, key)
			// Serve stale, refresh once in the background.
			refreshCtx := context.WithoutCancel(ctx)
			go func() {
				_, _ = c.load(refreshCtx, key, gen, loader)
			}()
			return val, true, nil
		}
		// Hard expired: drop and load synchronously
		delete(c.items, key)
		c.removeFromOrder(key)
	}
	c.mu.Unlock()

	c.fire(c.metrics.OnMiss, key)
	res, _ := c.load(ctx, key, gen, loader)
	if !res.ok {
		return nil, false, res.err
	}
	return res.val, true, nil
}

// load runs loader at most once per (key, generation) and stores the result
// if the generation is still current. The bool reports whether it was stored.
func (c *Cache) load(ctx context.Context, key string, gen uint64, loader Loader) (loadResult, bool) {
	type flight struct {
		res    loadResult
		stored bool
	}
	v, _, _ := c.sf.Do(key+"#"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		val, ok, err := loader(ctx, key)
		stored := c.store(key, gen, val, ok)
		return flight{res: loadResult{val: val, ok: ok, err: err}, stored: stored}, nil
	})
	f := v.(flight)
	return f.res, f.stored
}

func (c *Cache) store(key string, gen uint64, val interface{}, ok bool) bool {
	if !ok {
		// Failed loads are never cached.
		c.fire(c.metrics.OnError, key)
		return false
	}
	now := c.clock.Now()
	expiresAt := now.Add(c.opts.TTL)
	e := &entry{value: val, lastUsed: now, expiresAt: expiresAt, staleAt: expiresAt.Add(c.opts.StaleWhileRevalidate)}

	c.mu.Lock()
	if c.gens[key] != gen {
		c.mu.Unlock()
		return false
	}
	c.gens[key]++
	c.put(key, e)
	c.mu.Unlock()

	c.fire(c.metrics.OnStore, key)
	return true
}

// put must be called with c.mu held.
func (c *Cache) put(key string, e *entry) {
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO eviction
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}

// TTL is the freshness window applied to loaded values.
func (c *Cache) TTL() time.Duration {
	return c.opts.TTL
}

// Set stores val as fresh for ttl.
func (c *Cache) Set(key string, val interface{}, ttl time.Duration) {
	now := c.clock.Now()
	e := &entry{value: val, expiresAt: now.Add(ttl), staleAt: now.Add(ttl).Add(c.opts.StaleWhileRevalidate), lastUsed: now}
	c.mu.Lock()
	c.gens[key]++
	c.put(key, e)
	c.mu.Unlock()
}

// Update applies fn to the current value of key (optimistic write). fn
// receives (nil, false) when nothing usable is cached and returns the new
// value plus whether to keep it. Returns true if the cache was changed.
func (c *Cache) Update(key string, fn func(old interface{}, ok bool) (interface{}, bool)) bool {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var old interface{}
	present := false
	if e, ok := c.items[key]; ok && now.Before(e.staleAt) {
		old, present = e.value, true
	}
	next, keep := fn(old, present)
	if !keep {
		return false
	}
	c.gens[key]++
	c.put(key, &entry{
		value:     next,
		expiresAt: now.Add(c.opts.TTL),
		staleAt:   now.Add(c.opts.TTL).Add(c.opts.StaleWhileRevalidate),
		lastUsed:  now,
	})
	return true
}

// Invalidate marks key stale and, when a loader has been registered through
// Get, refetches it synchronously. Any load that was in flight before the
// call is discarded. The returned error is the refetch error, if any.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	now := c.clock.Now()
	c.mu.Lock()
	c.gens[key]++
	gen := c.gens[key]
	c.invalidations[key]++
	if e, ok := c.items[key]; ok && e.expiresAt.After(now) {
		e.expiresAt = now
	}
	loader := c.loaders[key]
	c.mu.Unlock()

	c.fire(c.metrics.OnInvalidate, key)
	if loader == nil {
		return nil
	}
	res, _ := c.load(ctx, key, gen, loader)
	if !res.ok && res.err != nil {
		return res.err
	}
	return nil
}

// Invalidations reports how many times key has been invalidated.
func (c *Cache) Invalidations(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidations[key]
}

// Peek returns a cached value without triggering a load. Stale entries are allowed.
func (c *Cache) Peek(key string) (interface{}, bool) {
	now := c.clock.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if now.After(e.staleAt) {
		return nil, false
	}
	return e.value, true
}

// Delete drops key and forgets its loader.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	c.gens[key]++
	delete(c.items, key)
	delete(c.loaders, key)
	c.removeFromOrder(key)
	c.mu.Unlock()
}

func (c *Cache) fire(hook func(map[string]string), key string) {
	if hook != nil {
		hook(map[string]string{"key": key})
	}
}
