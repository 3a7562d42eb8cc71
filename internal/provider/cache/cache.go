package cache

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"finref/internal/provider"
)

// DefaultCapacity bounds a cache created without WithCapacity.
const DefaultCapacity = 1024

// Loader produces a fresh value for a key.
type Loader[V any] func(ctx context.Context) (V, error)

// entry stores a cached value with its expiry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Stats are cumulative counters for diagnostics.
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Loads        int64 `json:"loads"`
	LoadFailures int64 `json:"load_failures"`
}

type options struct {
	capacity    int
	now         func() time.Time
	log         zerolog.Logger
	loadTimeout time.Duration
}

// Option configures a Cache.
type Option func(*options)

// WithCapacity caps the number of keys; the least recently used key is evicted first.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLoadTimeout bounds each shared load, retries included. Zero means no
// bound beyond what the loader applies itself.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) { o.loadTimeout = d }
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// Cache is a keyed store with a fixed TTL and at most one in-flight load per key.
// Loads for different keys run independently.
type Cache[V any] struct {
	name        string
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger

	items *lru.Cache[string, entry[V]]
	sf    singleflight.Group

	hits, misses, loads, failures atomic.Int64
}

// New creates a cache named name whose entries live for ttl.
func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{capacity: DefaultCapacity, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}
	// lru.New only fails for a non-positive size.
	items, _ := lru.New[string, entry[V]](o.capacity)
	return &Cache[V]{
		name:        name,
		ttl:         ttl,
		loadTimeout: o.loadTimeout,
		now:         o.now,
		log:         o.log.With().Str("cache", name).Logger(),
		items:       items,
	}
}

func (c *Cache[V]) Name() string { return c.name }

func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Get returns the live value for key. An expired entry is a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	e, ok := c.items.Get(key)
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// LoadOrFetch returns the live value for key, or runs loader to obtain one.
// Concurrent callers for the same key share a single loader call and its
// outcome. A failed load leaves the cache untouched and is reported as
// provider.ErrSourceUnavailable; the next call retries. A caller whose ctx
// ends first gets ctx.Err() while the shared load carries on.
func (c *Cache[V]) LoadOrFetch(ctx context.Context, key string, loader Loader[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.sf.DoChan(key, func() (any, error) {
		// a flight that finished between Get and Do may already have stored it
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.loads.Add(1)
		start := c.now()
		c.log.Debug().Str("key", key).Msg("cache miss, loading")

		// one caller giving up must not fail the others sharing this load
		lctx := context.WithoutCancel(ctx)
		if c.loadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(lctx, c.loadTimeout)
			defer cancel()
		}
		v, err := loader(lctx)
		if err != nil {
			c.failures.Add(1)
			c.log.Debug().Err(err).Str("key", key).Dur("took", c.now().Sub(start)).Msg("load failed")
			return nil, err
		}
		c.items.Add(key, entry[V]{value: v, expiresAt: c.now().Add(c.ttl)})
		c.log.Debug().Str("key", key).Dur("took", c.now().Sub(start)).Msg("loaded")
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, provider.Unavailable(c.name, res.Err)
		}
		if res.Shared {
			c.log.Trace().Str("key", key).Msg("shared in-flight load")
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Invalidate drops key so the next LoadOrFetch reloads it.
func (c *Cache[V]) Invalidate(key string) { c.items.Remove(key) }

// Purge drops every entry.
func (c *Cache[V]) Purge() { c.items.Purge() }

// Len counts stored entries, including expired ones not yet replaced.
func (c *Cache[V]) Len() int { return c.items.Len() }

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Loads:        c.loads.Load(),
		LoadFailures: c.failures.Load(),
	}
}
