package session

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// ErrCacheMiss indicates the requested session is not cached.
var ErrCacheMiss = errors.New("session cache miss")

// Prometheus metrics for session cache operations.
var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snigate_session_cache_hits_total",
			Help: "Total number of session cache hits by tier",
		},
		[]string{"tier"},
	)

	cacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snigate_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	cacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snigate_session_cache_evictions_total",
			Help: "Total number of session cache LRU evictions",
		},
	)

	cacheExternalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snigate_session_cache_external_errors_total",
			Help: "Total number of external session cache errors",
		},
	)
)

// CacheOptions sizes the per-identity session cache.
type CacheOptions struct {
	// MaxEntries bounds the local tier. Zero means the default.
	MaxEntries int

	// TTL is the lifetime of a cached session.
	TTL time.Duration
}

// Cache option defaults.
const (
	DefaultMaxEntries = 20480
	DefaultTTL        = 1 * time.Hour
)

// withDefaults fills unset options.
func (o CacheOptions) withDefaults() CacheOptions {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

// ExternalCache is a distributed second tier shared between endpoints, so a
// session established against one process can resume against another.
type ExternalCache interface {
	// Get returns the cached value or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given lifetime.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// cacheEntry is one local-tier record.
type cacheEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// Cache is the session cache for one identity, namespaced by the identity's
// Common Name. Lookups hit the local LRU tier first and fall through to the
// external tier when configured.
type Cache struct {
	namespace string
	opts      CacheOptions
	external  ExternalCache
	logger    observability.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

// NewCache creates a session cache namespaced by the given Common Name.
// external may be nil for a purely local cache.
func NewCache(namespace string, opts CacheOptions, external ExternalCache, logger observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Cache{
		namespace: namespace,
		opts:      opts.withDefaults(),
		external:  external,
		logger:    logger,
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// Namespace returns the cache namespace.
func (c *Cache) Namespace() string {
	return c.namespace
}

// Len returns the number of local-tier entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Put stores a session in the local tier and, best effort, in the external
// tier. External failures are logged, never surfaced to the handshake path.
func (c *Cache) Put(ctx context.Context, key string, value []byte) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expires = time.Now().Add(c.opts.TTL)
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(&cacheEntry{
			key:     key,
			value:   value,
			expires: time.Now().Add(c.opts.TTL),
		})
		c.entries[key] = elem
		for len(c.entries) > c.opts.MaxEntries {
			c.evictOldest()
		}
	}
	c.mu.Unlock()

	if c.external != nil {
		if err := c.external.Set(ctx, c.externalKey(key), value, c.opts.TTL); err != nil {
			cacheExternalErrors.Inc()
			c.logger.Warn("external session cache set failed",
				observability.String("namespace", c.namespace),
				observability.Error(err),
			)
		}
	}
}

// Get returns a cached session, consulting the local tier then the external
// tier. A value found externally is re-populated locally.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if time.Now().Before(entry.expires) {
			c.lru.MoveToFront(elem)
			value := entry.value
			c.mu.Unlock()
			cacheHitsTotal.WithLabelValues("local").Inc()
			return value, true
		}
		c.removeElement(elem)
	}
	c.mu.Unlock()

	if c.external != nil {
		value, err := c.external.Get(ctx, c.externalKey(key))
		switch {
		case err == nil:
			cacheHitsTotal.WithLabelValues("external").Inc()
			c.putLocal(key, value)
			return value, true
		case !errors.Is(err, ErrCacheMiss):
			cacheExternalErrors.Inc()
			c.logger.Warn("external session cache get failed",
				observability.String("namespace", c.namespace),
				observability.Error(err),
			)
		}
	}

	cacheMissesTotal.Inc()
	return nil, false
}

// Remove drops a session from both tiers.
func (c *Cache) Remove(ctx context.Context, key string) {
	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
	c.mu.Unlock()

	if c.external != nil {
		if err := c.external.Delete(ctx, c.externalKey(key)); err != nil {
			cacheExternalErrors.Inc()
			c.logger.Warn("external session cache delete failed",
				observability.String("namespace", c.namespace),
				observability.Error(err),
			)
		}
	}
}

// putLocal inserts into the local tier only.
func (c *Cache) putLocal(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expires = time.Now().Add(c.opts.TTL)
		c.lru.MoveToFront(elem)
		return
	}
	elem := c.lru.PushFront(&cacheEntry{
		key:     key,
		value:   value,
		expires: time.Now().Add(c.opts.TTL),
	})
	c.entries[key] = elem
	for len(c.entries) > c.opts.MaxEntries {
		c.evictOldest()
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *Cache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	cacheEvictionsTotal.Inc()
}

// removeElement removes one entry. Caller holds the lock.
func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

// externalKey prefixes a session key with the cache namespace.
func (c *Cache) externalKey(key string) string {
	return "snigate:session:" + c.namespace + ":" + key
}
