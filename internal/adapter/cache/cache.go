// Package cache decorates a zarr.Store with an in-memory LRU so that
// coordinate chunks and repeated sweep reads are fetched once.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/zarr"
)

// Store wraps a zarr.Store with an LRU cache bounded by entry count.
// Concurrent misses for the same key share one fetch.
type Store struct {
	inner   zarr.Store
	cache   *lruCache
	group   singleflight.Group
	metrics *observability.Metrics
}

// New creates a cache decorator around a store.
func New(inner zarr.Store, maxEntries int, metrics *observability.Metrics) *Store {
	return &Store{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Get returns the cached value for key or reads it from the inner store.
// Missing keys are cached too; other errors are not.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if e, ok := s.cache.get(key); ok {
		s.metrics.ChunkCache.WithLabelValues("hit").Inc()
		if e.missing {
			return nil, fmt.Errorf("%s: %w", key, zarr.ErrKeyNotFound)
		}
		return e.value, nil
	}
	s.metrics.ChunkCache.WithLabelValues("miss").Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		b, err := s.inner.Get(ctx, key)
		switch {
		case err == nil:
			s.cache.put(key, cached{value: b})
		case zarr.IsNotFound(err):
			s.cache.put(key, cached{missing: true})
		}
		return b, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached entries.
func (s *Store) Len() int { return s.cache.len() }

type cached struct {
	value   []byte
	missing bool
}

// lruCache is a simple thread-safe LRU cache of store values.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value cached
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cached{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value cached) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries <= 0 {
		return
	}
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
