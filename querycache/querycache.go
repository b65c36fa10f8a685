// Package querycache is an in-memory keyed cache for authority query
// results. It subscribes to the tenant binding's invalidation signal and
// drops every entry when the active tenant or the demo isolation
// identifier changes, so no result issued under one scope is ever served
// under another.
package querycache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Invalidator is the slice of the tenant binding the cache consumes.
type Invalidator interface {
	SubscribeInvalidation() (<-chan struct{}, func())
}

// Cache is a bounded LRU of query results keyed by request identity.
// Safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru *lru.Cache[K, V]
	log zerolog.Logger

	mu          sync.Mutex
	unsubscribe func()
	done        chan struct{}
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithLogger sets the cache logger.
func WithLogger[K comparable, V any](log zerolog.Logger) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.log = log
	}
}

// New creates a cache holding at most size entries, purged whenever inv
// fires. Close releases the subscription.
func New[K comparable, V any](size int, inv Invalidator, options ...Option[K, V]) (*Cache[K, V], error) {
	backing, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		lru:  backing,
		log:  zerolog.Nop(),
		done: make(chan struct{}),
	}
	for _, opt := range options {
		opt(c)
	}

	if inv != nil {
		ch, unsubscribe := inv.SubscribeInvalidation()
		c.unsubscribe = unsubscribe
		go c.watch(ch)
	}
	return c, nil
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}

// Close unsubscribes from the invalidation signal and stops the watcher.
// The cache stays usable, it just no longer self-purges.
func (c *Cache[K, V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return
	}
	close(c.done)
	c.done = nil
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Cache[K, V]) watch(ch <-chan struct{}) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ch:
			c.lru.Purge()
			c.log.Debug().Msg("query cache purged on scope change")
		}
	}
}
