// Package resultcache keeps recently computed handler replies so duplicate
// deliveries and repeated identical requests skip the handler entirely.
package resultcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// sweepInterval paces the background expiry sweep.
const sweepInterval = time.Minute

type entry struct {
	fingerprint string
	value       interface{}
	storedAt    time.Time
	ttl         time.Duration
}

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// Cache is a bounded TTL cache with LRU eviction. Expired entries read as
// misses and are removed lazily or by the background sweep. A capacity at
// or below zero disables storage entirely; requests still coalesce.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*list.Element
	order     *list.List
	capacity  int
	staticTTL time.Duration
	provider  SettingsProvider
	nowFn     func() time.Time

	group singleflight.Group

	stop      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Cache with default dependencies when nil and starts the
// expiry sweep. Callers own the cache and must Close it.
func New(capacity int, staticTTL time.Duration, provider SettingsProvider, nowFn func() time.Time) *Cache {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	c := &Cache{
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		capacity:  capacity,
		staticTTL: staticTTL,
		provider:  provider,
		nowFn:     nowFn,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.runSweeper()
	return c
}

// EffectiveTTL returns the entry lifetime currently in force.
func (c *Cache) EffectiveTTL() time.Duration {
	if c == nil {
		return 0
	}
	ttl := c.staticTTL
	if cfg := c.provider(); cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}
	return ttl
}

// Get returns the cached value for the fingerprint. An expired entry is a
// miss and gets dropped on the spot; a hit refreshes LRU order.
func (c *Cache) Get(fingerprint string) (interface{}, bool) {
	if c == nil || fingerprint == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	cached := element.Value.(*entry)
	if c.expired(cached, c.nowFn()) {
		c.removeElement(element)
		return nil, false
	}
	c.order.MoveToFront(element)
	return cached.value, true
}

// Put stores the value under the fingerprint with the effective TTL. When
// the cache is full the least recently used entry makes room. A TTL at or
// below zero disables storage.
func (c *Cache) Put(fingerprint string, value interface{}) {
	if c == nil || fingerprint == "" || c.capacity <= 0 {
		return
	}
	ttl := c.EffectiveTTL()
	if ttl <= 0 {
		return
	}
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[fingerprint]; ok {
		cached := element.Value.(*entry)
		cached.value = value
		cached.storedAt = now
		cached.ttl = ttl
		c.order.MoveToFront(element)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.entries[fingerprint] = c.order.PushFront(&entry{
		fingerprint: fingerprint,
		value:       value,
		storedAt:    now,
		ttl:         ttl,
	})
}

// Do returns the cached value or computes it, collapsing concurrent calls
// for one fingerprint into a single fn invocation. Followers share the
// leader's result and report shared=true. Errors are returned as-is and
// never stored.
func (c *Cache) Do(ctx context.Context, fingerprint string, fn func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	if c == nil || fingerprint == "" {
		value, errCompute := fn(ctx)
		return value, false, errCompute
	}
	if value, ok := c.Get(fingerprint); ok {
		return value, true, nil
	}
	value, errDo, shared := c.group.Do(fingerprint, func() (interface{}, error) {
		// A winner may have stored the result between our miss and
		// joining the flight.
		if cached, ok := c.Get(fingerprint); ok {
			return cached, nil
		}
		computed, errCompute := fn(ctx)
		if errCompute != nil {
			return nil, errCompute
		}
		c.Put(fingerprint, computed)
		return computed, nil
	})
	if errDo != nil {
		return nil, false, errDo
	}
	return value, shared, nil
}

// Remove drops the fingerprint if present.
func (c *Cache) Remove(fingerprint string) {
	if c == nil || fingerprint == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[fingerprint]; ok {
		c.removeElement(element)
	}
}

// SweepExpired removes all expired entries and returns how many were dropped.
func (c *Cache) SweepExpired() int {
	if c == nil {
		return 0
	}
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for element := c.order.Back(); element != nil; {
		prev := element.Prev()
		if c.expired(element.Value.(*entry), now) {
			c.removeElement(element)
			removed++
		}
		element = prev
	}
	return removed
}

// Len reports how many entries are stored, expired ones included until a
// sweep or lookup drops them.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the background sweep. The cache stays usable afterwards.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Cache) runSweeper() {
	defer close(c.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if removed := c.SweepExpired(); removed > 0 {
				log.Debugf("result cache: swept %d expired entries", removed)
			}
		}
	}
}

func (c *Cache) expired(cached *entry, now time.Time) bool {
	return now.Sub(cached.storedAt) >= cached.ttl
}

// removeElement must run with c.mu held.
func (c *Cache) removeElement(element *list.Element) {
	c.order.Remove(element)
	delete(c.entries, element.Value.(*entry).fingerprint)
}
