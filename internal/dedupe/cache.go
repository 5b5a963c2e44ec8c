// ABOUTME: Thread-safe TTL cache remembering the outcome of recently handled requests.
// ABOUTME: Lets the WebSocket handler answer a retried client message without sending it twice.

package dedupe

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// entry stores a remembered value with its insertion time.
type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Cache is a TTL-based, size-limited map from request keys to results.
// Entries are kept in insertion order so eviction of the oldest is O(1).
type Cache[V any] struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // *entry[V], oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// New creates a cache whose entries live for ttl, holding at most maxSize of
// them. A background goroutine sweeps expired entries until Close is called.
func New[V any](ttl time.Duration, maxSize int) *Cache[V] {
	return newCache[V](ttl, maxSize, time.Now)
}

func newCache[V any](ttl time.Duration, maxSize int, now func() time.Time) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[V]{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Key joins parts into a cache key. Use it to scope client-chosen ids by the
// authenticated user so two users can reuse the same id.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Get returns the value remembered for key, if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(elem)
		return zero, false
	}
	return e.value, true
}

// Put remembers value under key, replacing any previous value. When the cache
// is full the oldest entry is evicted.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.storedAt = c.now()
		c.order.MoveToBack(elem)
		return
	}

	for len(c.items) >= c.maxSize {
		c.removeLocked(c.order.Front())
	}

	c.items[key] = c.order.PushBack(&entry[V]{key: key, value: value, storedAt: c.now()})
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// removeLocked drops elem. Must be called with mu held.
func (c *Cache[V]) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	e := c.order.Remove(elem).(*entry[V])
	delete(c.items, e.key)
}

func (c *Cache[V]) sweepLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired entries. Insertion order means it can stop at the
// first live entry.
func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for elem := c.order.Front(); elem != nil; {
		e := elem.Value.(*entry[V])
		if now.Sub(e.storedAt) < c.ttl {
			return
		}
		next := elem.Next()
		c.removeLocked(elem)
		elem = next
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}
