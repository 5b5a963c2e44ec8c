// ABOUTME: Tests for the dedupe cache used to answer retried client messages.
// ABOUTME: Validates TTL expiration, size limits, eviction order, sweeping and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newCache[string](ttl, size, clock.Now), clock
}

func TestCache_GetMissing(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)
	defer cache.Close()

	_, ok := cache.Get("never-seen")
	assert.False(t, ok)
}

func TestCache_PutThenGet(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Put("k", "ack-1")
	v, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "ack-1", v)
}

func TestCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Put("k", "ack-1")
	clock.Advance(59 * time.Second)
	_, ok := cache.Get("k")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "expired entries are dropped on read")
}

func TestCache_EvictsOldestWhenFull(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 3)
	defer cache.Close()

	cache.Put("a", "1")
	cache.Put("b", "2")
	cache.Put("c", "3")
	cache.Put("a", "1b") // refresh moves a to the back
	cache.Put("d", "4")  // evicts b

	_, ok := cache.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, "key %s", k)
	}
	v, _ := cache.Get("a")
	assert.Equal(t, "1b", v)
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)
	defer cache.Close()

	cache.Put("old", "1")
	clock.Advance(45 * time.Second)
	cache.Put("new", "2")
	clock.Advance(30 * time.Second)

	cache.sweep()

	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("new")
	assert.True(t, ok)
}

func TestKey_ScopesByPart(t *testing.T) {
	assert.NotEqual(t, Key("alice", "msg-1"), Key("bob", "msg-1"))
	assert.NotEqual(t, Key("a", "bc"), Key("ab", "c"))
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New[int](time.Minute, 10)
	cache.Close()
	cache.Close()
}

func TestCache_Concurrency(t *testing.T) {
	cache := New[int](time.Minute, 100)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d", (i*100+j)%150)
				cache.Put(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 100)
}
