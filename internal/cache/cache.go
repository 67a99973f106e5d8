// Package cache implements the multi-tier market data cache: an in-process
// L1 (LRU, fixed capacity), a larger longer-lived in-process L2, and an
// optional external L3 tier. Lookups promote hits upward; writes fan out to
// every tier whose retention policy covers the entry's timeframe.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/pkg/types"
)

// Key identifies one cached entry: a symbol/timeframe pair plus a kind tag
// (e.g. "ohlcv", "indicators") so unrelated payloads never collide.
type Key struct {
	Symbol    string
	Timeframe types.Timeframe
	Kind      string
}

// ExternalStore is the L3 seam: an optional durable tier. NullStore
// satisfies it as a no-op when no external store is wired.
type ExternalStore interface {
	Get(key Key) (interface{}, bool)
	Put(key Key, value interface{}, ttl time.Duration) error
}

// NullStore is a no-op ExternalStore used when L3 is not configured.
type NullStore struct{}

func (NullStore) Get(Key) (interface{}, bool)              { return nil, false }
func (NullStore) Put(Key, interface{}, time.Duration) error { return nil }

// TierStats reports hit/miss/eviction counters for one tier.
type TierStats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats summarizes all three tiers.
type Stats struct {
	L1 TierStats
	L2 TierStats
	L3 TierStats
}

type entry struct {
	key        Key
	value      interface{}
	expiresAt  time.Time
	listElem   *list.Element
}

// lruTier is a fixed-capacity LRU with per-entry TTL, used for L1 and L2.
type lruTier struct {
	mu        sync.Mutex
	capacity  int
	items     map[Key]*entry
	order     *list.List
	hits      int64
	misses    int64
	evictions int64
}

func newLRUTier(capacity int) *lruTier {
	return &lruTier{
		capacity: capacity,
		items:    make(map[Key]*entry),
		order:    list.New(),
	}
}

func (t *lruTier) get(key Key, now time.Time) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[key]
	if !ok {
		t.misses++
		return nil, false
	}
	if now.After(e.expiresAt) {
		t.removeLocked(e)
		t.misses++
		return nil, false
	}

	t.order.MoveToFront(e.listElem)
	t.hits++
	return e.value, true
}

func (t *lruTier) put(key Key, value interface{}, ttl time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.items[key]; ok {
		existing.value = value
		existing.expiresAt = now.Add(ttl)
		t.order.MoveToFront(existing.listElem)
		return
	}

	if t.capacity > 0 && len(t.items) >= t.capacity {
		t.evictOldestLocked()
	}

	e := &entry{key: key, value: value, expiresAt: now.Add(ttl)}
	e.listElem = t.order.PushFront(e)
	t.items[key] = e
}

func (t *lruTier) invalidate(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.items[key]; ok {
		t.removeLocked(e)
	}
}

func (t *lruTier) evictOldestLocked() {
	oldest := t.order.Back()
	if oldest == nil {
		return
	}
	t.removeLocked(oldest.Value.(*entry))
	t.evictions++
}

func (t *lruTier) removeLocked(e *entry) {
	t.order.Remove(e.listElem)
	delete(t.items, e.key)
}

func (t *lruTier) stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TierStats{
		Size:      len(t.items),
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
	}
}

// Cache is the three-tier market data cache.
type Cache struct {
	l1        *lruTier
	l2        *lruTier
	l3        ExternalStore
	l3Hits    int64
	l3Misses  int64
	retention map[types.Timeframe]types.RetentionPolicy
	logger    *zap.Logger
	mu        sync.Mutex
}

// New constructs a Cache from config. If external is nil, L3 is a NullStore.
func New(cfg types.CacheConfig, external ExternalStore, logger *zap.Logger) *Cache {
	if external == nil {
		external = NullStore{}
	}
	return &Cache{
		l1:        newLRUTier(cfg.L1MaxEntries),
		l2:        newLRUTier(0), // L2 is unbounded by entry count, bounded by TTL
		l3:        external,
		retention: cfg.Retention,
		logger:    logger,
	}
}

// Get looks up key in L1, then L2, then L3, promoting hits upward.
func (c *Cache) Get(key Key) (interface{}, bool) {
	now := time.Now()

	if v, ok := c.l1.get(key, now); ok {
		return v, true
	}

	if v, ok := c.l2.get(key, now); ok {
		c.promoteToL1(key, v)
		return v, true
	}

	if v, ok := c.l3.Get(key); ok {
		c.mu.Lock()
		c.l3Hits++
		c.mu.Unlock()
		c.promoteToL1(key, v)
		c.promoteToL2(key, v)
		return v, true
	}

	c.mu.Lock()
	c.l3Misses++
	c.mu.Unlock()
	return nil, false
}

func (c *Cache) promoteToL1(key Key, value interface{}) {
	ttl := c.retentionFor(key).L1TTL
	c.l1.put(key, value, ttl, time.Now())
}

func (c *Cache) promoteToL2(key Key, value interface{}) {
	ttl := c.retentionFor(key).L2TTL
	c.l2.put(key, value, ttl, time.Now())
}

func (c *Cache) retentionFor(key Key) types.RetentionPolicy {
	if p, ok := c.retention[key.Timeframe]; ok {
		return p
	}
	return types.RetentionPolicy{L1TTL: time.Hour, L2TTL: 24 * time.Hour}
}

// Put writes through to L1, L2 and L3 using the key's timeframe retention
// policy, or a 1h/24h default when the timeframe has none configured.
func (c *Cache) Put(key Key, value interface{}) {
	policy := c.retentionFor(key)
	now := time.Now()

	c.l1.put(key, value, policy.L1TTL, now)
	c.l2.put(key, value, policy.L2TTL, now)
	if err := c.l3.Put(key, value, policy.L2TTL); err != nil {
		c.logger.Warn("L3 cache write failed", zap.Error(err))
	}
}

// Invalidate removes key from every in-process tier.
func (c *Cache) Invalidate(key Key) {
	c.l1.invalidate(key)
	c.l2.invalidate(key)
}

// Stats reports per-tier size, hits, misses and evictions.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	l3 := TierStats{Hits: c.l3Hits, Misses: c.l3Misses}
	c.mu.Unlock()

	return Stats{
		L1: c.l1.stats(),
		L2: c.l2.stats(),
		L3: l3,
	}
}

// FreshOHLCV reports whether the most recent candle's close time is still
// within the timeframe's duration of now — the validity rule for OHLCV
// entries, which must be checked even when the TTL has not yet expired.
func FreshOHLCV(lastCandle types.Candle, timeframe types.Timeframe, now time.Time) bool {
	closeTime := time.UnixMilli(lastCandle.CloseTime)
	return now.Sub(closeTime) < timeframe.Duration()
}
