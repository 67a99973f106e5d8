package cache_test

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-engine/core/internal/cache"
	"github.com/quanta-engine/core/pkg/types"
)

func testConfig() types.CacheConfig {
	return types.CacheConfig{
		L1MaxEntries: 2,
		Retention: map[types.Timeframe]types.RetentionPolicy{
			types.Timeframe1m: {L1TTL: time.Hour, L2TTL: 24 * time.Hour},
		},
	}
}

func TestCacheGetMiss(t *testing.T) {
	c := cache.New(testConfig(), nil, zap.NewNop())
	if _, ok := c.Get(cache.Key{Symbol: "BTCUSDT", Timeframe: types.Timeframe1m, Kind: "ticker"}); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCachePutThenGet(t *testing.T) {
	c := cache.New(testConfig(), nil, zap.NewNop())
	key := cache.Key{Symbol: "BTCUSDT", Timeframe: types.Timeframe1m, Kind: "ticker"}

	c.Put(key, 42)

	v, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after put")
	}
	if v.(int) != 42 {
		t.Errorf("got %v, want 42", v)
	}

	stats := c.Stats()
	if stats.L1.Hits != 1 {
		t.Errorf("L1 hits = %d, want 1", stats.L1.Hits)
	}
}

func TestCacheL1EvictionPromotesFromL2(t *testing.T) {
	c := cache.New(testConfig(), nil, zap.NewNop())

	keyA := cache.Key{Symbol: "AAA", Timeframe: types.Timeframe1m, Kind: "ticker"}
	keyB := cache.Key{Symbol: "BBB", Timeframe: types.Timeframe1m, Kind: "ticker"}
	keyC := cache.Key{Symbol: "CCC", Timeframe: types.Timeframe1m, Kind: "ticker"}

	c.Put(keyA, "a")
	c.Put(keyB, "b")
	c.Put(keyC, "c") // L1 capacity is 2, evicts the oldest (keyA) from L1 only

	if _, ok := c.Get(keyA); !ok {
		t.Fatal("expected keyA to still be served from L2 after L1 eviction")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := cache.New(testConfig(), nil, zap.NewNop())
	key := cache.Key{Symbol: "BTCUSDT", Timeframe: types.Timeframe1m, Kind: "ticker"}

	c.Put(key, 1)
	c.Invalidate(key)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestFreshOHLCV(t *testing.T) {
	now := time.Now()
	fresh := types.Candle{CloseTime: now.Add(-30 * time.Second).UnixMilli()}
	stale := types.Candle{CloseTime: now.Add(-10 * time.Minute).UnixMilli()}

	if !cache.FreshOHLCV(fresh, types.Timeframe1m, now) {
		t.Error("expected fresh candle to be fresh")
	}
	if cache.FreshOHLCV(stale, types.Timeframe1m, now) {
		t.Error("expected stale candle to be stale")
	}
}
