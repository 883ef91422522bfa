package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// ShardedPriceCache holds the latest price per symbol, sharded to keep the
// websocket writers and the strategy readers off a single lock.
type ShardedPriceCache struct {
	shards [numShards]*priceShard
}

type priceShard struct {
	mu    sync.RWMutex
	items map[string]PriceEntry
}

// PriceEntry is one cached observation.
type PriceEntry struct {
	Price     float64   `json:"price"`
	MarketAt  time.Time `json:"market_at"` // exchange event time
	UpdatedAt time.Time `json:"updated_at"`
}

// NewShardedPriceCache creates a new sharded cache.
func NewShardedPriceCache() *ShardedPriceCache {
	c := &ShardedPriceCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &priceShard{
			items: make(map[string]PriceEntry),
		}
	}
	return c
}

// getShard returns the shard for the given key.
func (c *ShardedPriceCache) getShard(key string) *priceShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a price for a symbol. Observations older than the cached one
// are ignored so out-of-order stream and poll updates cannot regress it.
func (c *ShardedPriceCache) Set(symbol string, price float64, marketAt time.Time) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if cur, ok := shard.items[symbol]; ok && marketAt.Before(cur.MarketAt) {
		return
	}
	shard.items[symbol] = PriceEntry{
		Price:     price,
		MarketAt:  marketAt,
		UpdatedAt: time.Now(),
	}
}

// Get retrieves a price for a symbol.
func (c *ShardedPriceCache) Get(symbol string) (float64, bool) {
	e, ok := c.Entry(symbol)
	return e.Price, ok
}

// Entry returns the full cached observation.
func (c *ShardedPriceCache) Entry(symbol string) (PriceEntry, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	return entry, ok
}

// GetWithAge retrieves price and its age.
func (c *ShardedPriceCache) GetWithAge(symbol string) (float64, time.Duration, bool) {
	e, ok := c.Entry(symbol)
	if !ok {
		return 0, 0, false
	}
	return e.Price, time.Since(e.UpdatedAt), true
}

// Len returns total items across all shards.
func (c *ShardedPriceCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than maxAge.
func (c *ShardedPriceCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym, entry := range shard.items {
			if entry.UpdatedAt.Before(cutoff) {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// GetAll returns all cached prices.
func (c *ShardedPriceCache) GetAll() map[string]float64 {
	result := make(map[string]float64)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for sym, entry := range shard.items {
			result[sym] = entry.Price
		}
		shard.mu.RUnlock()
	}
	return result
}
