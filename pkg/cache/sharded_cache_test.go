package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSetIgnoresOlderObservations(t *testing.T) {
	c := NewShardedPriceCache()
	now := time.Now()

	c.Set("BTCUSDT", 100, now)
	c.Set("BTCUSDT", 90, now.Add(-time.Minute))

	if p, ok := c.Get("BTCUSDT"); !ok || p != 100 {
		t.Fatalf("price = %v ok=%v, want 100", p, ok)
	}

	c.Set("BTCUSDT", 110, now.Add(time.Minute))
	if p, _ := c.Get("BTCUSDT"); p != 110 {
		t.Fatalf("price = %v, want 110", p)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewShardedPriceCache()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := fmt.Sprintf("SYM%d", i%8)
			c.Set(sym, float64(i), time.Now())
			c.Get(sym)
		}(i)
	}
	wg.Wait()

	if c.Len() != 8 {
		t.Errorf("len = %d, want 8", c.Len())
	}
	if len(c.GetAll()) != 8 {
		t.Errorf("GetAll len = %d, want 8", len(c.GetAll()))
	}
}

func TestCleanup(t *testing.T) {
	c := NewShardedPriceCache()
	c.Set("ETHUSDT", 1, time.Now())
	if removed := c.Cleanup(time.Hour); removed != 0 {
		t.Errorf("removed %d fresh entries", removed)
	}
	if removed := c.Cleanup(-time.Second); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, _, ok := c.GetWithAge("ETHUSDT"); ok {
		t.Error("entry should be gone")
	}
}
