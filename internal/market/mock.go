package market

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"
	"time"

	"strategy-core/internal/events"
	"strategy-core/pkg/cache"
)

// MockFeed generates synthetic one-minute observations for local development.
// History is backfilled into Store so strategies can seed immediately.
type MockFeed struct {
	Store      *BarStore
	Prices     *cache.ShardedPriceCache
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64 // max relative move per bar, e.g. 0.002
	Interval   time.Duration
	Backfill   time.Duration
	StaleAfter time.Duration // defaults to ten intervals

	rng  *rand.Rand
	last map[string]float64
}

func (m *MockFeed) defaults() {
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.002
	}
	if m.Interval == 0 {
		m.Interval = time.Minute
	}
	if m.StaleAfter == 0 {
		m.StaleAfter = 10 * m.Interval
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m.last == nil {
		m.last = make(map[string]float64)
	}
}

// Seed fills the store with Backfill worth of one-minute bars ending at now.
func (m *MockFeed) Seed(now time.Time) {
	m.defaults()
	if m.Store == nil || m.Backfill <= 0 {
		return
	}
	start := now.Add(-m.Backfill).Truncate(time.Minute)
	for _, sym := range m.Symbols {
		price := m.startFor(sym)
		n := int(m.Backfill / time.Minute)
		bars := make([]Bar, 0, n)
		for t := start; !t.After(now); t = t.Add(time.Minute) {
			price = m.walk(price)
			bars = append(bars, Bar{Time: t, Close: price})
		}
		m.Store.Load(sym, bars)
		m.last[sym] = price
		if m.Prices != nil {
			m.Prices.Set(sym, price, now)
		}
	}
}

// Start publishes a new observation per symbol every Interval.
func (m *MockFeed) Start(ctx context.Context) {
	m.defaults()
	if m.Store == nil {
		log.Println("mock feed: store not set")
		return
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				m.Tick(now)
				evictStale(m.Prices, m.StaleAfter)
			}
		}
	}()
}

// Tick advances every symbol one random-walk step at now.
func (m *MockFeed) Tick(now time.Time) {
	m.defaults()
	for _, sym := range m.Symbols {
		price, ok := m.last[sym]
		if !ok {
			price = m.startFor(sym)
		}
		price = m.walk(price)
		m.last[sym] = price
		m.Store.Append(sym, Bar{Time: now, Close: price})
		if m.Prices != nil {
			m.Prices.Set(sym, price, now)
		}
		if m.Bus != nil {
			m.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: sym, Price: price, Time: now})
		}
	}
}

// startFor spreads symbols across price levels so charts are distinguishable.
func (m *MockFeed) startFor(sym string) float64 {
	h := fnv.New32a()
	h.Write([]byte(sym))
	return m.StartPrice * (1 + float64(h.Sum32()%100)/100)
}

func (m *MockFeed) walk(price float64) float64 {
	// simple multiplicative random walk
	next := price * (1 + (m.rng.Float64()*2-1)*m.Step)
	if next <= 0 {
		return price
	}
	return next
}
