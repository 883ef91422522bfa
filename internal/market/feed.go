package market

import (
	"context"
	"log"
	"time"

	"strategy-core/internal/events"
	"strategy-core/pkg/cache"
	"strategy-core/pkg/market/binance"
)

// Feed streams prices from Binance into the price cache and the event bus.
type Feed struct {
	Client   *binance.Client
	Stream   *binance.StreamClient
	Prices   *cache.ShardedPriceCache
	Bus      *events.Bus
	Symbols  []string
	Interval string
	// PollEvery refreshes symbols whose stream went quiet.
	PollEvery time.Duration
	// StaleAfter evicts cached prices nobody refreshed, such as symbols
	// that left the universe. Defaults to ten poll periods.
	StaleAfter time.Duration
}

// Start begins websocket streaming plus a polling fallback for configured symbols.
func (f *Feed) Start(ctx context.Context) {
	if f.Client == nil || f.Stream == nil || f.Prices == nil {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.Interval == "" {
		f.Interval = string(Minute)
	}
	if f.PollEvery <= 0 {
		f.PollEvery = time.Minute
	}
	if f.StaleAfter <= 0 {
		f.StaleAfter = 10 * f.PollEvery
	}

	for _, sym := range f.Symbols {
		symbol := sym
		ch, stop, err := f.Stream.SubscribeKlines(ctx, symbol, f.Interval)
		if err != nil {
			log.Printf("market feed: ws subscribe %s error: %v", symbol, err)
			continue
		}

		go func() {
			defer stop()
			for k := range ch {
				f.observe(symbol, k.Close, k.OpenAt())
			}
		}()
	}

	// Lightweight polling fallback to avoid gaps.
	go f.poll(ctx)
}

func (f *Feed) observe(symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	f.Prices.Set(symbol, price, at)
	if f.Bus != nil {
		f.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: symbol, Price: price, Time: at})
	}
}

func (f *Feed) poll(ctx context.Context) {
	ticker := time.NewTicker(f.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range f.Symbols {
				if _, age, ok := f.Prices.GetWithAge(sym); ok && age < f.PollEvery {
					continue
				}
				price, err := f.Client.GetPrice(ctx, sym)
				if err != nil {
					log.Printf("market feed poll %s error: %v", sym, err)
					continue
				}
				f.observe(sym, price, time.Now())
			}
			evictStale(f.Prices, f.StaleAfter)
		}
	}
}

// evictStale drops cached prices not refreshed within maxAge. Feeds refresh
// every symbol they serve, so only departed symbols age out.
func evictStale(prices *cache.ShardedPriceCache, maxAge time.Duration) int {
	if prices == nil || maxAge <= 0 {
		return 0
	}
	n := prices.Cleanup(maxAge)
	if n > 0 {
		log.Printf("market feed: evicted %d stale prices", n)
	}
	return n
}
