package market

import (
	"context"
	"time"

	"strategy-core/pkg/cache"
	"strategy-core/pkg/market/binance"
)

// BinanceProvider serves history from Binance REST klines and the current
// price from the stream-fed cache, falling back to the ticker endpoint.
type BinanceProvider struct {
	client *binance.Client
	prices *cache.ShardedPriceCache
	clock  Clock
	maxAge time.Duration
}

// NewBinanceProvider wires the REST client and price cache. Cached prices
// older than maxAge are refreshed over REST.
func NewBinanceProvider(client *binance.Client, prices *cache.ShardedPriceCache, clock Clock, maxAge time.Duration) *BinanceProvider {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &BinanceProvider{client: client, prices: prices, clock: clock, maxAge: maxAge}
}

// History fetches count+1 bars so the in-progress one can be dropped, paging
// backwards when the request exceeds one page.
func (p *BinanceProvider) History(ctx context.Context, symbol string, count int, freq Frequency) ([]float64, error) {
	if count <= 0 {
		return nil, unavailable(symbol, "count %d", count)
	}
	if freq.Duration() == 0 {
		return nil, unavailable(symbol, "unsupported frequency %q", freq)
	}

	want := count + 1
	var bars []binance.Kline
	var end int64
	for len(bars) < want {
		page := want - len(bars)
		if page > binance.MaxKlineLimit {
			page = binance.MaxKlineLimit
		}
		klines, err := p.client.GetKlines(ctx, symbol, string(freq), page, 0, end)
		if err != nil {
			return nil, unavailable(symbol, "klines: %v", err)
		}
		if len(klines) == 0 {
			break
		}
		bars = append(klines, bars...)
		end = klines[0].OpenTime - 1
		if len(klines) < page {
			break
		}
	}

	now := p.clock.Now()
	closes := make([]float64, 0, len(bars))
	for _, k := range bars {
		if k.Complete(now) {
			closes = append(closes, k.Close)
		}
	}
	if len(closes) < count {
		return nil, unavailable(symbol, "have %d completed %s bars, need %d", len(closes), freq, count)
	}
	return closes[len(closes)-count:], nil
}

// Current implements HistoryProvider.
func (p *BinanceProvider) Current(ctx context.Context, symbol string) (float64, error) {
	if p.prices != nil {
		if price, age, ok := p.prices.GetWithAge(symbol); ok && age <= p.maxAge && price > 0 {
			return price, nil
		}
	}
	price, err := p.client.GetPrice(ctx, symbol)
	if err != nil {
		return 0, unavailable(symbol, "ticker: %v", err)
	}
	if p.prices != nil {
		p.prices.Set(symbol, price, p.clock.Now())
	}
	return price, nil
}
