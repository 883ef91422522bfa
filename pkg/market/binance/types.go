package binance

import "time"

// Kline represents a single candlestick with the Binance fields we consume.
type Kline struct {
	Symbol    string  // trading pair symbol
	Interval  string  // e.g. 1m, 1h, 1d
	OpenTime  int64   // 0: Open time (ms)
	Open      float64 // 1: Open price
	High      float64 // 2: High price
	Low       float64 // 3: Low price
	Close     float64 // 4: Close price
	Volume    float64 // 5: Base asset volume
	CloseTime int64   // 6: Close time (ms)
	Trades    int     // 8: Number of trades
	Closed    bool    // stream only: bar is final
}

// OpenAt returns the bar open as a time.Time.
func (k Kline) OpenAt() time.Time {
	return time.UnixMilli(k.OpenTime)
}

// CloseAt returns the bar close as a time.Time.
func (k Kline) CloseAt() time.Time {
	return time.UnixMilli(k.CloseTime)
}

// Complete reports whether the bar had closed by now.
func (k Kline) Complete(now time.Time) bool {
	return k.Closed || !k.CloseAt().After(now)
}
