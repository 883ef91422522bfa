package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"strategy-core/internal/market"
	"strategy-core/pkg/market/binance"
)

// KlineSource is satisfied by binance.Client.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]binance.Kline, error)
}

// HistoricalDataService downloads closed klines for offline replay.
type HistoricalDataService struct {
	client KlineSource
	now    func() time.Time
}

// NewHistoricalDataService creates a new service instance.
func NewHistoricalDataService(client KlineSource) *HistoricalDataService {
	return &HistoricalDataService{client: client, now: time.Now}
}

// Bars pages forward through [from, to) and returns one bar per closed
// kline, stamped at its close time.
func (s *HistoricalDataService) Bars(ctx context.Context, symbol string, freq market.Frequency, from, to time.Time) ([]market.Bar, error) {
	if freq.Duration() == 0 {
		return nil, fmt.Errorf("unsupported frequency %q", freq)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s..%s", from, to)
	}

	now := s.now()
	start := from.UnixMilli()
	end := to.UnixMilli() - 1
	var out []market.Bar
	for start <= end {
		klines, err := s.client.GetKlines(ctx, symbol, string(freq), binance.MaxKlineLimit, start, end)
		if err != nil {
			return nil, fmt.Errorf("%s klines: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.Complete(now) {
				out = append(out, market.Bar{Time: k.CloseAt(), Close: k.Close})
			}
		}
		next := klines[len(klines)-1].OpenTime + 1
		if next <= start || len(klines) < binance.MaxKlineLimit {
			break
		}
		start = next
	}
	return out, nil
}

// WriteCSV emits symbol,time,close rows, symbols sorted, in the layout
// market.LoadCSV reads back.
func WriteCSV(w io.Writer, series map[string][]market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"symbol", "time", "close"}); err != nil {
		return err
	}
	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		for _, b := range series[sym] {
			rec := []string{sym, b.Time.UTC().Format(time.RFC3339), strconv.FormatFloat(b.Close, 'f', -1, 64)}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
