package data

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"strategy-core/internal/market"
	"strategy-core/pkg/market/binance"
)

// fakeKlines serves one-hour klines from a fixed slice, honoring the
// start/end window and the page limit.
type fakeKlines struct {
	klines []binance.Kline
	calls  int
}

func (f *fakeKlines) GetKlines(_ context.Context, _, _ string, limit int, start, end int64) ([]binance.Kline, error) {
	f.calls++
	var out []binance.Kline
	for _, k := range f.klines {
		if k.OpenTime >= start && k.OpenTime <= end && len(out) < limit {
			out = append(out, k)
		}
	}
	return out, nil
}

func hourly(start time.Time, n int) []binance.Kline {
	out := make([]binance.Kline, n)
	for i := range out {
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = binance.Kline{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour).UnixMilli() - 1,
			Close:     float64(100 + i),
		}
	}
	return out
}

func TestBarsPagesAndDropsOpenKline(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := binance.MaxKlineLimit + 10
	src := &fakeKlines{klines: hourly(start, n)}
	svc := NewHistoricalDataService(src)
	// The last kline is still open.
	svc.now = func() time.Time { return start.Add(time.Duration(n-1)*time.Hour + 30*time.Minute) }

	bars, err := svc.Bars(context.Background(), "BTCUSDT", market.Hour, start, start.Add(time.Duration(n)*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != n-1 {
		t.Fatalf("bars = %d, want %d", len(bars), n-1)
	}
	if src.calls != 2 {
		t.Errorf("calls = %d, want 2 pages", src.calls)
	}
	if bars[0].Close != 100 || !bars[0].Time.Equal(start.Add(time.Hour-time.Millisecond)) {
		t.Errorf("first bar = %+v", bars[0])
	}
}

func TestBarsRejectsBadInput(t *testing.T) {
	svc := NewHistoricalDataService(&fakeKlines{})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Bars(context.Background(), "X", market.Frequency("2w"), at, at.Add(time.Hour)); err == nil {
		t.Error("expected frequency error")
	}
	if _, err := svc.Bars(context.Background(), "X", market.Day, at, at); err == nil {
		t.Error("expected empty range error")
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	at := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	series := map[string][]market.Bar{
		"ETHUSDT": {{Time: at, Close: 2300.5}},
		"BTCUSDT": {{Time: at, Close: 42000}, {Time: at.Add(time.Hour), Close: 42100.25}},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, series); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "symbol,time,close\nBTCUSDT,") {
		t.Fatalf("csv = %q", buf.String())
	}

	store := market.NewBarStore()
	rows, err := market.LoadCSV(&buf, store, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 {
		t.Fatalf("rows = %d", rows)
	}
	if syms := store.Symbols(); len(syms) != 2 {
		t.Fatalf("symbols = %v", syms)
	}
}
