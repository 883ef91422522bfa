package market

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Bar is one price observation.
type Bar struct {
	Time  time.Time
	Close float64
}

// BarStore keeps per-symbol observations in time order.
type BarStore struct {
	mu   sync.RWMutex
	bars map[string][]Bar
}

// NewBarStore creates an empty store.
func NewBarStore() *BarStore {
	return &BarStore{bars: make(map[string][]Bar)}
}

// Load replaces the series for symbol. bars need not be sorted.
func (s *BarStore) Load(symbol string, bars []Bar) {
	cp := append([]Bar(nil), bars...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Time.Before(cp[j].Time) })
	s.mu.Lock()
	s.bars[symbol] = cp
	s.mu.Unlock()
}

// Append adds an observation. One at or before the last stored time
// replaces nothing and is dropped.
func (s *BarStore) Append(symbol string, b Bar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.bars[symbol]
	if n := len(series); n > 0 && !b.Time.After(series[n-1].Time) {
		return false
	}
	s.bars[symbol] = append(series, b)
	return true
}

// Trim drops observations older than cutoff.
func (s *BarStore) Trim(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, series := range s.bars {
		i := sort.Search(len(series), func(i int) bool { return !series[i].Time.Before(cutoff) })
		if i > 0 {
			s.bars[sym] = append([]Bar(nil), series[i:]...)
		}
	}
}

// Symbols lists the stored symbols, sorted.
func (s *BarStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Range returns the first and last observation times across all symbols.
func (s *BarStore) Range() (first, last time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, series := range s.bars {
		if len(series) == 0 {
			continue
		}
		if !ok || series[0].Time.Before(first) {
			first = series[0].Time
		}
		if !ok || series[len(series)-1].Time.After(last) {
			last = series[len(series)-1].Time
		}
		ok = true
	}
	return first, last, ok
}

// upTo returns the observations with Time <= now.
func (s *BarStore) upTo(symbol string, now time.Time) []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[symbol]
	i := sort.Search(len(series), func(i int) bool { return series[i].Time.After(now) })
	return series[:i]
}

// StoreProvider serves HistoryProvider reads from a BarStore. Observations
// are bucketed by frequency in loc; the bucket containing now is still
// forming and is never returned by History.
type StoreProvider struct {
	store *BarStore
	clock Clock
	loc   *time.Location
}

// NewStoreProvider reads store as seen at clock.Now().
func NewStoreProvider(store *BarStore, clock Clock, loc *time.Location) *StoreProvider {
	if loc == nil {
		loc = time.UTC
	}
	return &StoreProvider{store: store, clock: clock, loc: loc}
}

// Store exposes the underlying series.
func (p *StoreProvider) Store() *BarStore {
	return p.store
}

// History implements HistoryProvider.
func (p *StoreProvider) History(ctx context.Context, symbol string, count int, freq Frequency) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, unavailable(symbol, "count %d", count)
	}
	if freq.Duration() == 0 {
		return nil, unavailable(symbol, "unsupported frequency %q", freq)
	}

	now := p.clock.Now()
	bars := p.store.upTo(symbol, now)
	current := bucketStart(now, freq, p.loc)

	closes := make([]float64, 0, count)
	var lastKey time.Time
	for _, b := range bars {
		key := bucketStart(b.Time, freq, p.loc)
		if !key.Before(current) {
			break
		}
		if len(closes) > 0 && key.Equal(lastKey) {
			closes[len(closes)-1] = b.Close
			continue
		}
		closes = append(closes, b.Close)
		lastKey = key
	}

	if len(closes) < count {
		return nil, unavailable(symbol, "have %d %s bars, need %d", len(closes), freq, count)
	}
	out := make([]float64, count)
	copy(out, closes[len(closes)-count:])
	return out, nil
}

// Current implements HistoryProvider.
func (p *StoreProvider) Current(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bars := p.store.upTo(symbol, p.clock.Now())
	if len(bars) == 0 {
		return 0, unavailable(symbol, "no observation yet")
	}
	return bars[len(bars)-1].Close, nil
}

func bucketStart(t time.Time, freq Frequency, loc *time.Location) time.Time {
	l := t.In(loc)
	switch freq {
	case Minute:
		return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), 0, 0, loc)
	case Hour:
		return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), 0, 0, 0, loc)
	default:
		return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
	}
}
