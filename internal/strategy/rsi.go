package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/schedule"
	"strategy-core/pkg/i18n"
)

// Previous price sources for an RSI update.
const (
	PreviousFromHistory  = "history"
	PreviousFromLastTick = "last_tick"
)

// RSIConfig separates the bar size used to seed the averages from the bar
// size of the previous close used by each update.
type RSIConfig struct {
	Lookback        int
	SeedFrequency   market.Frequency
	UpdateFrequency market.Frequency
	PreviousPrice   string
	Thresholds      Thresholds
}

// DefaultRSIConfig seeds from daily closes and compares each tick's price
// against the last completed daily close.
func DefaultRSIConfig() RSIConfig {
	return RSIConfig{
		Lookback:        15,
		SeedFrequency:   market.Day,
		UpdateFrequency: market.Day,
		PreviousPrice:   PreviousFromHistory,
		Thresholds:      DefaultThresholds(),
	}
}

func (c RSIConfig) validate() error {
	if c.Lookback < 2 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, indicators.ErrInvalidLookback)
	}
	if c.SeedFrequency.Duration() == 0 || c.UpdateFrequency.Duration() == 0 {
		return fmt.Errorf("%w: frequencies %q/%q", ErrInvalidParams, c.SeedFrequency, c.UpdateFrequency)
	}
	if c.PreviousPrice != PreviousFromHistory && c.PreviousPrice != PreviousFromLastTick {
		return fmt.Errorf("%w: previous_price %q", ErrInvalidParams, c.PreviousPrice)
	}
	return c.Thresholds.validate()
}

// warnCadence flags RSI smoothing over mixed bar sizes.
func (c RSIConfig) warnCadence(id string, cadence time.Duration) {
	if c.SeedFrequency.Duration() != cadence {
		log.Printf(i18n.M().FrequencyMismatch, id, c.SeedFrequency, cadence)
	}
}

// rsiBook drives an indicators.Tracker from a HistoryProvider.
type rsiBook struct {
	cfg     RSIConfig
	tracker *indicators.Tracker
}

func newRSIBook(cfg RSIConfig) (*rsiBook, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tr, err := indicators.NewTracker(cfg.Lookback)
	if err != nil {
		return nil, err
	}
	return &rsiBook{cfg: cfg, tracker: tr}, nil
}

// ensureSeeded seeds symbol once. It reports whether symbol is seeded.
func (b *rsiBook) ensureSeeded(ctx context.Context, sc *Context, symbol string) bool {
	if b.tracker.Seeded(symbol) {
		return true
	}
	history, err := sc.Data.History(ctx, symbol, b.cfg.Lookback, b.cfg.SeedFrequency)
	if err != nil {
		sc.DataUnavailable(symbol, err)
		return false
	}
	if err := b.tracker.Seed(symbol, history); err != nil {
		log.Printf(i18n.M().SeedDeferred, sc.ID, symbol, err)
		return false
	}
	return true
}

// step advances symbol by one tick. A data failure leaves the instrument's
// state untouched.
func (b *rsiBook) step(ctx context.Context, sc *Context, symbol string) (float64, bool) {
	current, err := sc.Data.Current(ctx, symbol)
	if err != nil {
		sc.DataUnavailable(symbol, err)
		return 0, false
	}

	var previous float64
	switch b.cfg.PreviousPrice {
	case PreviousFromLastTick:
		st, _ := b.tracker.State(symbol)
		previous = st.LastClose
	default:
		closes, err := sc.Data.History(ctx, symbol, 1, b.cfg.UpdateFrequency)
		if err != nil {
			sc.DataUnavailable(symbol, err)
			return 0, false
		}
		previous = closes[0]
	}

	rsi, err := b.tracker.Update(symbol, current, previous)
	if err != nil {
		log.Printf("[%s] %s: rsi update: %v", sc.ID, symbol, err)
		return 0, false
	}
	return rsi, true
}

// RSIParams is the JSON parameter block of an "rsi" strategy.
type RSIParams struct {
	Lookback          int              `json:"lookback"`
	Oversold          float64          `json:"oversold"`
	Overbought        float64          `json:"overbought"`
	SeedFrequency     market.Frequency `json:"seed_frequency"`
	PreviousFrequency market.Frequency `json:"previous_frequency"`
	PreviousPrice     string           `json:"previous_price"`
}

func defaultRSIParams() RSIParams {
	d := DefaultRSIConfig()
	return RSIParams{
		Lookback:          d.Lookback,
		Oversold:          d.Thresholds.Oversold,
		Overbought:        d.Thresholds.Overbought,
		SeedFrequency:     d.SeedFrequency,
		PreviousFrequency: d.UpdateFrequency,
		PreviousPrice:     d.PreviousPrice,
	}
}

func (p RSIParams) config() RSIConfig {
	return RSIConfig{
		Lookback:        p.Lookback,
		SeedFrequency:   p.SeedFrequency,
		UpdateFrequency: p.PreviousFrequency,
		PreviousPrice:   p.PreviousPrice,
		Thresholds:      Thresholds{Oversold: p.Oversold, Overbought: p.Overbought},
	}
}

// RSIStrategy holds one instrument fully long above the overbought band,
// fully short below the oversold band and flat in between, re-evaluated on
// a fixed cadence.
type RSIStrategy struct {
	id      string
	symbol  string
	cadence time.Duration
	rule    schedule.TimeRule
	book    *rsiBook
	sc      *Context
}

// NewRSIStrategy builds the strategy. interval is the callback cadence,
// e.g. "1h" or "1m".
func NewRSIStrategy(id, symbol, interval string, cfg RSIConfig) (*RSIStrategy, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: rsi needs a symbol", ErrInvalidParams)
	}
	rule, cadence, err := ParseCadence(interval)
	if err != nil {
		return nil, err
	}
	book, err := newRSIBook(cfg)
	if err != nil {
		return nil, err
	}
	return &RSIStrategy{id: id, symbol: symbol, cadence: cadence, rule: rule, book: book}, nil
}

func newRSIFromParams(id string, symbols []string, interval string, raw string) (Strategy, error) {
	p := defaultRSIParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(symbols) != 1 {
		return nil, fmt.Errorf("%w: rsi trades exactly one symbol, got %d", ErrInvalidParams, len(symbols))
	}
	return NewRSIStrategy(id, symbols[0], interval, p.config())
}

func (s *RSIStrategy) ID() string        { return s.id }
func (s *RSIStrategy) Type() string      { return TypeRSI }
func (s *RSIStrategy) Symbols() []string { return []string{s.symbol} }

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("RSI_%d_%s", s.book.cfg.Lookback, s.symbol)
}

func (s *RSIStrategy) Initialize(sc *Context) error {
	s.sc = sc
	s.book.cfg.warnCadence(s.id, s.cadence)
	return sc.Schedule("rebalance", s.rebalance, schedule.EveryDay(), s.rule)
}

func (s *RSIStrategy) RSISnapshot() []indicators.RSISnapshot {
	return s.book.tracker.Snapshot()
}

func (s *RSIStrategy) rebalance(ctx context.Context, tick schedule.Tick) {
	if !s.book.ensureSeeded(ctx, s.sc, s.symbol) {
		return
	}
	rsi, ok := s.book.step(ctx, s.sc, s.symbol)
	if !ok {
		return
	}
	dir := s.book.cfg.Thresholds.Classify(rsi)
	weight := float64(dir)
	s.sc.Emit(ctx, Signal{
		Symbol:    s.symbol,
		Direction: dir,
		RSI:       rsi,
		Weight:    weight,
		Time:      tick.Time,
	})
	s.sc.OrderTargetPercent(ctx, s.symbol, weight)
}

// ParseCadence turns an interval such as "1m", "15m" or "1h" into a time
// rule firing every interval from the session open.
func ParseCadence(interval string) (schedule.TimeRule, time.Duration, error) {
	if interval == "" {
		interval = "1h"
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d < time.Minute {
		return nil, 0, fmt.Errorf("%w: interval %q", ErrInvalidParams, interval)
	}
	switch {
	case d%time.Hour == 0:
		return schedule.EveryNthHour(int(d / time.Hour)), d, nil
	case d%time.Minute == 0:
		return schedule.EveryNthMinute(int(d / time.Minute)), d, nil
	}
	return nil, 0, fmt.Errorf("%w: interval %q is not whole minutes", ErrInvalidParams, interval)
}

// decodeParams overlays a JSON object onto defaults already in dst.
func decodeParams(raw string, dst any) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			return fmt.Errorf("%w: malformed json at offset %d", ErrInvalidParams, syn.Offset)
		}
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
