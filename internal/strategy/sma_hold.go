package strategy

import (
	"context"
	"fmt"
	"time"

	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/schedule"
)

// SMAHoldParams is the JSON parameter block of an "sma_hold" strategy.
type SMAHoldParams struct {
	History     int     `json:"history"`
	Fast        int     `json:"fast"`
	Slow        int     `json:"slow"`
	Weight      float64 `json:"weight"`
	CloseOffset int     `json:"close_offset"` // minutes before close
}

func defaultSMAHoldParams() SMAHoldParams {
	return SMAHoldParams{History: 255, Fast: 50, Slow: 200, Weight: 1, CloseOffset: 30}
}

// SMAHoldStrategy re-targets a fixed weight shortly before every close.
// The moving-average crossover is reported, not traded.
type SMAHoldStrategy struct {
	id     string
	symbol string
	params SMAHoldParams
	sc     *Context
}

func NewSMAHoldStrategy(id, symbol string, params SMAHoldParams) (*SMAHoldStrategy, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: sma_hold needs a symbol", ErrInvalidParams)
	}
	if params.Fast <= 0 || params.Slow <= params.Fast || params.History < params.Slow || params.CloseOffset < 0 {
		return nil, fmt.Errorf("%w: sma_hold %+v", ErrInvalidParams, params)
	}
	return &SMAHoldStrategy{id: id, symbol: symbol, params: params}, nil
}

func newSMAHoldFromParams(id string, symbols []string, _ string, raw string) (Strategy, error) {
	p := defaultSMAHoldParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(symbols) != 1 {
		return nil, fmt.Errorf("%w: sma_hold trades exactly one symbol, got %d", ErrInvalidParams, len(symbols))
	}
	return NewSMAHoldStrategy(id, symbols[0], p)
}

func (s *SMAHoldStrategy) ID() string        { return s.id }
func (s *SMAHoldStrategy) Type() string      { return TypeSMAHold }
func (s *SMAHoldStrategy) Symbols() []string { return []string{s.symbol} }

func (s *SMAHoldStrategy) Name() string {
	return fmt.Sprintf("SMAHold_%s", s.symbol)
}

func (s *SMAHoldStrategy) Initialize(sc *Context) error {
	s.sc = sc
	offset := time.Duration(s.params.CloseOffset) * time.Minute
	return sc.Schedule("rebalance", s.rebalance, schedule.EveryDay(), schedule.MarketClose(offset))
}

func (s *SMAHoldStrategy) rebalance(ctx context.Context, tick schedule.Tick) {
	note := "ma_crossover=n/a"
	if px, err := s.sc.Data.History(ctx, s.symbol, s.params.History, market.Day); err == nil {
		note = fmt.Sprintf("ma_crossover=%d", indicators.MACrossover(px, s.params.Fast, s.params.Slow))
	}
	s.sc.Emit(ctx, Signal{
		Symbol:    s.symbol,
		Direction: directionOf(s.params.Weight),
		Weight:    s.params.Weight,
		Note:      note,
		Time:      tick.Time,
	})
	s.sc.OrderTargetPercent(ctx, s.symbol, s.params.Weight)
}

func directionOf(weight float64) Direction {
	switch {
	case weight > 0:
		return Buy
	case weight < 0:
		return Sell
	}
	return Hold
}
