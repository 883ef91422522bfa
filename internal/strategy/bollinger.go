package strategy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/schedule"
)

// BollingerRSIParams is the JSON parameter block of a "bollinger_rsi"
// strategy.
type BollingerRSIParams struct {
	IndicatorLookback   int              `json:"indicator_lookback"`
	IndicatorFreq       market.Frequency `json:"indicator_freq"`
	BuySignalThreshold  float64          `json:"buy_signal_threshold"`
	SellSignalThreshold float64          `json:"sell_signal_threshold"`
	SMAPeriodShort      int              `json:"sma_period_short"`
	SMAPeriodLong       int              `json:"sma_period_long"`
	BBandsPeriod        int              `json:"bbands_period"`
	BBandsStdDev        float64          `json:"bbands_std_dev"`
	TradeFreq           int              `json:"trade_freq"` // minutes
	Leverage            float64          `json:"leverage"`
	StopBeforeClose     int              `json:"stop_before_close"` // minutes

	RSILookback       int              `json:"rsi_lookback"`
	Oversold          float64          `json:"oversold"`
	Overbought        float64          `json:"overbought"`
	SeedFrequency     market.Frequency `json:"seed_frequency"`
	PreviousFrequency market.Frequency `json:"previous_frequency"`
	PreviousPrice     string           `json:"previous_price"`
}

// DefaultBollingerRSIParams returns the stock settings: 375 one-minute
// bars, 300-bar bands, hourly trading with a 15-day RSI.
func DefaultBollingerRSIParams() BollingerRSIParams {
	r := DefaultRSIConfig()
	return BollingerRSIParams{
		IndicatorLookback:   375,
		IndicatorFreq:       market.Minute,
		BuySignalThreshold:  0.5,
		SellSignalThreshold: -0.5,
		SMAPeriodShort:      15,
		SMAPeriodLong:       60,
		BBandsPeriod:        300,
		BBandsStdDev:        2,
		TradeFreq:           60,
		Leverage:            1,
		StopBeforeClose:     30,
		RSILookback:         r.Lookback,
		Oversold:            r.Thresholds.Oversold,
		Overbought:          r.Thresholds.Overbought,
		SeedFrequency:       r.SeedFrequency,
		PreviousFrequency:   r.UpdateFrequency,
		PreviousPrice:       r.PreviousPrice,
	}
}

func (p BollingerRSIParams) validate() error {
	switch {
	case p.IndicatorLookback < p.BBandsPeriod || p.BBandsPeriod < 2:
		return fmt.Errorf("%w: indicator_lookback %d must cover bbands_period %d", ErrInvalidParams, p.IndicatorLookback, p.BBandsPeriod)
	case p.SMAPeriodShort <= 0 || p.SMAPeriodShort > p.IndicatorLookback:
		return fmt.Errorf("%w: sma_period_short %d must be in 1..%d", ErrInvalidParams, p.SMAPeriodShort, p.IndicatorLookback)
	case p.SMAPeriodLong <= 0 || p.SMAPeriodLong > p.IndicatorLookback:
		return fmt.Errorf("%w: sma_period_long %d must be in 1..%d", ErrInvalidParams, p.SMAPeriodLong, p.IndicatorLookback)
	case p.IndicatorFreq.Duration() == 0:
		return fmt.Errorf("%w: indicator_freq %q", ErrInvalidParams, p.IndicatorFreq)
	case p.TradeFreq <= 0:
		return fmt.Errorf("%w: trade_freq %d", ErrInvalidParams, p.TradeFreq)
	case p.SellSignalThreshold >= p.BuySignalThreshold:
		return fmt.Errorf("%w: sell threshold %v must be below buy threshold %v", ErrInvalidParams, p.SellSignalThreshold, p.BuySignalThreshold)
	case p.StopBeforeClose < 0:
		return fmt.Errorf("%w: stop_before_close %d", ErrInvalidParams, p.StopBeforeClose)
	}
	return nil
}

func (p BollingerRSIParams) rsiConfig() RSIConfig {
	return RSIConfig{
		Lookback:        p.RSILookback,
		SeedFrequency:   p.SeedFrequency,
		UpdateFrequency: p.PreviousFrequency,
		PreviousPrice:   p.PreviousPrice,
		Thresholds:      Thresholds{Oversold: p.Oversold, Overbought: p.Overbought},
	}
}

// BollingerRSIStrategy is a long/short basket strategy. Price near a band
// edge decides the signal; otherwise the instrument's RSI does. Every
// instrument with a signal gets an equal share of equity.
type BollingerRSIStrategy struct {
	id      string
	symbols []string
	params  BollingerRSIParams
	book    *rsiBook
	sc      *Context

	trading bool
	signals map[string]Direction
	targets map[string]float64
}

func NewBollingerRSIStrategy(id string, symbols []string, params BollingerRSIParams) (*BollingerRSIStrategy, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: bollinger_rsi needs at least one symbol", ErrInvalidParams)
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	book, err := newRSIBook(params.rsiConfig())
	if err != nil {
		return nil, err
	}
	s := &BollingerRSIStrategy{
		id:      id,
		symbols: append([]string(nil), symbols...),
		params:  params,
		book:    book,
		trading: true,
		signals: make(map[string]Direction, len(symbols)),
		targets: make(map[string]float64, len(symbols)),
	}
	return s, nil
}

func newBollingerFromParams(id string, symbols []string, _ string, raw string) (Strategy, error) {
	p := DefaultBollingerRSIParams()
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return NewBollingerRSIStrategy(id, symbols, p)
}

func (s *BollingerRSIStrategy) ID() string        { return s.id }
func (s *BollingerRSIStrategy) Type() string      { return TypeBollingerRSI }
func (s *BollingerRSIStrategy) Symbols() []string { return append([]string(nil), s.symbols...) }

func (s *BollingerRSIStrategy) Name() string {
	return fmt.Sprintf("BollingerRSI_%d_%d", s.params.BBandsPeriod, s.params.TradeFreq)
}

func (s *BollingerRSIStrategy) Initialize(sc *Context) error {
	s.sc = sc
	cadence := time.Duration(s.params.TradeFreq) * time.Minute
	s.book.cfg.warnCadence(s.id, cadence)

	sc.BeforeTradingStart(func(context.Context, schedule.Tick) { s.trading = true })
	if err := sc.Schedule("run_strategy", s.run, schedule.EveryDay(), schedule.EveryNthMinute(s.params.TradeFreq)); err != nil {
		return err
	}
	stopAt := time.Duration(s.params.StopBeforeClose) * time.Minute
	return sc.Schedule("stop_trading", func(context.Context, schedule.Tick) { s.trading = false },
		schedule.EveryDay(), schedule.MarketClose(stopAt))
}

func (s *BollingerRSIStrategy) RSISnapshot() []indicators.RSISnapshot {
	return s.book.tracker.Snapshot()
}

// Trading reports whether new targets are currently accepted.
func (s *BollingerRSIStrategy) Trading() bool { return s.trading }

// Signal returns the last signal of symbol.
func (s *BollingerRSIStrategy) Signal(symbol string) Direction { return s.signals[symbol] }

func (s *BollingerRSIStrategy) run(ctx context.Context, tick schedule.Tick) {
	for _, sym := range s.symbols {
		s.book.ensureSeeded(ctx, s.sc, sym)
	}
	if !s.trading {
		return
	}

	notes := s.generateSignals(ctx)
	s.generateTargets()

	for _, sym := range s.symbols {
		note, evaluated := notes[sym]
		if !evaluated {
			continue
		}
		s.sc.Emit(ctx, Signal{
			Symbol:    sym,
			Direction: s.signals[sym],
			RSI:       s.currentRSI(sym),
			Weight:    s.targets[sym],
			Note:      note,
			Time:      tick.Time,
		})
	}
	for _, sym := range s.symbols {
		s.sc.OrderTargetPercent(ctx, sym, s.targets[sym])
	}
}

// generateSignals refreshes every instrument whose indicator window is
// available. Unavailable instruments keep their previous signal.
func (s *BollingerRSIStrategy) generateSignals(ctx context.Context) map[string]string {
	notes := make(map[string]string, len(s.symbols))
	for _, sym := range s.symbols {
		px, err := s.sc.Data.History(ctx, sym, s.params.IndicatorLookback, s.params.IndicatorFreq)
		if err != nil {
			s.sc.DataUnavailable(sym, err)
			continue
		}
		if s.book.tracker.Seeded(sym) {
			s.book.step(ctx, s.sc, sym)
		}
		sig, note := s.signalFor(px, s.currentRSI(sym))
		s.signals[sym] = sig
		notes[sym] = note
	}
	return notes
}

// signalFor looks at where the last price sits inside the bands: within
// 5% of the lower band is a sell, within 5% of the upper band is a buy.
// Otherwise the RSI bands decide.
func (s *BollingerRSIStrategy) signalFor(px []float64, rsi float64) (Direction, string) {
	upper, _, lower := indicators.Bollinger(px, s.params.BBandsPeriod, s.params.BBandsStdDev)
	emaShort := indicators.EMA(px, s.params.SMAPeriodShort)
	emaLong := indicators.EMA(px, s.params.SMAPeriodLong)
	if upper-lower == 0 {
		return Hold, "flat bands"
	}

	last := px[len(px)-1]
	dist := 100 * (upper - last) / (upper - lower)
	note := fmt.Sprintf("dist_to_upper=%.2f ema_short=%.4f ema_long=%.4f", dist, emaShort, emaLong)
	switch {
	case dist > 95:
		return Sell, note
	case dist < 5:
		return Buy, note
	}
	return s.book.cfg.Thresholds.Classify(rsi), note
}

func (s *BollingerRSIStrategy) generateTargets() {
	weight := equalWeight(len(s.symbols)) * s.params.Leverage
	for _, sym := range s.symbols {
		sig := float64(s.signals[sym])
		switch {
		case sig > s.params.BuySignalThreshold:
			s.targets[sym] = weight
		case sig < s.params.SellSignalThreshold:
			s.targets[sym] = -weight
		default:
			s.targets[sym] = 0
		}
	}
}

// equalWeight is 1/n rounded to two decimals. Exact ties round to even and
// everything else rounds the float's exact binary value, so 1/8 gives 0.12
// and 1/40 gives 0.03.
func equalWeight(n int) float64 {
	w, _ := strconv.ParseFloat(strconv.FormatFloat(1/float64(n), 'f', 2, 64), 64)
	return w
}

// currentRSI is 50 until the instrument's first update.
func (s *BollingerRSIStrategy) currentRSI(symbol string) float64 {
	if v, ok := s.book.tracker.RSI(symbol); ok {
		return v
	}
	return 50
}
