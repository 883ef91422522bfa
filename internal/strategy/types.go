package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/schedule"
	"strategy-core/pkg/i18n"
)

var (
	ErrUnknownType     = errors.New("unknown strategy type")
	ErrInvalidParams   = errors.New("invalid strategy parameters")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Direction is the classified trading intent for one instrument.
type Direction int

const (
	Sell Direction = -1
	Hold Direction = 0
	Buy  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "HOLD"
}

// Thresholds are the RSI bands. Values equal to a band are Hold.
type Thresholds struct {
	Oversold   float64 `json:"oversold"`
	Overbought float64 `json:"overbought"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Oversold: 30, Overbought: 70}
}

// Classify maps RSI to Sell below Oversold and Buy above Overbought.
func (t Thresholds) Classify(rsi float64) Direction {
	switch {
	case rsi < t.Oversold:
		return Sell
	case rsi > t.Overbought:
		return Buy
	}
	return Hold
}

func (t Thresholds) validate() error {
	if t.Oversold < 0 || t.Overbought > 100 || t.Oversold >= t.Overbought {
		return fmt.Errorf("%w: thresholds %v/%v", ErrInvalidParams, t.Oversold, t.Overbought)
	}
	return nil
}

// Classify uses the 30/70 bands.
func Classify(rsi float64) Direction {
	return DefaultThresholds().Classify(rsi)
}

// Signal is one evaluated instrument of a strategy tick.
type Signal struct {
	StrategyID string
	Symbol     string
	Direction  Direction
	RSI        float64
	Weight     float64
	Note       string
	Time       time.Time
}

// Strategy is a scheduled trading program. Initialize registers its
// callbacks through the Context; everything after that is driven by the
// scheduler.
type Strategy interface {
	ID() string
	Name() string
	Type() string
	Symbols() []string
	Initialize(*Context) error
}

// RSIReporter is implemented by strategies that maintain an RSI tracker.
type RSIReporter interface {
	RSISnapshot() []indicators.RSISnapshot
}

// Context is a strategy's handle on the host: data, schedule, orders and
// the signal journal.
type Context struct {
	ID   string
	Data market.HistoryProvider

	engine *Engine
}

// Schedule registers fn to run on the given rules. It is skipped while the
// strategy is paused.
func (c *Context) Schedule(name string, fn schedule.Callback, date schedule.DateRule, tr schedule.TimeRule) error {
	return c.engine.sched.Register(c.ID+"."+name, c.engine.wrap(c.ID, fn), date, tr)
}

// BeforeTradingStart registers fn to run once at each session open.
func (c *Context) BeforeTradingStart(fn schedule.Callback) {
	c.engine.sched.BeforeTradingStart(c.engine.wrap(c.ID, fn))
}

// Session is the configured trading session.
func (c *Context) Session() schedule.Session {
	return c.engine.sched.Session()
}

// OrderTargetPercent forwards a target weight to the order sink. Failures
// are logged, never returned to the callback.
func (c *Context) OrderTargetPercent(ctx context.Context, symbol string, weight float64) {
	if c.engine.orders == nil {
		return
	}
	if err := c.engine.orders.OrderTargetPercent(ctx, c.ID, symbol, weight); err != nil {
		log.Printf(i18n.M().OrderFailed, err)
	}
}

// Emit records a signal.
func (c *Context) Emit(ctx context.Context, sig Signal) {
	sig.StrategyID = c.ID
	c.engine.record(ctx, sig)
}

// DataUnavailable logs a skipped instrument.
func (c *Context) DataUnavailable(symbol string, err error) {
	log.Printf(i18n.M().DataUnavailable, c.ID, symbol, err)
	if c.engine.Metrics != nil {
		c.engine.Metrics.IncrementDataUnavailable()
	}
}
