package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/monitor"
	"strategy-core/internal/order"
	"strategy-core/internal/schedule"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

var ErrNoData = errors.New("backtest: no bars loaded")

// Config bounds a replay. Zero Start/End default to the open of the first
// bar's day and the close of the last bar's day.
type Config struct {
	Session schedule.Session
	Start   time.Time
	End     time.Time
	Paper   order.PaperConfig
}

// EquityPoint is one end-of-day account valuation.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
	Cash   float64   `json:"cash"`
}

// StrategyResult is the outcome of one strategy's paper account.
type StrategyResult struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Equity    []EquityPoint    `json:"equity"`
	Positions []order.Position `json:"positions"`
	Metrics   *Metrics         `json:"metrics,omitempty"`
}

// Result collects every strategy of a run, sorted by id.
type Result struct {
	Start      time.Time               `json:"start"`
	End        time.Time               `json:"end"`
	Strategies []StrategyResult        `json:"strategies"`
	Stats      monitor.MetricsSnapshot `json:"stats"`
}

// Runner replays a BarStore through the scheduler on a simulated clock.
// Orders fill synchronously at the current replayed price.
type Runner struct {
	cfg   Config
	store *market.BarStore

	// Optional journals; nil keeps the run in memory.
	DB  *db.Database
	Bus *events.Bus
}

func NewRunner(cfg Config, store *market.BarStore) *Runner {
	return &Runner{cfg: cfg, store: store}
}

// Run initializes strategies, replays the window and scores every account.
func (r *Runner) Run(ctx context.Context, strategies []strategy.Strategy) (*Result, error) {
	first, last, ok := r.store.Range()
	if !ok {
		return nil, ErrNoData
	}
	session := r.cfg.Session
	start, end := r.cfg.Start, r.cfg.End
	if start.IsZero() {
		start = session.OpenAt(first)
	}
	if end.IsZero() {
		end = session.CloseAt(last)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("backtest: end %s before start %s", end, start)
	}

	metrics := monitor.NewSystemMetrics()
	clock := schedule.NewSimClock(start)
	sched := schedule.New(session, clock)
	sched.SetObserver(metrics.ObserveCallback)
	provider := market.NewStoreProvider(r.store, clock, session.Location())

	broker := order.NewPaperBroker(r.cfg.Paper, provider)
	broker.DB, broker.Bus, broker.Metrics = r.DB, r.Bus, metrics

	engine := strategy.NewEngine(sched, provider, order.NewSyncSink(broker, clock), r.Bus, r.DB)
	engine.Metrics = metrics
	for _, s := range strategies {
		if err := engine.Add(s); err != nil {
			return nil, err
		}
	}

	curves := make(map[string][]EquityPoint)
	// Registered after every strategy so it sees the day's final fills.
	err := sched.Register("record_equity", func(ctx context.Context, tick schedule.Tick) {
		for _, id := range engine.IDs() {
			snap, err := broker.RecordEquity(ctx, id, tick.Time)
			if err != nil {
				log.Printf("backtest: %v", err)
			}
			curves[id] = append(curves[id], EquityPoint{Time: tick.Time, Equity: snap.Equity, Cash: snap.Cash})
		}
	}, schedule.EveryDay(), schedule.MarketClose(0))
	if err != nil {
		return nil, err
	}

	log.Printf("backtest: %d strategies, %s to %s", engine.Len(), start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err := sched.RunBetween(ctx, start, end); err != nil {
		return nil, err
	}

	res := &Result{Start: start, End: end, Stats: metrics.GetSnapshot()}
	for _, info := range engine.List() {
		sr := StrategyResult{
			ID:        info.ID,
			Name:      info.Name,
			Equity:    curves[info.ID],
			Positions: broker.Positions(info.ID),
		}
		values := make([]float64, len(sr.Equity))
		for i, p := range sr.Equity {
			values[i] = p.Equity
		}
		if m, err := Compute(values); err == nil {
			sr.Metrics = &m
		}
		res.Strategies = append(res.Strategies, sr)
	}
	sort.Slice(res.Strategies, func(i, j int) bool { return res.Strategies[i].ID < res.Strategies[j].ID })
	return res, nil
}
