package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategy-core/internal/events"
	"strategy-core/internal/monitor"
	"strategy-core/pkg/db"
	"strategy-core/pkg/i18n"
)

var ErrNoPrice = errors.New("no usable price")

// PriceSource is satisfied by every market.HistoryProvider.
type PriceSource interface {
	Current(ctx context.Context, symbol string) (float64, error)
}

// PaperConfig mirrors the FEE_RATE, SLIPPAGE_BPS, MIN_QTY and
// INITIAL_CAPITAL settings.
type PaperConfig struct {
	InitialCapital float64
	FeeRate        float64 // decimal, e.g. 0.001 = 10 bps
	SlippageBps    float64 // applied against the taker on every fill
	MinQty         float64
}

// Account is one strategy's paper cash and holdings.
type Account struct {
	Cash      float64
	Positions map[string]*Position
}

// PaperBroker turns target weights into simulated market fills. Every
// strategy trades its own account funded with InitialCapital.
type PaperBroker struct {
	cfg    PaperConfig
	prices PriceSource

	DB      *db.Database
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics

	exec     sync.Mutex // serializes Apply
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewPaperBroker(cfg PaperConfig, prices PriceSource) *PaperBroker {
	if cfg.MinQty < 0 {
		cfg.MinQty = 0
	}
	return &PaperBroker{
		cfg:      cfg,
		prices:   prices,
		accounts: make(map[string]*Account),
	}
}

// Apply rebalances t.Symbol in t.StrategyID's account to t.Weight of its
// equity. It returns a nil order when the required change is below MinQty.
func (b *PaperBroker) Apply(ctx context.Context, t Target) (*Order, error) {
	b.exec.Lock()
	defer b.exec.Unlock()

	start := time.Now()
	price, err := b.prices.Current(ctx, t.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", t.Symbol, ErrNoPrice, err)
	}
	if price <= 0 || math.IsNaN(price) {
		return nil, fmt.Errorf("%s: %w: %v", t.Symbol, ErrNoPrice, price)
	}

	marks := b.marks(ctx, t.StrategyID, t.Symbol, price)

	b.mu.Lock()
	acct := b.accountLocked(t.StrategyID)
	pos := acct.Positions[t.Symbol]
	if pos == nil {
		pos = &Position{Symbol: t.Symbol}
		acct.Positions[t.Symbol] = pos
	}
	equity := equityOf(acct, marks)
	desired := ClampWeight(t.Weight) * equity / price
	delta := desired - pos.Qty
	if math.Abs(delta) < b.cfg.MinQty || math.Abs(delta) < qtyEpsilon {
		b.mu.Unlock()
		if math.Abs(delta) >= qtyEpsilon {
			log.Printf(i18n.M().OrderBelowMin, t.Symbol)
		}
		return nil, nil
	}

	side := SideBuy
	fillPrice := price * (1 + b.cfg.SlippageBps/10000)
	if delta < 0 {
		side = SideSell
		fillPrice = price * (1 - b.cfg.SlippageBps/10000)
	}
	qty := math.Abs(delta)
	fee := qty * fillPrice * b.cfg.FeeRate

	acct.Cash -= delta * fillPrice
	acct.Cash -= fee
	pos.fill(delta, fillPrice)
	posCopy := *pos
	b.mu.Unlock()

	at := t.Time
	if at.IsZero() {
		at = time.Now()
	}
	o := &Order{
		ID:           uuid.NewString(),
		StrategyID:   t.StrategyID,
		Symbol:       t.Symbol,
		Side:         side,
		Qty:          qty,
		Price:        fillPrice,
		Fee:          fee,
		TargetWeight: t.Weight,
		Status:       StatusFilled,
		CreatedAt:    at,
	}
	b.persist(ctx, o, posCopy)
	b.publish(o, posCopy)

	log.Printf(i18n.M().OrderFilled, o.Side, o.Symbol, o.Qty, o.Price, o.Fee)
	if b.Metrics != nil {
		b.Metrics.IncrementOrdersFilled()
		b.Metrics.OrderLatency.RecordDuration(time.Since(start))
	}
	return o, nil
}

// Run executes queued targets until ctx is canceled or q is closed.
func (b *PaperBroker) Run(ctx context.Context, q *Queue) {
	q.Drain(ctx, func(t Target) {
		if _, err := b.Apply(ctx, t); err != nil {
			if errors.Is(err, ErrNoPrice) {
				log.Printf(i18n.M().PriceMissing, t.Symbol)
			} else {
				log.Printf(i18n.M().OrderFailed, err)
			}
			if b.Metrics != nil {
				b.Metrics.IncrementErrors()
			}
			if b.Bus != nil {
				b.Bus.Publish(events.EventOrderRejected, events.OrderEvent{
					StrategyID: t.StrategyID,
					Symbol:     t.Symbol,
					Reason:     err.Error(),
					Time:       t.Time,
				})
			}
		}
	})
}

// Equity marks a strategy's account to current prices. Symbols without a
// price are marked at their average entry.
func (b *PaperBroker) Equity(ctx context.Context, strategyID string) (equity, cash float64) {
	marks := b.marks(ctx, strategyID, "", 0)
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[strategyID]
	if !ok {
		return b.cfg.InitialCapital, b.cfg.InitialCapital
	}
	return equityOf(acct, marks), acct.Cash
}

// RecordEquity values the account and stores the snapshot when a database
// is attached.
func (b *PaperBroker) RecordEquity(ctx context.Context, strategyID string, at time.Time) (db.EquitySnapshot, error) {
	equity, cash := b.Equity(ctx, strategyID)
	snap := db.EquitySnapshot{StrategyID: strategyID, Equity: equity, Cash: cash, CreatedAt: at}
	if b.DB == nil {
		return snap, nil
	}
	if err := b.DB.InsertEquity(ctx, snap); err != nil {
		return snap, fmt.Errorf("record equity: %w", err)
	}
	return snap, nil
}

// Positions returns copies of the non-flat positions of a strategy, sorted
// by symbol.
func (b *PaperBroker) Positions(strategyID string) []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[strategyID]
	if !ok {
		return nil
	}
	out := make([]Position, 0, len(acct.Positions))
	for _, p := range acct.Positions {
		if p.Qty != 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (b *PaperBroker) accountLocked(strategyID string) *Account {
	acct, ok := b.accounts[strategyID]
	if !ok {
		acct = &Account{Cash: b.cfg.InitialCapital, Positions: make(map[string]*Position)}
		b.accounts[strategyID] = acct
	}
	return acct
}

// marks fetches prices for every held symbol outside the account lock.
// known/knownPrice short-circuit the symbol already priced by the caller.
func (b *PaperBroker) marks(ctx context.Context, strategyID, known string, knownPrice float64) map[string]float64 {
	b.mu.RLock()
	var symbols []string
	if acct, ok := b.accounts[strategyID]; ok {
		for sym, p := range acct.Positions {
			if p.Qty != 0 && sym != known {
				symbols = append(symbols, sym)
			}
		}
	}
	b.mu.RUnlock()

	out := make(map[string]float64, len(symbols)+1)
	if known != "" {
		out[known] = knownPrice
	}
	for _, sym := range symbols {
		if px, err := b.prices.Current(ctx, sym); err == nil && px > 0 {
			out[sym] = px
		}
	}
	return out
}

func equityOf(acct *Account, marks map[string]float64) float64 {
	equity := acct.Cash
	for sym, p := range acct.Positions {
		px, ok := marks[sym]
		if !ok {
			px = p.AvgPrice
		}
		equity += p.Qty * px
	}
	return equity
}

func (b *PaperBroker) persist(ctx context.Context, o *Order, pos Position) {
	if b.DB == nil {
		return
	}
	rec := db.Order{
		ID:                 o.ID,
		StrategyInstanceID: o.StrategyID,
		Symbol:             o.Symbol,
		Side:               string(o.Side),
		Price:              o.Price,
		Qty:                o.Qty,
		TargetWeight:       o.TargetWeight,
		Status:             StatusNew,
		CreatedAt:          o.CreatedAt,
	}
	if err := b.DB.CreateOrder(ctx, rec); err != nil {
		log.Printf("paper: store order %s: %v", o.ID, err)
		return
	}
	if err := b.DB.UpdateOrderFill(ctx, o.ID, StatusFilled, o.Qty, o.Price); err != nil {
		log.Printf("paper: update order %s: %v", o.ID, err)
	}
	trade := db.Trade{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Price:     o.Price,
		Qty:       o.Qty,
		Fee:       o.Fee,
		CreatedAt: o.CreatedAt,
	}
	if err := b.DB.CreateTrade(ctx, trade); err != nil {
		log.Printf("paper: store trade for %s: %v", o.ID, err)
	}
	if err := b.DB.UpsertPosition(ctx, db.Position{
		StrategyID:  o.StrategyID,
		Symbol:      pos.Symbol,
		Qty:         pos.Qty,
		AvgPrice:    pos.AvgPrice,
		RealizedPnL: pos.RealizedPnL,
		UpdatedAt:   o.CreatedAt,
	}); err != nil {
		log.Printf("paper: store position %s/%s: %v", o.StrategyID, pos.Symbol, err)
	}
}

func (b *PaperBroker) publish(o *Order, pos Position) {
	if b.Bus == nil {
		return
	}
	ev := events.OrderEvent{
		ID:         o.ID,
		StrategyID: o.StrategyID,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Qty:        o.Qty,
		Price:      o.Price,
		Fee:        o.Fee,
		Time:       o.CreatedAt,
	}
	b.Bus.Publish(events.EventOrderSubmitted, ev)
	b.Bus.Publish(events.EventOrderFilled, ev)
	b.Bus.Publish(events.EventPositionChange, events.PositionChange{
		StrategyID:  o.StrategyID,
		Symbol:      pos.Symbol,
		Qty:         pos.Qty,
		AvgPrice:    pos.AvgPrice,
		RealizedPnL: pos.RealizedPnL,
		Time:        o.CreatedAt,
	})
}
