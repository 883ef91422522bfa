package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"strategy-core/internal/events"
	"strategy-core/internal/indicators"
	"strategy-core/internal/market"
	"strategy-core/internal/monitor"
	"strategy-core/internal/order"
	"strategy-core/internal/schedule"
	"strategy-core/pkg/db"
	"strategy-core/pkg/i18n"
)

// Strategy type names as stored in strategy_instances.strategy_type.
const (
	TypeRSI          = "rsi"
	TypeBollingerRSI = "bollinger_rsi"
	TypeSMAHold      = "sma_hold"
)

// Status values of strategy_instances.status.
const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)

type factory func(id string, symbols []string, interval, params string) (Strategy, error)

var factories = map[string]factory{
	TypeRSI:          newRSIFromParams,
	TypeBollingerRSI: newBollingerFromParams,
	TypeSMAHold:      newSMAHoldFromParams,
}

// Build constructs a strategy from its stored configuration.
func Build(inst db.StrategyInstance) (Strategy, error) {
	f, ok := factories[inst.StrategyType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, inst.StrategyType)
	}
	return f(inst.ID, SplitSymbols(inst.Symbols), inst.Interval, inst.Parameters)
}

// SplitSymbols parses the comma separated symbols column.
func SplitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// Info describes a registered strategy.
type Info struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Status  string   `json:"status"`
}

type registered struct {
	strategy Strategy
	paused   bool
	rsi      []indicators.RSISnapshot
}

// SignalJournal stores signal rows. persistence.BatchWriter and
// *db.Database both satisfy it.
type SignalJournal interface {
	InsertSignal(ctx context.Context, rec db.SignalRecord) error
}

// Engine initializes strategies against a scheduler and journals their
// signals to the bus and the database.
type Engine struct {
	sched  *schedule.Scheduler
	data   market.HistoryProvider
	orders order.Sink
	bus    *events.Bus
	db     *db.Database

	Metrics *monitor.SystemMetrics
	// Journal, when set, receives signal rows instead of the database.
	Journal SignalJournal

	mu         sync.RWMutex
	order      []string
	strategies map[string]*registered
	lastDir    map[string]Direction
}

// NewEngine wires the host collaborators. bus and database may be nil.
func NewEngine(sched *schedule.Scheduler, data market.HistoryProvider, orders order.Sink, bus *events.Bus, database *db.Database) *Engine {
	return &Engine{
		sched:      sched,
		data:       data,
		orders:     orders,
		bus:        bus,
		db:         database,
		strategies: make(map[string]*registered),
		lastDir:    make(map[string]Direction),
	}
}

// Add initializes s and registers its callbacks.
func (e *Engine) Add(s Strategy) error {
	e.mu.Lock()
	if _, dup := e.strategies[s.ID()]; dup {
		e.mu.Unlock()
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidParams, s.ID())
	}
	e.strategies[s.ID()] = &registered{strategy: s}
	e.order = append(e.order, s.ID())
	e.mu.Unlock()

	sc := &Context{ID: s.ID(), Data: e.data, engine: e}
	if err := s.Initialize(sc); err != nil {
		// Callbacks registered before the failure stay inert: wrap finds no entry.
		e.mu.Lock()
		delete(e.strategies, s.ID())
		e.order = removeID(e.order, s.ID())
		e.mu.Unlock()
		return fmt.Errorf("initialize %s: %w", s.ID(), err)
	}
	e.refresh(s.ID())
	log.Printf(i18n.M().StrategyLoaded, s.Name(), s.ID())
	return nil
}

// LoadFromDB builds and adds every active strategy_instances row. Rows that
// fail to build are logged and skipped.
func (e *Engine) LoadFromDB(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	rows, err := e.db.ListStrategyInstances(ctx, true)
	if err != nil {
		return err
	}
	for _, inst := range rows {
		s, err := Build(inst)
		if err != nil {
			log.Printf(i18n.M().StrategySkipped, inst.ID, err)
			continue
		}
		if err := e.Add(s); err != nil {
			log.Printf(i18n.M().StrategyInitFailed, inst.ID, err)
			continue
		}
		if inst.Status == StatusPaused {
			e.setPaused(inst.ID, true)
		}
	}
	return nil
}

// Pause stops a strategy's callbacks from running.
func (e *Engine) Pause(ctx context.Context, id string) error {
	return e.setStatus(ctx, id, true)
}

// Resume re-enables a paused strategy.
func (e *Engine) Resume(ctx context.Context, id string) error {
	return e.setStatus(ctx, id, false)
}

func (e *Engine) setStatus(ctx context.Context, id string, paused bool) error {
	if !e.setPaused(id, paused) {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	status, msg := StatusActive, i18n.M().StrategyResumed
	if paused {
		status, msg = StatusPaused, i18n.M().StrategyPaused
	}
	log.Printf(msg, id)
	if e.db != nil {
		if err := e.db.SetStrategyStatus(ctx, id, status); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}
	if e.bus != nil {
		e.bus.Publish(events.EventStrategyStatus, events.StrategyStatus{StrategyID: id, Status: status})
	}
	return nil
}

func (e *Engine) setPaused(id string, paused bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.strategies[id]
	if ok {
		r.paused = paused
	}
	return ok
}

// Paused reports whether id is paused; ok is false for unknown ids.
func (e *Engine) Paused(id string) (paused, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.strategies[id]
	if !ok {
		return false, false
	}
	return r.paused, true
}

// List describes the registered strategies in registration order.
func (e *Engine) List() []Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Info, 0, len(e.order))
	for _, id := range e.order {
		r := e.strategies[id]
		status := StatusActive
		if r.paused {
			status = StatusPaused
		}
		out = append(out, Info{
			ID:      id,
			Name:    r.strategy.Name(),
			Type:    r.strategy.Type(),
			Symbols: r.strategy.Symbols(),
			Status:  status,
		})
	}
	return out
}

// Len is the number of registered strategies.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// RSISnapshots returns the tracker state of every RSI-based strategy as of
// its last completed callback.
func (e *Engine) RSISnapshots() map[string][]indicators.RSISnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]indicators.RSISnapshot)
	for id, r := range e.strategies {
		if r.rsi != nil {
			out[id] = append([]indicators.RSISnapshot(nil), r.rsi...)
		}
	}
	return out
}

// wrap gates fn on the strategy's pause flag and publishes a fresh RSI
// snapshot after it returns. Both run on the scheduler goroutine.
func (e *Engine) wrap(id string, fn schedule.Callback) schedule.Callback {
	return func(ctx context.Context, tick schedule.Tick) {
		paused, ok := e.Paused(id)
		if !ok || paused {
			return
		}
		if e.Metrics != nil {
			e.Metrics.IncrementTicks()
		}
		defer e.refresh(id)
		fn(ctx, tick)
	}
}

func (e *Engine) refresh(id string) {
	e.mu.RLock()
	r, ok := e.strategies[id]
	e.mu.RUnlock()
	if !ok {
		return
	}
	rep, ok := r.strategy.(RSIReporter)
	if !ok {
		return
	}
	snap := rep.RSISnapshot()
	e.mu.Lock()
	r.rsi = snap
	e.mu.Unlock()
}

// record journals a signal: bus event, signals row, and a log line when the
// direction for the instrument changes.
func (e *Engine) record(ctx context.Context, sig Signal) {
	if e.Metrics != nil {
		e.Metrics.IncrementSignals()
	}

	key := sig.StrategyID + "|" + sig.Symbol
	e.mu.Lock()
	prev, seen := e.lastDir[key]
	e.lastDir[key] = sig.Direction
	e.mu.Unlock()
	if !seen || prev != sig.Direction {
		log.Printf(i18n.M().SignalChanged, sig.StrategyID, sig.Symbol, sig.Direction, sig.RSI)
	}

	if e.bus != nil {
		e.bus.Publish(events.EventStrategySignal, events.SignalEvent{
			StrategyID: sig.StrategyID,
			Symbol:     sig.Symbol,
			Direction:  int(sig.Direction),
			RSI:        sig.RSI,
			Weight:     sig.Weight,
			Note:       sig.Note,
			Time:       sig.Time,
		})
	}
	journal := e.Journal
	if journal == nil && e.db != nil {
		journal = e.db
	}
	if journal != nil {
		rec := db.SignalRecord{
			StrategyInstanceID: sig.StrategyID,
			Symbol:             sig.Symbol,
			Direction:          int(sig.Direction),
			RSI:                sig.RSI,
			Weight:             sig.Weight,
			Note:               sig.Note,
			CreatedAt:          sig.Time,
		}
		if err := journal.InsertSignal(ctx, rec); err != nil {
			log.Printf("[%s] store signal: %v", sig.StrategyID, err)
		}
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// IDs returns registered strategy ids, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := append([]string(nil), e.order...)
	sort.Strings(out)
	return out
}
