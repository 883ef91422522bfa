package strategy

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/schedule"
	"strategy-core/pkg/db"
)

type recordingSink struct {
	mu      sync.Mutex
	targets []order.Target
}

func (r *recordingSink) OrderTargetPercent(_ context.Context, strategyID, symbol string, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, order.Target{StrategyID: strategyID, Symbol: symbol, Weight: weight})
	return nil
}

func (r *recordingSink) all() []order.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]order.Target(nil), r.targets...)
}

// Monday 2024-01-08 is the trading day under test; the week before holds
// the daily closes used for seeding.
var (
	session = schedule.MustSession("09:00", "17:00", time.UTC)
	monday  = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
)

func dailyBars(closes ...float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{Time: time.Date(2024, 1, 1+i, 16, 0, 0, 0, time.UTC), Close: c}
	}
	return out
}

type harness struct {
	store  *market.BarStore
	clock  *schedule.SimClock
	sched  *schedule.Scheduler
	sink   *recordingSink
	engine *Engine
}

func newHarness(t *testing.T, bus *events.Bus, database *db.Database) *harness {
	t.Helper()
	store := market.NewBarStore()
	clock := schedule.NewSimClock(monday)
	sched := schedule.New(session, clock)
	sink := &recordingSink{}
	provider := market.NewStoreProvider(store, clock, time.UTC)
	return &harness{
		store:  store,
		clock:  clock,
		sched:  sched,
		sink:   sink,
		engine: NewEngine(sched, provider, sink, bus, database),
	}
}

func (h *harness) runAt(t *testing.T, hh, mm int) {
	t.Helper()
	at := monday.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
	if err := h.sched.RunBetween(context.Background(), at, at); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		rsi  float64
		want Direction
	}{
		{0, Sell},
		{29.999, Sell},
		{30, Hold},
		{50, Hold},
		{70, Hold},
		{70.001, Buy},
		{100, Buy},
	}
	for _, tt := range tests {
		if got := Classify(tt.rsi); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.rsi, got, tt.want)
		}
	}

	custom := Thresholds{Oversold: 20, Overbought: 80}
	if custom.Classify(25) != Hold || custom.Classify(19) != Sell || custom.Classify(81) != Buy {
		t.Error("custom thresholds misclassified")
	}
}

func TestRSIStrategyEndToEnd(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.store.Load("AAPL", append(dailyBars(100, 102, 101, 105, 104),
		market.Bar{Time: monday.Add(9 * time.Hour), Close: 106}))

	cfg := DefaultRSIConfig()
	cfg.Lookback = 5
	s, err := NewRSIStrategy("rsi-aapl", "AAPL", "1h", cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := h.engine.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}

	h.runAt(t, 9, 0)

	targets := h.sink.all()
	if len(targets) != 1 || targets[0].Symbol != "AAPL" || targets[0].Weight != 1 || targets[0].StrategyID != "rsi-aapl" {
		t.Fatalf("targets = %+v, want one BUY target", targets)
	}
	snap := h.engine.RSISnapshots()["rsi-aapl"]
	if len(snap) != 1 || math.Round(snap[0].RSI*100)/100 != 77.78 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if math.Abs(snap[0].State.AvgGain-2.8) > 1e-12 || math.Abs(snap[0].State.AvgLoss-0.8) > 1e-12 {
		t.Errorf("avg gain = %v", snap[0].State.AvgGain)
	}
}

func TestRSIStrategySkipsTickWithoutData(t *testing.T) {
	h := newHarness(t, nil, nil)
	// Only two completed days: not enough for a five-day seed.
	h.store.Load("AAPL", dailyBars(100, 101))

	cfg := DefaultRSIConfig()
	cfg.Lookback = 5
	s, _ := NewRSIStrategy("rsi", "AAPL", "1h", cfg)
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}
	h.runAt(t, 9, 0)

	if n := len(h.sink.all()); n != 0 {
		t.Errorf("expected no targets, got %d", n)
	}
	if s.book.tracker.Seeded("AAPL") {
		t.Error("instrument must stay unseeded")
	}
}

func TestRSIStrategyLastTickPrevious(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.store.Load("AAPL", append(dailyBars(100, 102, 101, 105, 104),
		market.Bar{Time: monday.Add(9 * time.Hour), Close: 103}))

	cfg := DefaultRSIConfig()
	cfg.Lookback = 5
	cfg.PreviousPrice = PreviousFromLastTick
	s, _ := NewRSIStrategy("rsi", "AAPL", "1h", cfg)
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}
	h.runAt(t, 9, 0)

	st, _ := s.book.tracker.State("AAPL")
	// previous = seeded LastClose 104, so the 103 tick is a loss of 1.
	if math.Abs(st.AvgLoss-1) > 1e-12 || math.Abs(st.AvgGain-2.4) > 1e-12 || st.LastClose != 103 {
		t.Errorf("state = %+v", st)
	}
}

func TestBollingerSignalFor(t *testing.T) {
	p := DefaultBollingerRSIParams()
	p.IndicatorLookback, p.BBandsPeriod = 20, 20
	p.SMAPeriodShort, p.SMAPeriodLong = 5, 10
	s, err := NewBollingerRSIStrategy("bb", []string{"A"}, p)
	if err != nil {
		t.Fatal(err)
	}

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	up := append(append([]float64(nil), flat[:19]...), 110)
	down := append(append([]float64(nil), flat[:19]...), 90)
	mid := make([]float64, 20)
	for i := range mid {
		mid[i] = 100 + float64(i%2)*2 // alternates 100/102
	}
	mid[19] = 101

	tests := []struct {
		name string
		px   []float64
		rsi  float64
		want Direction
	}{
		{"flat bands hold", flat, 90, Hold},
		{"above upper band buys", up, 10, Buy},
		{"below lower band sells", down, 90, Sell},
		{"inside bands uses rsi buy", mid, 75, Buy},
		{"inside bands uses rsi sell", mid, 25, Sell},
		{"inside bands default rsi holds", mid, 50, Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, note := s.signalFor(tt.px, tt.rsi)
			if got != tt.want {
				t.Errorf("signal = %s (%s), want %s", got, note, tt.want)
			}
		})
	}
}

func TestBollingerTargets(t *testing.T) {
	p := DefaultBollingerRSIParams()
	p.Leverage = 2
	s, _ := NewBollingerRSIStrategy("bb", []string{"A", "B", "C"}, p)
	s.signals = map[string]Direction{"A": Buy, "B": Sell, "C": Hold}
	s.generateTargets()

	want := map[string]float64{"A": 0.66, "B": -0.66, "C": 0}
	for sym, w := range want {
		if math.Abs(s.targets[sym]-w) > 1e-12 {
			t.Errorf("%s target = %v, want %v", sym, s.targets[sym], w)
		}
	}
}

func TestEqualWeightRounding(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{1, 1},
		{2, 0.5},
		{3, 0.33},
		{6, 0.17},
		{8, 0.12},  // 0.125 is an exact tie, rounds to even
		{40, 0.03}, // 1/40 is slightly above 0.025 in binary
	}
	for _, tt := range tests {
		if got := equalWeight(tt.n); got != tt.want {
			t.Errorf("equalWeight(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBollingerSkipsUnavailableInstrument(t *testing.T) {
	bus := events.NewBus()
	signals, unsub := bus.Subscribe(events.EventStrategySignal, 8)
	defer unsub()

	h := newHarness(t, bus, nil)
	a := dailyBars(100, 102, 101, 105, 104)
	for i := 0; i < 20; i++ {
		px := 100.0
		if i == 19 {
			px = 110
		}
		a = append(a, market.Bar{Time: monday.Add(8*time.Hour + time.Duration(i)*time.Minute), Close: px})
	}
	h.store.Load("A", a)
	// B has daily closes but no minute bars.
	h.store.Load("B", dailyBars(50, 49, 47, 48, 46))

	p := DefaultBollingerRSIParams()
	p.IndicatorLookback, p.BBandsPeriod, p.RSILookback = 20, 20, 5
	p.SMAPeriodShort, p.SMAPeriodLong = 5, 10
	s, err := NewBollingerRSIStrategy("bb", []string{"A", "B"}, p)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}

	h.runAt(t, 9, 0)

	stB, ok := s.book.tracker.State("B")
	if !ok || !stB.Initialized {
		t.Fatal("B should be seeded even though its indicator window is missing")
	}
	if _, updated := s.book.tracker.RSI("B"); updated {
		t.Error("B must not be updated on a tick whose data failed")
	}
	if _, updated := s.book.tracker.RSI("A"); !updated {
		t.Error("A should be updated")
	}

	targets := h.sink.all()
	if len(targets) != 2 {
		t.Fatalf("targets = %+v", targets)
	}
	if targets[0].Symbol != "A" || targets[0].Weight != 0.5 || targets[1].Symbol != "B" || targets[1].Weight != 0 {
		t.Errorf("targets = %+v", targets)
	}

	select {
	case ev := <-signals:
		sig := ev.(events.SignalEvent)
		if sig.Symbol != "A" || sig.Direction != 1 || !strings.Contains(sig.Note, "dist_to_upper") {
			t.Errorf("signal = %+v", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("no signal for A")
	}
	select {
	case ev := <-signals:
		t.Errorf("unexpected second signal %+v", ev)
	default:
	}
}

func TestBollingerStopsBeforeClose(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := DefaultBollingerRSIParams()
	s, _ := NewBollingerRSIStrategy("bb", []string{"A"}, p)
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}

	h.runAt(t, 16, 30)
	if s.Trading() {
		t.Fatal("trading should stop 30 minutes before close")
	}
	h.runAt(t, 9, 0)
	if !s.Trading() {
		t.Fatal("before_trading_start should re-enable trading")
	}
}

func TestSMAHoldTargetsFullWeight(t *testing.T) {
	bus := events.NewBus()
	signals, unsub := bus.Subscribe(events.EventStrategySignal, 1)
	defer unsub()

	h := newHarness(t, bus, nil)
	var bars []market.Bar
	for i := 0; i < 300; i++ {
		bars = append(bars, market.Bar{Time: monday.AddDate(0, 0, i-300).Add(16 * time.Hour), Close: float64(100 + i)})
	}
	h.store.Load("ASIANPAINT", bars)

	s, err := NewSMAHoldStrategy("hold", "ASIANPAINT", defaultSMAHoldParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}
	h.runAt(t, 16, 30)

	targets := h.sink.all()
	if len(targets) != 1 || targets[0].Weight != 1 {
		t.Fatalf("targets = %+v", targets)
	}
	sig := (<-signals).(events.SignalEvent)
	if sig.Note != "ma_crossover=1" {
		t.Errorf("note = %q", sig.Note)
	}
}

func TestEnginePauseResume(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.store.Load("AAPL", dailyBars(100, 102, 101, 105, 104, 106))
	s, _ := NewSMAHoldStrategy("hold", "AAPL", SMAHoldParams{History: 3, Fast: 1, Slow: 2, Weight: 0.5, CloseOffset: 0})
	if err := h.engine.Add(s); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := h.engine.Pause(ctx, "hold"); err != nil {
		t.Fatal(err)
	}
	h.runAt(t, 17, 0)
	if n := len(h.sink.all()); n != 0 {
		t.Fatalf("paused strategy traded %d times", n)
	}
	if info := h.engine.List(); info[0].Status != StatusPaused {
		t.Errorf("status = %s", info[0].Status)
	}

	if err := h.engine.Resume(ctx, "hold"); err != nil {
		t.Fatal(err)
	}
	h.runAt(t, 17, 0)
	if n := len(h.sink.all()); n != 1 {
		t.Fatalf("resumed strategy traded %d times", n)
	}

	if err := h.engine.Pause(ctx, "nope"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
	if err := h.engine.Add(s); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("duplicate add: %v", err)
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		inst    db.StrategyInstance
		wantErr error
		check   func(t *testing.T, s Strategy)
	}{
		{
			name: "rsi defaults",
			inst: db.StrategyInstance{ID: "r", StrategyType: TypeRSI, Symbols: "aapl", Interval: "1h", Parameters: `{}`},
			check: func(t *testing.T, s Strategy) {
				r := s.(*RSIStrategy)
				if r.book.cfg.Lookback != 15 || r.symbol != "AAPL" || r.cadence != time.Hour {
					t.Errorf("rsi = %+v", r.book.cfg)
				}
			},
		},
		{
			name: "bollinger overrides",
			inst: db.StrategyInstance{ID: "b", StrategyType: TypeBollingerRSI, Symbols: "ADANIENT, TATAELXSI",
				Parameters: `{"trade_freq": 5, "leverage": 2}`},
			check: func(t *testing.T, s Strategy) {
				b := s.(*BollingerRSIStrategy)
				if b.params.TradeFreq != 5 || b.params.Leverage != 2 || b.params.BBandsPeriod != 300 || len(b.symbols) != 2 {
					t.Errorf("params = %+v", b.params)
				}
			},
		},
		{name: "sma hold", inst: db.StrategyInstance{ID: "s", StrategyType: TypeSMAHold, Symbols: "X"}},
		{name: "unknown type", inst: db.StrategyInstance{ID: "u", StrategyType: "grid", Symbols: "X"}, wantErr: ErrUnknownType},
		{name: "rsi two symbols", inst: db.StrategyInstance{ID: "r", StrategyType: TypeRSI, Symbols: "A,B"}, wantErr: ErrInvalidParams},
		{name: "bad json", inst: db.StrategyInstance{ID: "r", StrategyType: TypeRSI, Symbols: "A", Parameters: `{`}, wantErr: ErrInvalidParams},
		{name: "bad interval", inst: db.StrategyInstance{ID: "r", StrategyType: TypeRSI, Symbols: "A", Interval: "1d"}, wantErr: ErrInvalidParams},
		{name: "bad thresholds", inst: db.StrategyInstance{ID: "r", StrategyType: TypeRSI, Symbols: "A", Parameters: `{"oversold": 80}`}, wantErr: ErrInvalidParams},
		{name: "bollinger empty basket", inst: db.StrategyInstance{ID: "b", StrategyType: TypeBollingerRSI}, wantErr: ErrInvalidParams},
		{name: "bollinger zero ema period", inst: db.StrategyInstance{ID: "b", StrategyType: TypeBollingerRSI, Symbols: "A",
			Parameters: `{"sma_period_short": 0}`}, wantErr: ErrInvalidParams},
		{name: "bollinger ema longer than lookback", inst: db.StrategyInstance{ID: "b", StrategyType: TypeBollingerRSI, Symbols: "A",
			Parameters: `{"sma_period_long": 400}`}, wantErr: ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Build(tt.inst)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"", time.Hour, false},
		{"30s", 0, true},
		{"90s", 0, true},
		{"weekly", 0, true},
	}
	for _, tt := range tests {
		_, got, err := ParseCadence(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCadence(%q) = %v, %v", tt.in, got, err)
		}
	}
}

const sampleYAML = `
strategies:
  - id: rsi-aapl
    name: RSI AAPL
    type: rsi
    symbols: [AAPL]
    interval: 1h
    parameters:
      lookback: 15
    is_active: true
  - id: hold
    type: sma_hold
    symbols: [asianpaint]
    is_active: true
  - id: off
    type: rsi
    symbols: [MSFT]
    is_active: false
`

func TestConfigSyncAndLoad(t *testing.T) {
	configs, err := ParseConfig([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(configs) != 3 || configs[1].Name != "hold" {
		t.Fatalf("configs = %+v", configs)
	}

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := SyncConfigToDB(ctx, database, configs); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := database.SetStrategyStatus(ctx, "hold", StatusPaused); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, nil, database)
	if err := h.engine.LoadFromDB(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	info := h.engine.List()
	if len(info) != 2 {
		t.Fatalf("loaded = %+v", info)
	}
	// Rows load in id order.
	if info[0].ID != "hold" || info[0].Status != StatusPaused || info[0].Symbols[0] != "ASIANPAINT" {
		t.Errorf("hold = %+v", info[0])
	}
	if info[1].ID != "rsi-aapl" || info[1].Status != StatusActive {
		t.Errorf("rsi = %+v", info[1])
	}

	if err := h.engine.Resume(ctx, "hold"); err != nil {
		t.Fatal(err)
	}
	row, err := database.GetStrategyInstance(ctx, "hold")
	if err != nil || row.Status != StatusActive {
		t.Errorf("row = %+v err=%v", row, err)
	}
}

func TestParseConfigRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing type", "strategies:\n  - id: a\n"},
		{"duplicate id", "strategies:\n  - id: a\n    type: rsi\n  - id: a\n    type: rsi\n"},
	}
	for _, tt := range tests {
		if _, err := ParseConfig([]byte(tt.doc)); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("%s: expected ErrInvalidParams, got %v", tt.name, err)
		}
	}
	if _, err := ParseConfig([]byte("strategies: [")); err == nil {
		t.Error("malformed yaml should fail")
	}
}

type memJournal struct {
	mu   sync.Mutex
	rows []db.SignalRecord
}

func (j *memJournal) InsertSignal(_ context.Context, rec db.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rows = append(j.rows, rec)
	return nil
}

func TestEngineJournalTakesPrecedence(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := newHarness(t, nil, database)
	journal := &memJournal{}
	h.engine.Journal = journal
	h.store.Load("AAPL", append(dailyBars(100, 102, 101, 105, 104),
		market.Bar{Time: monday.Add(9 * time.Hour), Close: 106}))

	cfg := DefaultRSIConfig()
	cfg.Lookback = 5
	s, err := NewRSIStrategy("rsi-aapl", "AAPL", "1h", cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := h.engine.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.runAt(t, 9, 0)

	if len(journal.rows) != 1 || journal.rows[0].StrategyInstanceID != "rsi-aapl" || journal.rows[0].Direction != int(Buy) {
		t.Fatalf("journal = %+v", journal.rows)
	}
	stored, err := database.ListSignals(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("database got %d signals, want 0", len(stored))
	}
}
