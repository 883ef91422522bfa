package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"strategy-core/internal/events"
	"strategy-core/internal/indicators"
	"strategy-core/internal/monitor"
	"strategy-core/internal/persistence"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

const testSecret = "test-secret"

type fakeStrategies struct {
	mu    sync.Mutex
	infos []strategy.Info
}

func (f *fakeStrategies) List() []strategy.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]strategy.Info(nil), f.infos...)
}

func (f *fakeStrategies) set(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.infos {
		if f.infos[i].ID == id {
			f.infos[i].Status = status
			return nil
		}
	}
	return strategy.ErrUnknownStrategy
}

func (f *fakeStrategies) Pause(_ context.Context, id string) error {
	return f.set(id, strategy.StatusPaused)
}

func (f *fakeStrategies) Resume(_ context.Context, id string) error {
	return f.set(id, strategy.StatusActive)
}

func (f *fakeStrategies) RSISnapshots() map[string][]indicators.RSISnapshot {
	return map[string][]indicators.RSISnapshot{
		"rsi-btc": {{Symbol: "BTCUSDT", RSI: 77.78, HasRSI: true}},
		"boll":    {{Symbol: "ETHUSDT", RSI: 41, HasRSI: true}},
	}
}

type testEnv struct {
	server     *Server
	db         *db.Database
	bus        *events.Bus
	strategies *fakeStrategies
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	bus := events.NewBus()
	fake := &fakeStrategies{infos: []strategy.Info{
		{ID: "rsi-btc", Name: "RSI_BTCUSDT", Type: strategy.TypeRSI, Symbols: []string{"BTCUSDT"}, Status: strategy.StatusActive},
		{ID: "boll", Name: "BollingerRSI_300_60", Type: strategy.TypeBollingerRSI, Symbols: []string{"ETHUSDT"}, Status: strategy.StatusActive},
	}}
	meta := SystemMeta{Feed: "mock", Symbols: []string{"BTCUSDT", "ETHUSDT"}, Version: "test"}
	s := NewServer(bus, database, fake, monitor.NewSystemMetrics(), nil, meta, secret)
	return &testEnv{server: s, db: database, bus: bus, strategies: fake}
}

func (e *testEnv) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealthAndStrategies(t *testing.T) {
	env := newTestEnv(t, testSecret)

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	var list []strategy.Info
	w = env.do(t, http.MethodGet, "/api/strategies", "")
	decode(t, w, &list)
	if len(list) != 2 || list[0].ID != "rsi-btc" {
		t.Fatalf("strategies = %+v", list)
	}
}

func TestPauseResumeRequiresToken(t *testing.T) {
	env := newTestEnv(t, testSecret)
	token, err := GenerateToken("ops", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := GenerateToken("ops", "other-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantErr  string
	}{
		{"no token", "/api/strategies/rsi-btc/pause", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"wrong secret", "/api/strategies/rsi-btc/pause", forged, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"unknown strategy", "/api/strategies/nope/pause", token, http.StatusNotFound, "STRATEGY_NOT_FOUND"},
		{"pause", "/api/strategies/rsi-btc/pause", token, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.token)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErr != "" {
				var resp struct {
					Code string `json:"code"`
				}
				decode(t, w, &resp)
				if resp.Code != tt.wantErr {
					t.Errorf("code = %s, want %s", resp.Code, tt.wantErr)
				}
			}
		})
	}

	if got := env.strategies.List()[0].Status; got != strategy.StatusPaused {
		t.Fatalf("status after pause = %s", got)
	}
	if w := env.do(t, http.MethodPost, "/api/strategies/rsi-btc/resume", token); w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
	if got := env.strategies.List()[0].Status; got != strategy.StatusActive {
		t.Fatalf("status after resume = %s", got)
	}
}

func TestProtectedRoutesDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, "")
	if w := env.do(t, http.MethodPost, "/api/strategies/rsi-btc/pause", "anything"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRSISnapshots(t *testing.T) {
	env := newTestEnv(t, testSecret)

	var all []rsiView
	decode(t, env.do(t, http.MethodGet, "/api/rsi", ""), &all)
	if len(all) != 2 || all[0].StrategyID != "boll" || all[1].StrategyID != "rsi-btc" {
		t.Fatalf("rsi = %+v", all)
	}

	var one []rsiView
	decode(t, env.do(t, http.MethodGet, "/api/rsi?strategy=rsi-btc", ""), &one)
	if len(one) != 1 || one[0].Instruments[0].RSI != 77.78 {
		t.Fatalf("filtered rsi = %+v", one)
	}

	if w := env.do(t, http.MethodGet, "/api/rsi?strategy=missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing strategy status = %d", w.Code)
	}
}

func TestJournalEndpoints(t *testing.T) {
	env := newTestEnv(t, testSecret)
	ctx := context.Background()
	base := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	for i, sig := range []db.SignalRecord{
		{StrategyInstanceID: "rsi-btc", Symbol: "BTCUSDT", Direction: 1, RSI: 77.78, Weight: 1},
		{StrategyInstanceID: "rsi-btc", Symbol: "BTCUSDT", Direction: 0, RSI: 55, Weight: 0},
		{StrategyInstanceID: "boll", Symbol: "ETHUSDT", Direction: -1, RSI: 25, Weight: -1},
	} {
		sig.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := env.db.InsertSignal(ctx, sig); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.db.InsertEquity(ctx, db.EquitySnapshot{StrategyID: "rsi-btc", Equity: 10100, Cash: 100, CreatedAt: base}); err != nil {
		t.Fatal(err)
	}

	var signals []db.SignalRecord
	decode(t, env.do(t, http.MethodGet, "/api/signals?strategy=rsi-btc&limit=10", ""), &signals)
	if len(signals) != 2 || signals[0].RSI != 55 {
		t.Fatalf("signals = %+v", signals)
	}

	var orders []db.Order
	w := env.do(t, http.MethodGet, "/api/orders", "")
	decode(t, w, &orders)
	if orders == nil || len(orders) != 0 {
		t.Fatalf("orders = %+v", orders)
	}
	if w.Header().Get("X-Result-Limit") != "100" {
		t.Errorf("limit header = %q", w.Header().Get("X-Result-Limit"))
	}

	var equity []db.EquitySnapshot
	decode(t, env.do(t, http.MethodGet, "/api/equity?strategy=rsi-btc", ""), &equity)
	if len(equity) != 1 || equity[0].Equity != 10100 {
		t.Fatalf("equity = %+v", equity)
	}

	if w := env.do(t, http.MethodGet, "/api/signals?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestCharts(t *testing.T) {
	env := newTestEnv(t, testSecret)
	ctx := context.Background()
	at := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	if err := env.db.InsertSignal(ctx, db.SignalRecord{StrategyInstanceID: "rsi-btc", Symbol: "BTCUSDT", RSI: 64.2, CreatedAt: at}); err != nil {
		t.Fatal(err)
	}
	if err := env.db.InsertEquity(ctx, db.EquitySnapshot{StrategyID: "rsi-btc", Equity: 10000, CreatedAt: at}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/charts/rsi?strategy=rsi-btc", http.StatusOK, "RSI BTCUSDT"},
		{"/charts/rsi", http.StatusBadRequest, "MISSING_STRATEGY"},
		{"/charts/equity", http.StatusOK, "rsi-btc"},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, tt.path, "")
		if w.Code != tt.wantCode {
			t.Errorf("%s status = %d", tt.path, w.Code)
		}
		if !strings.Contains(w.Body.String(), tt.contains) {
			t.Errorf("%s body missing %q", tt.path, tt.contains)
		}
	}
}

func TestMetricsCountRequests(t *testing.T) {
	env := newTestEnv(t, testSecret)
	env.do(t, http.MethodGet, "/health", "")
	env.do(t, http.MethodGet, "/api/rsi?strategy=missing", "")

	var resp struct {
		Metrics monitor.MetricsSnapshot `json:"metrics"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/metrics", ""), &resp)
	if resp.Metrics.APIRequests != 2 || resp.Metrics.APIErrors != 1 {
		t.Fatalf("api requests=%d errors=%d", resp.Metrics.APIRequests, resp.Metrics.APIErrors)
	}
}

func TestMetricsIncludeJournal(t *testing.T) {
	env := newTestEnv(t, testSecret)

	var resp map[string]json.RawMessage
	decode(t, env.do(t, http.MethodGet, "/api/metrics", ""), &resp)
	if _, ok := resp["journal"]; ok {
		t.Fatal("journal reported without a writer attached")
	}

	journal := persistence.NewBatchWriter(env.db, 10, time.Hour)
	defer journal.Close()
	env.server.Journal = journal
	journal.InsertSignal(context.Background(), db.SignalRecord{StrategyInstanceID: "rsi-btc", Symbol: "BTCUSDT", CreatedAt: time.Now()})
	if err := journal.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var got struct {
		Journal persistence.BatchWriterMetrics `json:"journal"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/metrics", ""), &got)
	if got.Journal.TotalWrites != 1 || got.Journal.TotalBatches != 1 || got.Journal.Pending != 0 {
		t.Errorf("journal metrics = %+v", got.Journal)
	}
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(1, 2, time.Hour)
	a := l.get("10.0.0.1")
	if !a.Allow() || !a.Allow() {
		t.Fatal("burst of 2 should pass")
	}
	if a.Allow() {
		t.Fatal("third request should be limited")
	}
	if !l.get("10.0.0.2").Allow() {
		t.Fatal("other IP must have its own bucket")
	}
}

func TestWebsocketStreamsSignals(t *testing.T) {
	env := newTestEnv(t, testSecret)
	ts := httptest.NewServer(env.server.Router)
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("dial: %v (%s)", err, body)
		}
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The server subscribes after the upgrade; publish until a frame arrives.
	done := make(chan struct{})
	defer close(done)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				env.bus.Publish(events.EventStrategySignal, events.SignalEvent{StrategyID: "rsi-btc", Symbol: "BTCUSDT", Direction: 1, RSI: 77.78})
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env1 struct {
		Event   string             `json:"event"`
		Payload events.SignalEvent `json:"payload"`
	}
	if err := conn.ReadJSON(&env1); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env1.Event != string(events.EventStrategySignal) || env1.Payload.Symbol != "BTCUSDT" {
		t.Fatalf("frame = %+v", env1)
	}
}
