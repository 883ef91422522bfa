package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestGetKlinesParsesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %s, want 2", got)
		}
		w.Write([]byte(`[
			[1700000000000,"100.0","101.0","99.0","100.5","12.3",1700000059999,"0",7,"0","0","0"],
			[1700000060000,"100.5","102.0","100.0","101.5","8.1",1700000119999,"0",5,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(false)
	c.BaseURL = srv.URL

	klines, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 2, 0, 0)
	if err != nil {
		t.Fatalf("get klines: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("len = %d, want 2", len(klines))
	}
	if klines[1].Close != 101.5 || klines[1].Trades != 5 || klines[1].Symbol != "BTCUSDT" {
		t.Errorf("kline = %+v", klines[1])
	}
	if !klines[0].Complete(time.UnixMilli(1700000060000)) {
		t.Error("first bar should be complete once the next one opens")
	}
	if klines[1].Complete(time.UnixMilli(1700000090000)) {
		t.Error("second bar should still be open mid-minute")
	}
}

func TestGetKlinesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(false)
	c.BaseURL = srv.URL
	if _, err := c.GetKlines(context.Background(), "NOPE", "1m", 1, 0, 0); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"3012.55000000"}`))
	}))
	defer srv.Close()

	c := NewClient(false)
	c.BaseURL = srv.URL
	p, err := c.GetPrice(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if p != 3012.55 {
		t.Errorf("price = %v", p)
	}
}

func TestParseKlineMessage(t *testing.T) {
	msg := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1,"T":60000,"s":"BTCUSDT","i":"1m","o":"1.0","c":"2.5","h":"3.0","l":"0.5","v":"10","n":3,"x":true}}`)
	k, err := parseKlineMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Close != 2.5 || !k.Closed || k.Interval != "1m" {
		t.Errorf("kline = %+v", k)
	}

	if _, err := parseKlineMessage([]byte(`{"result":null,"id":1}`)); err == nil {
		t.Error("expected error for non-kline message")
	}
}

func TestSubscribeKlinesStreams(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/btcusdt@kline_1m") {
			t.Errorf("stream path = %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"k":{"t":1,"T":60000,"s":"BTCUSDT","i":"1m","c":"42.0","x":false}}`))
		// Hold the connection until the client hangs up.
		conn.ReadMessage()
	}))
	defer srv.Close()

	sc := NewStreamClient(false)
	sc.StreamURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, stop, err := sc.SubscribeKlines(ctx, "BTCUSDT", "1m")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case k := <-ch:
		if k.Close != 42 {
			t.Errorf("close = %v", k.Close)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no kline received")
	}

	stop()
	for range ch {
	}
}
