package main

import (
	"context"
	"log"
	"time"

	"strategy-core/internal/order"
	"strategy-core/pkg/config"
)

// paper_demo walks the paper broker through a buy, a partial sell and a
// flip to short at fixed prices. It touches neither the exchange nor the
// database.
//
// Usage:
//   go run ./scripts/paper_demo

type fixedPrices map[string]float64

func (p fixedPrices) Current(_ context.Context, symbol string) (float64, error) {
	return p[symbol], nil
}

func main() {
	log.Println("=== Paper broker demo starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}

	prices := fixedPrices{"BTCUSDT": 100}
	broker := order.NewPaperBroker(order.PaperConfig{
		InitialCapital: cfg.InitialCapital,
		FeeRate:        cfg.FeeRate,
		SlippageBps:    cfg.SlippageBps,
		MinQty:         cfg.MinQty,
	}, prices)

	ctx := context.Background()
	steps := []struct {
		price  float64
		weight float64
	}{
		{100, 0.5},
		{120, 0.25},
		{90, -0.75},
	}
	for i, st := range steps {
		prices["BTCUSDT"] = st.price
		o, err := broker.Apply(ctx, order.Target{StrategyID: "demo", Symbol: "BTCUSDT", Weight: st.weight, Time: time.Now()})
		if err != nil {
			log.Fatalf("step %d: %v", i+1, err)
		}
		equity, cash := broker.Equity(ctx, "demo")
		if o != nil {
			log.Printf("[STEP %d] %s %.6f @ %.4f fee=%.4f -> equity=%.2f cash=%.2f", i+1, o.Side, o.Qty, o.Price, o.Fee, equity, cash)
		} else {
			log.Printf("[STEP %d] no rebalance needed -> equity=%.2f cash=%.2f", i+1, equity, cash)
		}
	}
	for _, p := range broker.Positions("demo") {
		log.Printf("position %s qty=%.6f avg=%.4f realized=%.4f", p.Symbol, p.Qty, p.AvgPrice, p.RealizedPnL)
	}
	log.Println("=== Paper broker demo finished ===")
}
