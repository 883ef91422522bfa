package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"strategy-core/internal/data"
	"strategy-core/internal/market"
	"strategy-core/pkg/market/binance"
)

// fetch_klines downloads closed Binance klines into a CSV that
// scripts/backtest can replay.
//
// Usage:
//   go run ./scripts/fetch_klines -symbols BTCUSDT,ETHUSDT -interval 1h -days 90 -out bars.csv

func main() {
	symbols := flag.String("symbols", "BTCUSDT", "comma separated symbols")
	interval := flag.String("interval", "1h", "kline interval: 1m, 1h or 1d")
	days := flag.Int("days", 30, "days of history ending now")
	out := flag.String("out", "bars.csv", "output CSV path")
	testnet := flag.Bool("testnet", false, "use the Binance testnet")
	flag.Parse()

	freq, err := market.ParseFrequency(*interval)
	if err != nil {
		log.Fatalf("-interval: %v", err)
	}
	svc := data.NewHistoricalDataService(binance.NewClient(*testnet))

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -*days)
	ctx := context.Background()
	series := make(map[string][]market.Bar)
	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		bars, err := svc.Bars(ctx, sym, freq, from, to)
		if err != nil {
			log.Fatalf("%s: %v", sym, err)
		}
		log.Printf("%s: %d %s bars", sym, len(bars), freq)
		series[sym] = bars
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()
	if err := data.WriteCSV(f, series); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	log.Printf("wrote %s", *out)
}
