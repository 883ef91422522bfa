package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"strategy-core/internal/backtest"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/schedule"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/db"
)

// backtest replays a symbol,time,close CSV through the strategies of a
// strategies.yaml file and prints the score of every paper account.
//
// Usage:
//   go run ./scripts/backtest -data bars.csv -strategies strategies.yaml
//   go run ./scripts/backtest -data bars.csv -open 09:15 -close 15:30 -tz Asia/Kolkata -json

func main() {
	dataPath := flag.String("data", "", "CSV of symbol,time,close rows")
	stratPath := flag.String("strategies", "strategies.yaml", "strategy definitions")
	open := flag.String("open", "00:00", "session open HH:MM")
	closeAt := flag.String("close", "23:59", "session close HH:MM")
	tz := flag.String("tz", "UTC", "session time zone")
	weekends := flag.Bool("weekends", true, "trade on Saturdays and Sundays")
	from := flag.String("from", "", "first day (YYYY-MM-DD), default first bar")
	to := flag.String("to", "", "last day (YYYY-MM-DD), default last bar")
	capital := flag.Float64("capital", 10000, "initial capital per strategy")
	fee := flag.Float64("fee", 0.0004, "fee rate")
	slippage := flag.Float64("slippage", 2, "slippage in bps")
	dbPath := flag.String("db", "", "optional SQLite journal")
	asJSON := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("-data is required")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("time zone: %v", err)
	}
	session, err := schedule.NewSession(*open, *closeAt, loc)
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	if *weekends {
		session = session.WithWeekends()
	}

	store := market.NewBarStore()
	rows, err := market.LoadCSVFile(*dataPath, store, loc)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	log.Printf("loaded %d bars for %v", rows, store.Symbols())

	configs, err := strategy.LoadConfig(*stratPath)
	if err != nil {
		log.Fatalf("load strategies: %v", err)
	}
	var strategies []strategy.Strategy
	for _, c := range configs {
		if !c.IsActive {
			continue
		}
		inst, err := c.Instance()
		if err != nil {
			log.Fatalf("%s: %v", c.ID, err)
		}
		s, err := strategy.Build(inst)
		if err != nil {
			log.Fatalf("%s: %v", c.ID, err)
		}
		strategies = append(strategies, s)
	}

	cfg := backtest.Config{
		Session: session,
		Paper:   order.PaperConfig{InitialCapital: *capital, FeeRate: *fee, SlippageBps: *slippage},
	}
	if cfg.Start, err = parseDay(*from, loc); err != nil {
		log.Fatalf("-from: %v", err)
	}
	if cfg.End, err = parseDay(*to, loc); err != nil {
		log.Fatalf("-to: %v", err)
	}
	if !cfg.End.IsZero() {
		cfg.End = cfg.End.Add(24*time.Hour - time.Nanosecond)
	}

	runner := backtest.NewRunner(cfg, store)
	if *dbPath != "" {
		database, err := db.New(*dbPath)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer database.Close()
		if err := db.ApplyMigrations(database); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		if err := strategy.SyncConfigToDB(context.Background(), database, configs); err != nil {
			log.Fatalf("sync strategies: %v", err)
		}
		runner.DB = database
	}

	res, err := runner.Run(context.Background(), strategies)
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatal(err)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "strategy\tdays\tsharpe\tcum %\tann %\tvol %\tmdd %\tscore\t")
	for _, sr := range res.Strategies {
		if sr.Metrics == nil {
			fmt.Fprintf(w, "%s\t%d\t-\t-\t-\t-\t-\t-\t\n", sr.ID, len(sr.Equity))
			continue
		}
		m := sr.Metrics
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.4f\t\n",
			sr.ID, m.Days, m.Sharpe, m.CumulativeReturn, m.AnnualReturn, m.AnnualVolatility, m.MaxDrawdown, m.Score)
	}
	w.Flush()
	fmt.Printf("orders filled: %d, callback panics: %d\n", res.Stats.OrdersFilled, res.Stats.CallbackPanics)
}

func parseDay(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}
