package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"strategy-core/pkg/db"
)

// verify_schema checks that a database carries every table and column the
// strategy core writes to.
//
// Usage:
//   go run ./scripts/verify_schema -db ./data/strategy.db

var required = map[string][]string{
	"strategy_instances": {"id", "strategy_type", "symbols", "parameters", "is_active", "status"},
	"signals":            {"strategy_instance_id", "symbol", "direction", "rsi", "weight", "note"},
	"orders":             {"id", "strategy_instance_id", "side", "qty", "filled_qty", "target_weight", "status"},
	"trades":             {"id", "order_id", "price", "qty", "fee"},
	"positions":          {"strategy_instance_id", "symbol", "qty", "avg_price", "realized_pnl"},
	"equity_snapshots":   {"strategy_instance_id", "equity", "cash"},
}

func main() {
	path := flag.String("db", "./data/strategy.db", "SQLite database path")
	flag.Parse()
	fmt.Printf("Verifying database at: %s\n", *path)

	database, err := db.New(*path)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer database.Close()

	failed := false
	for table, columns := range required {
		have := make(map[string]bool)
		rows, err := database.DB.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			log.Fatalf("inspect %s: %v", table, err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				log.Fatalf("scan %s: %v", table, err)
			}
			have[name] = true
		}
		rows.Close()

		if len(have) == 0 {
			fmt.Printf("✗ %s missing\n", table)
			failed = true
			continue
		}
		ok := true
		for _, col := range columns {
			if !have[col] {
				fmt.Printf("✗ %s.%s missing\n", table, col)
				ok = false
			}
		}
		failed = failed || !ok
		if ok {
			fmt.Printf("✓ %s\n", table)
		}
	}
	if failed {
		os.Exit(1)
	}
}
