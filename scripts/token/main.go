package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"strategy-core/internal/api"
	"strategy-core/pkg/config"
)

// token mints an operator JWT for the pause/resume endpoints, signed with
// JWT_SECRET from the environment or .env.
//
// Usage:
//   go run ./scripts/token -operator alice -ttl 24h

func main() {
	operator := flag.String("operator", "operator", "name recorded in the token")
	ttl := flag.Duration("ttl", 72*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is empty")
	}
	token, err := api.GenerateToken(*operator, cfg.JWTSecret, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
