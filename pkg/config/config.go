package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the strategy core.
type Config struct {
	Port     string
	GRPCPort string

	// Storage
	DBPath         string
	StrategiesFile string
	LogDir         string

	// Market data
	UseMockFeed    bool
	BinanceTestnet bool
	BinanceSymbols []string

	// Trading session (HH:MM in MarketTZ)
	MarketOpen     string
	MarketClose    string
	MarketTZ       string
	MarketWeekends bool // crypto venues trade seven days a week

	// Paper execution
	InitialCapital float64
	FeeRate        float64 // decimal (e.g. 0.0004 = 4 bps)
	SlippageBps    float64
	MinQty         float64

	// Auth
	JWTSecret string

	// Notifications
	TelegramToken   string
	TelegramChatIDs []int64

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "9090"),
		DBPath:          getEnv("DB_PATH", "./data/strategy.db"),
		StrategiesFile:  getEnv("STRATEGIES_FILE", "./strategies.yaml"),
		LogDir:          getEnv("LOG_DIR", "./logs"),
		UseMockFeed:     getEnv("USE_MOCK_FEED", "true") == "true",
		BinanceTestnet:  getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceSymbols:  splitAndTrim(getEnv("BINANCE_SYMBOLS", "BTCUSDT,ETHUSDT")),
		MarketOpen:      getEnv("MARKET_OPEN", "00:00"),
		MarketClose:     getEnv("MARKET_CLOSE", "23:59"),
		MarketTZ:        getEnv("MARKET_TZ", "UTC"),
		MarketWeekends:  getEnv("MARKET_WEEKENDS", "true") == "true",
		InitialCapital:  getEnvFloat("INITIAL_CAPITAL", 10000.0),
		FeeRate:         getEnvFloat("FEE_RATE", 0.0004),
		SlippageBps:     getEnvFloat("SLIPPAGE_BPS", 2),
		MinQty:          getEnvFloat("MIN_QTY", 1e-6),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatIDs: parseChatIDs(getEnv("TELEGRAM_CHAT_IDS", "")),
		Language:        getEnv("LANGUAGE", "en"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// parseChatIDs skips entries that are not integers.
func parseChatIDs(val string) []int64 {
	var out []int64
	for _, p := range splitAndTrim(val) {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
