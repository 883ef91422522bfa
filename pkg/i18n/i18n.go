package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	GRPCListening      string
	ShuttingDown       string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string
	InvalidSession     string

	// Market data
	BinanceFeedStarted string
	MockFeedStarted    string
	DataUnavailable    string

	// Strategy
	StrategyLoaded           string
	StrategySkipped          string
	StrategyPaused           string
	StrategyResumed          string
	StrategyConfigLoadFailed string
	StrategySyncFailed       string
	StrategyInitFailed       string
	SeedDeferred             string
	FrequencyMismatch        string
	SignalChanged            string

	// Orders
	OrderQueued    string
	OrderDropped   string
	OrderFilled    string
	OrderFailed    string
	OrderBelowMin  string
	PriceMissing   string
	EquityRecorded string

	// Notifications
	TelegramEnabled  string
	TelegramDisabled string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting strategy core...",
	ConfigLoaded:       "Configuration loaded",
	UsingDBPath:        "Using database: %s",
	ServerListening:    "HTTP server listening on :%s",
	GRPCListening:      "gRPC health server listening on :%s",
	ShuttingDown:       "Shutting down...",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to open database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",
	InvalidSession:     "Invalid trading session: %v",

	// Market data
	BinanceFeedStarted: "Binance kline feed started for %v",
	MockFeedStarted:    "Mock price feed started for %v",
	DataUnavailable:    "[%s] %s: price data unavailable, skipping this tick: %v",

	// Strategy
	StrategyLoaded:           "Strategy loaded: %s (%s)",
	StrategySkipped:          "Strategy skipped: %s: %v",
	StrategyPaused:           "Strategy paused: %s",
	StrategyResumed:          "Strategy resumed: %s",
	StrategyConfigLoadFailed: "Failed to load strategy config: %v",
	StrategySyncFailed:       "Failed to sync strategy config to DB: %v",
	StrategyInitFailed:       "Strategy %s failed to initialize: %v",
	SeedDeferred:             "[%s] %s: RSI seed deferred until more history is available: %v",
	FrequencyMismatch:        "[%s] RSI seeded from %s bars but updated every %s; smoothing mixes bar sizes",
	SignalChanged:            "[%s] %s signal %s (RSI %.2f)",

	// Orders
	OrderQueued:    "Order target queued: %s %s -> %.2f",
	OrderDropped:   "Order queue full, dropping target %s %s",
	OrderFilled:    "Paper fill: %s %s qty=%.6f price=%.4f fee=%.4f",
	OrderFailed:    "Paper order failed: %v",
	OrderBelowMin:  "Rebalance for %s below minimum quantity, skipped",
	PriceMissing:   "No price for %s, target ignored",
	EquityRecorded: "[%s] equity %.2f (cash %.2f)",

	// Notifications
	TelegramEnabled:  "Telegram notifications enabled for %d chats",
	TelegramDisabled: "Telegram notifications disabled",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動策略核心...",
	ConfigLoaded:       "設定已載入",
	UsingDBPath:        "使用資料庫: %s",
	ServerListening:    "HTTP 服務監聽於 :%s",
	GRPCListening:      "gRPC 健康檢查服務監聽於 :%s",
	ShuttingDown:       "正在關閉...",
	ConfigLoadFailed:   "載入設定失敗: %v",
	DBInitFailed:       "開啟資料庫失敗: %v",
	DBMigrationsFailed: "資料庫遷移失敗: %v",
	APIServerError:     "API 服務錯誤: %v",
	InvalidSession:     "交易時段設定錯誤: %v",

	// Market data
	BinanceFeedStarted: "Binance K 線串流已啟動: %v",
	MockFeedStarted:    "模擬行情已啟動: %v",
	DataUnavailable:    "[%s] %s: 無法取得價格資料，略過本次: %v",

	// Strategy
	StrategyLoaded:           "策略已載入: %s (%s)",
	StrategySkipped:          "略過策略: %s: %v",
	StrategyPaused:           "策略已暫停: %s",
	StrategyResumed:          "策略已恢復: %s",
	StrategyConfigLoadFailed: "載入策略設定失敗: %v",
	StrategySyncFailed:       "同步策略設定到資料庫失敗: %v",
	StrategyInitFailed:       "策略 %s 初始化失敗: %v",
	SeedDeferred:             "[%s] %s: 歷史資料不足，RSI 初始化延後: %v",
	FrequencyMismatch:        "[%s] RSI 以 %s K 線初始化但每 %s 更新，平滑週期不一致",
	SignalChanged:            "[%s] %s 訊號 %s (RSI %.2f)",

	// Orders
	OrderQueued:    "目標倉位已排入: %s %s -> %.2f",
	OrderDropped:   "下單佇列已滿，丟棄目標 %s %s",
	OrderFilled:    "模擬成交: %s %s 數量=%.6f 價格=%.4f 手續費=%.4f",
	OrderFailed:    "模擬下單失敗: %v",
	OrderBelowMin:  "%s 調倉數量低於最小值，略過",
	PriceMissing:   "%s 無價格，忽略目標倉位",
	EquityRecorded: "[%s] 權益 %.2f (現金 %.2f)",

	// Notifications
	TelegramEnabled:  "Telegram 通知已啟用，共 %d 個聊天室",
	TelegramDisabled: "Telegram 通知未啟用",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
