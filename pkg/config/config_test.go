package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FEE_RATE", "")
	t.Setenv("TELEGRAM_CHAT_IDS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Port)
	}
	if cfg.FeeRate != 0.0004 {
		t.Errorf("fee rate = %v, want 0.0004", cfg.FeeRate)
	}
	if len(cfg.TelegramChatIDs) != 0 {
		t.Errorf("expected no chat ids, got %v", cfg.TelegramChatIDs)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BINANCE_SYMBOLS", " BTCUSDT, ,SOLUSDT ")
	t.Setenv("SLIPPAGE_BPS", "5")
	t.Setenv("TELEGRAM_CHAT_IDS", "12,abc,-100345")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("port = %s, want 9000", cfg.Port)
	}
	if len(cfg.BinanceSymbols) != 2 || cfg.BinanceSymbols[1] != "SOLUSDT" {
		t.Errorf("symbols = %v", cfg.BinanceSymbols)
	}
	if cfg.SlippageBps != 5 {
		t.Errorf("slippage = %v, want 5", cfg.SlippageBps)
	}
	if len(cfg.TelegramChatIDs) != 2 || cfg.TelegramChatIDs[1] != -100345 {
		t.Errorf("chat ids = %v", cfg.TelegramChatIDs)
	}
}
