package config

import "testing"

func TestLoadDefaultsToDryRunWithoutCredentials(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != EnvironmentDryRun {
		t.Fatalf("expected default DRY_RUN, got %s", cfg.Environment)
	}
	if !cfg.Trading.DryRun {
		t.Fatalf("expected Trading.DryRun true in DRY_RUN environment")
	}
}

func TestLoadRejectsLiveWithoutCredentials(t *testing.T) {
	t.Setenv("ENVIRONMENT", "LIVE")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error requiring credentials in LIVE")
	}
}

func TestLoadParsesSymbolList(t *testing.T) {
	t.Setenv("ENVIRONMENT", "DRY_RUN")
	t.Setenv("TRADING_SYMBOLS", "btcusdt, ethusdt,SOLUSDT")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if len(cfg.Trading.Symbols) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Trading.Symbols)
	}
	for i, s := range want {
		if cfg.Trading.Symbols[i] != s {
			t.Fatalf("expected %v, got %v", want, cfg.Trading.Symbols)
		}
	}
}

func TestInvalidEnvironmentRejected(t *testing.T) {
	t.Setenv("ENVIRONMENT", "PRODUCTION")
	if _, err := Load(); err == nil {
		t.Fatalf("expected rejection of unknown ENVIRONMENT value")
	}
}
