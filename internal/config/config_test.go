package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Market:      MarketConfig{HoursDatabasePath: "market-hours.json", DefaultMarket: "usa"},
		Universe:    UniverseConfig{SelectionInterval: "1m"},
		Brokerage:   BrokerageConfig{Model: "default"},
		Execution:   ExecutionConfig{},
		Feed:        FeedConfig{},
		Dashboard:   DashboardConfig{Enabled: false},
	}
	cfg.Normalize()
	return cfg
}

func TestValidateAcceptsNormalizedDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected normalized defaults to validate, got: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Environment.Mode = "backtest"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown environment.mode, got nil")
	}
}

func TestValidateRejectsUnknownBrokerageModel(t *testing.T) {
	cfg := validConfig()
	cfg.Brokerage.Model = "ibkr"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown brokerage.model, got nil")
	}
}

func TestValidateRequiresCredentialsInLiveMode(t *testing.T) {
	cfg := validConfig()
	cfg.Environment.Mode = "live"
	cfg.Feed.LiveURL = "wss://example.invalid/stream"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing brokerage credentials in live mode, got nil")
	}

	cfg.Brokerage.APIKey = "key"
	cfg.Brokerage.AccountID = "acct"
	cfg.Brokerage.BaseURL = "https://example.invalid"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected live config with credentials to validate, got: %v", err)
	}
}

func TestValidateRejectsBadCashSyncLocal(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.CashSyncLocal = "not-a-time"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid execution.cash_sync_local, got nil")
	}
}

func TestCashSyncLocalDurationParsesHHMM(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.CashSyncLocal = "07:45"
	d, err := cfg.CashSyncLocalDuration()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "7h45m0s" {
		t.Errorf("expected 7h45m0s, got %s", d)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()

	if cfg.Environment.Mode != "paper" {
		t.Errorf("expected default mode 'paper', got %q", cfg.Environment.Mode)
	}
	if cfg.Execution.QueueDepth != defaultQueueDepth {
		t.Errorf("expected default queue depth %d, got %d", defaultQueueDepth, cfg.Execution.QueueDepth)
	}
	if cfg.Execution.CashSyncLocal != defaultCashSyncLocal {
		t.Errorf("expected default cash sync local %q, got %q", defaultCashSyncLocal, cfg.Execution.CashSyncLocal)
	}
	if cfg.Dashboard.Port != defaultDashboardPort {
		t.Errorf("expected default dashboard port %d, got %d", defaultDashboardPort, cfg.Dashboard.Port)
	}
}

func TestLoadFromExampleFile(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml.example")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("example config not present: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("expected example config to load, got: %v", err)
	}
}

func TestLoadInvalidPath(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("expected error when loading nonexistent config file, got nil")
	}
}
