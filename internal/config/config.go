// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Engine defaults, used by Normalize when a section is left unset.
const (
	defaultQueueDepth       = 256
	defaultCashSyncLocal    = "07:45"
	defaultUniverseInterval = "1m"
	defaultGatewayTimeout   = 10 * time.Second
	defaultRateLimit        = time.Second
	defaultDashboardPort    = 9847
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Market      MarketConfig      `yaml:"market"`
	Universe    UniverseConfig    `yaml:"universe"`
	Brokerage   BrokerageConfig   `yaml:"brokerage"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Feed        FeedConfig        `yaml:"feed"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// MarketConfig locates the exchange-hours database the calendar package
// loads at startup (spec §4.B's MarketHoursDatabase).
type MarketConfig struct {
	HoursDatabasePath string `yaml:"hours_database_path"`
	DefaultMarket     string `yaml:"default_market"`
}

// UniverseConfig configures how often universe selection re-runs (spec
// §4.E step 1's periodic SelectSymbols call).
type UniverseConfig struct {
	SelectionInterval     string   `yaml:"selection_interval"`
	MinimumTimeInUniverse string   `yaml:"minimum_time_in_universe"`
	Symbols               []string `yaml:"symbols"` // static candidate tickers, resolved against market.DefaultMarket
}

// BrokerageConfig selects the BrokerageModel variant and its live gateway
// settings (spec §4.F).
type BrokerageConfig struct {
	Model          string        `yaml:"model"` // default | fxcm | oanda | tradier
	APIKey         string        `yaml:"api_key"`
	AccountID      string        `yaml:"account_id"`
	BaseURL        string        `yaml:"base_url"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
}

// ExecutionConfig configures the transaction handler (spec §4.G).
type ExecutionConfig struct {
	QueueDepth    int    `yaml:"queue_depth"`
	CashSyncLocal string `yaml:"cash_sync_local"` // "HH:MM", compared against the UTC time-of-day
}

// FeedConfig configures the data enumerator pipeline (spec §4.C).
type FeedConfig struct {
	LiveURL       string        `yaml:"live_url"`
	RateLimit     time.Duration `yaml:"rate_limit"`
	FillForward   bool          `yaml:"fill_forward"`
	ExtendedHours bool          `yaml:"extended_hours"`
}

// DashboardConfig defines web dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable web dashboard
	Port      int    `yaml:"port"`       // HTTP server port
	AuthToken string `yaml:"auth_token"` // Optional authentication token
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// CashSyncLocalDuration parses ExecutionConfig.CashSyncLocal ("HH:MM") into
// the time-of-day offset execution.Config.CashSyncLocal expects.
func (c *Config) CashSyncLocalDuration() (time.Duration, error) {
	t, err := time.Parse("15:04", c.Execution.CashSyncLocal)
	if err != nil {
		return 0, fmt.Errorf("execution.cash_sync_local invalid: %w", err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// SelectionIntervalDuration parses UniverseConfig.SelectionInterval.
func (c *Config) SelectionIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Universe.SelectionInterval)
	if err != nil {
		return 0, fmt.Errorf("universe.selection_interval invalid: %w", err)
	}
	return d, nil
}

// MinimumTimeInUniverseDuration parses UniverseConfig.MinimumTimeInUniverse.
func (c *Config) MinimumTimeInUniverseDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Universe.MinimumTimeInUniverse) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Universe.MinimumTimeInUniverse)
	if err != nil {
		return 0, fmt.Errorf("universe.minimum_time_in_universe invalid: %w", err)
	}
	return d, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Market.HoursDatabasePath) == "" {
		return fmt.Errorf("market.hours_database_path is required")
	}
	if strings.TrimSpace(c.Market.DefaultMarket) == "" {
		return fmt.Errorf("market.default_market is required")
	}

	if _, err := c.SelectionIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.MinimumTimeInUniverseDuration(); err != nil {
		return err
	}

	switch strings.ToLower(c.Brokerage.Model) {
	case "default", "fxcm", "oanda", "tradier":
	default:
		return fmt.Errorf("brokerage.model must be one of: default, fxcm, oanda, tradier")
	}
	if c.Environment.Mode == "live" {
		if strings.TrimSpace(c.Brokerage.APIKey) == "" {
			return fmt.Errorf("brokerage.api_key is required in live mode")
		}
		if strings.TrimSpace(c.Brokerage.AccountID) == "" {
			return fmt.Errorf("brokerage.account_id is required in live mode")
		}
		if strings.TrimSpace(c.Brokerage.BaseURL) == "" {
			return fmt.Errorf("brokerage.base_url is required in live mode")
		}
	}
	if c.Brokerage.GatewayTimeout <= 0 {
		return fmt.Errorf("brokerage.gateway_timeout must be > 0")
	}

	if c.Execution.QueueDepth <= 0 {
		return fmt.Errorf("execution.queue_depth must be > 0")
	}
	if _, err := c.CashSyncLocalDuration(); err != nil {
		return err
	}

	if c.Feed.RateLimit < 0 {
		return fmt.Errorf("feed.rate_limit must be >= 0")
	}
	if c.Environment.Mode == "live" && strings.TrimSpace(c.Feed.LiveURL) == "" {
		return fmt.Errorf("feed.live_url is required in live mode")
	}

	if c.Dashboard.Enabled {
		if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Normalize sets default values for configuration fields left unset.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if strings.TrimSpace(c.Market.DefaultMarket) == "" {
		c.Market.DefaultMarket = "usa"
	}
	if strings.TrimSpace(c.Universe.SelectionInterval) == "" {
		c.Universe.SelectionInterval = defaultUniverseInterval
	}
	if strings.TrimSpace(c.Brokerage.Model) == "" {
		c.Brokerage.Model = "default"
	}
	if c.Brokerage.GatewayTimeout == 0 {
		c.Brokerage.GatewayTimeout = defaultGatewayTimeout
	}
	if c.Execution.QueueDepth == 0 {
		c.Execution.QueueDepth = defaultQueueDepth
	}
	if strings.TrimSpace(c.Execution.CashSyncLocal) == "" {
		c.Execution.CashSyncLocal = defaultCashSyncLocal
	}
	if c.Feed.RateLimit == 0 {
		c.Feed.RateLimit = defaultRateLimit
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}
