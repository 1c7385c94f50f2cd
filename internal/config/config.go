// Package config loads and validates the application configuration.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the main configuration carrier.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Market MarketConfig `mapstructure:"market"`
	Engine EngineConfig `mapstructure:"engine"`
	Risk   RiskConfig   `mapstructure:"risk"`
}

type AppConfig struct {
	Env            string `mapstructure:"env"`
	LogLevel       string `mapstructure:"log_level"`
	LogPath        string `mapstructure:"log_path"`
	HTTPAddr       string `mapstructure:"http_addr"`
	DBPath         string `mapstructure:"db_path"`
	StrategiesPath string `mapstructure:"strategies_path"`
}

type LedgerConfig struct {
	InitialBalance  float64 `mapstructure:"initial_balance"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds"`
}

// MarketConfig selects and tunes the price source. Provider "static" serves
// prices pushed over the API, "binance" pulls spot tickers.
type MarketConfig struct {
	Provider        string             `mapstructure:"provider"`
	RESTBaseURL     string             `mapstructure:"rest_base_url"`
	TimeoutSeconds  int                `mapstructure:"timeout_seconds"`
	CacheTTLSeconds int                `mapstructure:"cache_ttl_seconds"`
	StaticPrices    map[string]float64 `mapstructure:"static_prices"`
}

type EngineConfig struct {
	CycleIntervalSeconds int  `mapstructure:"cycle_interval_seconds"`
	CycleOffsetSeconds   int  `mapstructure:"cycle_offset_seconds"`
	RunImmediately       bool `mapstructure:"run_immediately"`
}

type RiskConfig struct {
	CashReservePct float64           `mapstructure:"cash_reserve_pct"`
	Sectors        map[string]string `mapstructure:"sectors"`
}

// Load reads the yaml config at path, fills defaults and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8780"
	}
	if c.App.DBPath == "" {
		c.App.DBPath = "data/papertrade.db"
	}
	if c.App.StrategiesPath == "" {
		c.App.StrategiesPath = "configs/strategies.yaml"
	}
	if c.Ledger.InitialBalance == 0 {
		c.Ledger.InitialBalance = 100000
	}
	if c.Ledger.CacheTTLSeconds <= 0 {
		c.Ledger.CacheTTLSeconds = 5
	}
	if c.Market.Provider == "" {
		c.Market.Provider = "binance"
	}
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = 10
	}
	if c.Market.CacheTTLSeconds <= 0 {
		c.Market.CacheTTLSeconds = 5
	}
	if c.Engine.CycleIntervalSeconds <= 0 {
		c.Engine.CycleIntervalSeconds = 60
	}
	if c.Engine.CycleOffsetSeconds < 0 {
		c.Engine.CycleOffsetSeconds = 0
	}
}

func validate(c *Config) error {
	if c.Ledger.InitialBalance < 0 {
		return fmt.Errorf("ledger.initial_balance must be >= 0")
	}
	switch c.Market.Provider {
	case "binance", "static":
	default:
		return fmt.Errorf("market.provider must be binance or static, got %q", c.Market.Provider)
	}
	if c.Risk.CashReservePct < 0 || c.Risk.CashReservePct >= 1 {
		return fmt.Errorf("risk.cash_reserve_pct must be in [0, 1)")
	}
	return nil
}
