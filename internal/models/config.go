package models

import (
	"fmt"
	"strings"
)

// TradingMode selects how orders are executed and where prices come from.
type TradingMode string

const (
	ModeBacktest TradingMode = "backtest"
	ModePaper    TradingMode = "paper"
	ModeLive     TradingMode = "live"
)

// ParseTradingMode validates a mode string from config or CLI.
func ParseTradingMode(s string) (TradingMode, error) {
	switch TradingMode(strings.ToLower(s)) {
	case ModeBacktest:
		return ModeBacktest, nil
	case ModePaper:
		return ModePaper, nil
	case ModeLive:
		return ModeLive, nil
	}
	return "", fmt.Errorf("invalid trading mode %q: must be backtest, paper or live", s)
}

// SpacingType selects how grid prices are spaced between the range bounds.
type SpacingType string

const (
	SpacingArithmetic SpacingType = "arithmetic"
	SpacingGeometric  SpacingType = "geometric"
)

// Config holds all bot configuration loaded from the JSON config file.
type Config struct {
	Mode   string `json:"mode"`   // "backtest", "paper" or "live"
	Symbol string `json:"symbol"` // trading pair, e.g. "BTCUSDT"

	LiveAPIURL    string `json:"live_api_url"`
	LiveWSURL     string `json:"live_ws_url"`
	TestnetAPIURL string `json:"testnet_api_url"`
	TestnetWSURL  string `json:"testnet_ws_url"`

	// Grid definition.
	BottomRange       float64 `json:"bottom_range"`
	TopRange          float64 `json:"top_range"`
	NumGrids          int     `json:"num_grids"`
	SpacingType       string  `json:"spacing_type"`       // "arithmetic" or "geometric"
	PercentageSpacing float64 `json:"percentage_spacing"` // geometric only, per-step ratio

	// Fees and seed balances. Seed balances apply in backtest mode; live and
	// paper fetch balances from the exchange at startup.
	TradingFee           float64 `json:"trading_fee"`
	InitialBalance       float64 `json:"initial_balance"`
	InitialCryptoBalance float64 `json:"initial_crypto_balance"`

	// Risk thresholds; zero disables the corresponding exit.
	TakeProfitThreshold float64 `json:"take_profit_threshold,omitempty"`
	StopLossThreshold   float64 `json:"stop_loss_threshold,omitempty"`

	// Execution strategy tuning.
	MaxRetries   int     `json:"max_retries"`
	RetryDelayMs int     `json:"retry_delay_ms"`
	MaxSlippage  float64 `json:"max_slippage"`

	PollingIntervalSec float64 `json:"polling_interval_sec"` // order status poll cadence

	JournalPath    string `json:"journal_path,omitempty"`    // badger trade journal; empty keeps it in memory
	MonitoringAddr string `json:"monitoring_addr,omitempty"` // health/metrics HTTP listen address
	WebhookURL     string `json:"webhook_url,omitempty"`     // notification sink

	Log LogConfig `json:"log"`
}

// LogConfig controls the zap logger setup.
type LogConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Output     string `json:"output"`      // "console", "file", "both"
	File       string `json:"file"`        // log file path
	MaxSize    int    `json:"max_size"`    // max size per file in MB
	MaxBackups int    `json:"max_backups"` // rotated files to keep
	MaxAge     int    `json:"max_age"`     // days to keep rotated files
	Compress   bool   `json:"compress"`
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := ParseTradingMode(c.Mode); err != nil {
		return err
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol must be set")
	}
	if c.BottomRange <= 0 || c.TopRange <= c.BottomRange {
		return fmt.Errorf("invalid grid range: bottom=%.8f top=%.8f", c.BottomRange, c.TopRange)
	}
	if c.NumGrids < 2 {
		return fmt.Errorf("num_grids must be at least 2, got %d", c.NumGrids)
	}
	switch SpacingType(c.SpacingType) {
	case SpacingArithmetic:
	case SpacingGeometric:
		if c.PercentageSpacing <= 0 {
			return fmt.Errorf("percentage_spacing must be positive for geometric spacing")
		}
	default:
		return fmt.Errorf("invalid spacing_type %q: must be arithmetic or geometric", c.SpacingType)
	}
	if c.TradingFee < 0 {
		return fmt.Errorf("trading_fee cannot be negative")
	}
	if TradingMode(c.Mode) == ModeBacktest && c.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive in backtest mode")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelayMs <= 0 {
		c.RetryDelayMs = 1000
	}
	if c.MaxSlippage <= 0 {
		c.MaxSlippage = 0.01
	}
	if c.PollingIntervalSec <= 0 {
		c.PollingIntervalSec = 15
	}
	return nil
}

// TradingMode returns the validated mode. Call Validate first.
func (c *Config) TradingMode() TradingMode {
	mode, _ := ParseTradingMode(c.Mode)
	return mode
}
