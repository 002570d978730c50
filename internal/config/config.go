// Package config provides application-wide configuration management.
// All configuration is loaded from a JSON file, with environment-variable
// overrides for deployment-specific values. No configuration is hardcoded
// in strategy, broker, or risk logic.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Mode controls whether the engine actually routes orders to a broker or
// only simulates them against the MockBroker.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Config holds all system configuration. Loaded once at startup and passed
// as read-only to every component; only the Risk sub-document is
// hot-reloadable (see ConfigWatcher).
type Config struct {
	// ActiveBroker selects a registered broker.Adapter by name (e.g. "mock",
	// "easytrader").
	ActiveBroker string `json:"active_broker"`

	// TradingMode controls whether orders are actually placed (live) or
	// routed to the in-process MockBroker (paper).
	TradingMode Mode `json:"trading_mode"`

	// Capital is the total starting capital available for trading, in CNY.
	Capital float64 `json:"capital"`

	// Symbols is the static universe the engine subscribes to and runs
	// strategies over, in "<code>.<MIC>" form.
	Symbols []string `json:"symbols"`

	// Strategies lists the active strategy IDs and, optionally, a path to a
	// YAML parameter overlay for each.
	Strategies []StrategyConfig `json:"strategies"`

	// Risk configuration limits.
	Risk RiskConfig `json:"risk"`

	// Simulator configuration (market-impact model, participation cap).
	Simulator SimulatorConfig `json:"simulator"`

	// Cost configuration (commission, stamp tax, transfer fee rates).
	Cost CostConfig `json:"cost"`

	// Paths for filesystem-based artifacts: logs, cached market data.
	Paths PathsConfig `json:"paths"`

	// Broker-specific configuration (API keys, endpoints), keyed by broker name.
	BrokerConfig map[string]json.RawMessage `json:"broker_config"`

	// DatabaseURL is the Postgres connection string backing the persistent
	// cache and the order store.
	DatabaseURL string `json:"database_url"`

	// MarketCalendarPath points to the exchange holiday calendar data file.
	MarketCalendarPath string `json:"market_calendar_path"`

	// PollingIntervalMinutes is how often the scheduler's MARKET_HOUR jobs run.
	PollingIntervalMinutes int `json:"polling_interval_minutes"`

	// Webhook server configuration for receiving broker postback notifications.
	Webhook WebhookConfig `json:"webhook"`

	// Dashboard server configuration.
	Dashboard DashboardConfig `json:"dashboard"`
}

// StrategyConfig names one active strategy and an optional YAML parameter
// overlay path. Overlay files let an operator tune a strategy's numeric
// parameters without touching the JSON config or recompiling.
type StrategyConfig struct {
	ID          string `json:"id"`
	OverlayPath string `json:"overlay_path,omitempty"`
}

// LoadOverlay reads and parses a strategy's YAML parameter overlay into dst.
// Returns nil without error if OverlayPath is empty (no overlay configured).
func (s StrategyConfig) LoadOverlay(dst any) error {
	if s.OverlayPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.OverlayPath)
	if err != nil {
		return fmt.Errorf("config: read strategy overlay %s: %w", s.OverlayPath, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("config: parse strategy overlay %s: %w", s.OverlayPath, err)
	}
	return nil
}

// WebhookConfig holds settings for the order postback HTTP server.
type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// DashboardConfig holds settings for the websocket dashboard server.
type DashboardConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// TrailingStopConfig enables a position-level trailing stop tracked by
// Portfolio off the position's post-entry high-water mark.
type TrailingStopConfig struct {
	Enabled       bool    `json:"enabled"`
	TrailPct      float64 `json:"trail_pct"`
	ActivationPct float64 `json:"activation_pct"` // trailing arms only once unrealized gain exceeds this
}

// CircuitBreakerConfig configures the automatic trading halt on repeated
// failures.
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	MaxFailuresPerHour     int `json:"max_failures_per_hour"`
	CooldownMinutes        int `json:"cooldown_minutes"`
}

// RiskConfig defines hard risk guardrails enforced by internal/risk. These
// limits cannot be overridden by strategies.
//
// MaxRiskPerTradePct, MaxDailyLossPct, MaxCapitalDeploymentPct, and
// MaxPerSectorPct are percent-numerals (1.0 means 1%). MaxPositionPct and
// MaxTotalExposure are plain fractions in [0, 1] — they gate a position or
// the whole book against total assets directly, not against a percentage
// of a percentage.
type RiskConfig struct {
	MaxRiskPerTradePct      float64 `json:"max_risk_per_trade_pct"`
	MaxOpenPositions        int     `json:"max_open_positions"`
	MaxDailyLossPct         float64 `json:"max_daily_loss_pct"`
	MaxCapitalDeploymentPct float64 `json:"max_capital_deployment_pct"`

	// MaxPerSectorPct caps the notional of open positions sharing a CSRC/SW
	// industry code, as a percentage of total capital.
	MaxPerSectorPct float64 `json:"max_per_sector_pct"`

	// MaxHoldDays force-flags a position for exit once held this long.
	MaxHoldDays int `json:"max_hold_days"`

	// MaxPositionPct caps a single symbol's projected position value
	// (existing quantity + the proposed BUY) as a fraction of total assets.
	MaxPositionPct float64 `json:"max_position_pct"`

	// MaxTotalExposure caps (current stock value + proposed order notional)
	// as a fraction of total assets.
	MaxTotalExposure float64 `json:"max_total_exposure"`

	// MaxOrderValue and MinOrderValue bound a single order's notional
	// (price * quantity), in CNY. An order outside this band is rejected
	// before any other check runs.
	MaxOrderValue float64 `json:"max_order_value"`
	MinOrderValue float64 `json:"min_order_value"`

	TrailingStop   TrailingStopConfig   `json:"trailing_stop"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
}

// SimulatorConfig mirrors internal/simulator.Config in JSON form.
type SimulatorConfig struct {
	ImpactModel          string  `json:"impact_model"` // "linear" | "sqrt"
	BaseImpact           float64 `json:"base_impact"`
	MaxParticipationRate float64 `json:"max_participation_rate"`
}

// CostConfig mirrors internal/cost.Config in JSON form.
type CostConfig struct {
	CommissionRate   float64 `json:"commission_rate"`
	MinCommission    float64 `json:"min_commission"`
	StampTaxRate     float64 `json:"stamp_tax_rate"`
	TransferFeeRate  float64 `json:"transfer_fee_rate"`
	MarketImpactRate float64 `json:"market_impact_rate"`
}

// PathsConfig defines filesystem paths for logs and cached market data.
type PathsConfig struct {
	AIOutputDir   string `json:"ai_output_dir"`
	MarketDataDir string `json:"market_data_dir"`
	LogDir        string `json:"log_dir"`
}

// liveConfirmedEnv is the environment variable that must be set to exactly
// "true" for a live-mode engine invocation to proceed past the safety gate;
// a --confirm-live flag alone is not sufficient (see cmd/engine).
const liveConfirmedEnv = "ALGOTRADE_LIVE_CONFIRMED"

// Load reads configuration from a JSON file. Environment variables override
// select deployment-specific fields.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	if v := os.Getenv("ALGOTRADE_TRADING_MODE"); v != "" {
		cfg.TradingMode = Mode(v)
	}
	if v := os.Getenv("ALGOTRADE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ALGOTRADE_ACTIVE_BROKER"); v != "" {
		cfg.ActiveBroker = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.ActiveBroker == "" {
		return fmt.Errorf("active_broker is required")
	}
	if c.TradingMode != ModePaper && c.TradingMode != ModeLive {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if c.Capital <= 0 {
		return fmt.Errorf("capital must be positive, got %f", c.Capital)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must list at least one instrument")
	}
	if c.Risk.MaxRiskPerTradePct <= 0 || c.Risk.MaxRiskPerTradePct > 100 {
		return fmt.Errorf("max_risk_per_trade_pct must be in (0, 100], got %f", c.Risk.MaxRiskPerTradePct)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive, got %d", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100 {
		return fmt.Errorf("max_daily_loss_pct must be in (0, 100], got %f", c.Risk.MaxDailyLossPct)
	}
	if c.Risk.MaxCapitalDeploymentPct <= 0 || c.Risk.MaxCapitalDeploymentPct > 100 {
		return fmt.Errorf("max_capital_deployment_pct must be in (0, 100], got %f", c.Risk.MaxCapitalDeploymentPct)
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct must be in (0, 1], got %f", c.Risk.MaxPositionPct)
	}
	if c.Risk.MaxTotalExposure <= 0 || c.Risk.MaxTotalExposure > 1 {
		return fmt.Errorf("max_total_exposure must be in (0, 1], got %f", c.Risk.MaxTotalExposure)
	}
	if c.Risk.MinOrderValue <= 0 {
		return fmt.Errorf("min_order_value must be positive, got %f", c.Risk.MinOrderValue)
	}
	if c.Risk.MaxOrderValue <= c.Risk.MinOrderValue {
		return fmt.Errorf("max_order_value (%f) must exceed min_order_value (%f)", c.Risk.MaxOrderValue, c.Risk.MinOrderValue)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	if c.TradingMode == ModeLive {
		if err := c.validateLiveMode(); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	return nil
}

// validateLiveMode enforces extra safety checks when running with real
// money, including ALGOTRADE_LIVE_CONFIRMED=true in the process
// environment; cmd/engine additionally requires the --confirm-live flag
// before it will construct a live broker adapter — a config-file flip alone
// can never enable live trading.
func (c *Config) validateLiveMode() error {
	if c.BrokerConfig == nil {
		return fmt.Errorf("broker_config is required for live trading")
	}
	if _, ok := c.BrokerConfig[c.ActiveBroker]; !ok {
		return fmt.Errorf("broker_config[%q] is required for live trading", c.ActiveBroker)
	}
	if os.Getenv(liveConfirmedEnv) != "true" {
		return fmt.Errorf("%s must be set to \"true\" in the environment to run live", liveConfirmedEnv)
	}

	if c.Risk.MaxOpenPositions > 5 {
		return fmt.Errorf("max_open_positions cannot exceed 5 in live mode (got %d)", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxRiskPerTradePct > 2.0 {
		return fmt.Errorf("max_risk_per_trade_pct cannot exceed 2%% in live mode (got %.1f%%)", c.Risk.MaxRiskPerTradePct)
	}
	if c.Risk.MaxCapitalDeploymentPct > 70.0 {
		return fmt.Errorf("max_capital_deployment_pct cannot exceed 70%% in live mode (got %.1f%%)", c.Risk.MaxCapitalDeploymentPct)
	}
	if c.Risk.MaxTotalExposure > 0.90 {
		return fmt.Errorf("max_total_exposure cannot exceed 0.90 in live mode (got %.2f)", c.Risk.MaxTotalExposure)
	}

	return nil
}
