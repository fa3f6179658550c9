// Package config
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/amirphl/zeta-trader/internal/db/conf"
	"github.com/amirphl/zeta-trader/internal/indicator"
	"github.com/amirphl/zeta-trader/internal/market"
	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/safety"
	"github.com/amirphl/zeta-trader/internal/strategy"
	"github.com/amirphl/zeta-trader/internal/tfutils"
	"github.com/amirphl/zeta-trader/internal/trading"
	"github.com/amirphl/zeta-trader/internal/utils"
)

/*
YAML config example:
mode: paper
symbols: ["BTCUSDT", "ETHUSDT"]
timeframe: 1m
starting_balance: 200
position_size: 3
risk:
  initial_stop_pct: 0.01
  final_take_profit_pct: 0.015
safety:
  max_entries_per_minute: 8
  exit_cooldown: 30s
strategy_version: v2
storage:
  driver: sqlite3
  conn_str: ./data/zeta.db
telegram_chat_ids: ["123456"]
*/

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Risk holds the exit ladder as fractions (0.01 is 1%).
type Risk struct {
	InitialStopPct     float64 `yaml:"initial_stop_pct"`
	FrictionCostPct    float64 `yaml:"friction_cost_pct"`
	RiskFreeTriggerPct float64 `yaml:"risk_free_trigger_pct"`
	TP1TriggerPct      float64 `yaml:"tp1_trigger_pct"`
	TP1LockPct         float64 `yaml:"tp1_lock_pct"`
	FinalTakeProfitPct float64 `yaml:"final_take_profit_pct"`
}

type Safety struct {
	MaxConsecutiveLosses int           `yaml:"max_consecutive_losses"`
	MaxEntriesPerMinute  int           `yaml:"max_entries_per_minute"`
	AntiSpamCooldown     time.Duration `yaml:"anti_spam_cooldown"`
	ExitCooldown         time.Duration `yaml:"exit_cooldown"`
	CooldownResetsLosses bool          `yaml:"cooldown_resets_losses"`
}

type Storage struct {
	Driver  string `yaml:"driver"`
	ConnStr string `yaml:"conn_str"`
	MaxOpen int    `yaml:"max_open"`
	MaxIdle int    `yaml:"max_idle"`
}

type MarketSelection struct {
	Enabled        bool    `yaml:"enabled"`
	Quote          string  `yaml:"quote"`
	Count          int     `yaml:"count"`
	MinQuoteVolume float64 `yaml:"min_quote_volume"`
}

type Logging struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Config struct {
	Mode      string   `yaml:"mode"`
	Symbols   []string `yaml:"symbols"`
	Timeframe string   `yaml:"timeframe"`

	StartingBalance   float64       `yaml:"starting_balance"`
	PositionSize      float64       `yaml:"position_size"`
	CommissionPercent float64       `yaml:"commission_percent"`
	MinFillNotional   float64       `yaml:"min_fill_notional"`
	OrderTimeout      time.Duration `yaml:"order_timeout"`

	Risk            Risk            `yaml:"risk"`
	Safety          Safety          `yaml:"safety"`
	StrategyVersion string          `yaml:"strategy_version"`
	StrategyParams  strategy.Params `yaml:"strategy_params"`
	MinCandles      int             `yaml:"min_candles"`
	MarketSelection MarketSelection `yaml:"market_selection"`

	CandleBufferSize int           `yaml:"candle_buffer_size"`
	WarmupCandles    int           `yaml:"warmup_candles"`
	QueueSize        int           `yaml:"queue_size"`
	LogQueueSize     int           `yaml:"log_queue_size"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
	BackupInterval   time.Duration `yaml:"backup_interval"`
	StatsInterval    time.Duration `yaml:"stats_interval"`

	DataDir      string  `yaml:"data_dir"`
	StateFile    string  `yaml:"state_file"`
	TradeLogFile string  `yaml:"trade_log_file"`
	Storage      Storage `yaml:"storage"`

	WallexAPIKey    string `yaml:"wallex_api_key"`
	WallexSocketURL string `yaml:"wallex_socket_url"`

	TelegramToken       string        `yaml:"telegram_token"`
	TelegramChatIDs     []string      `yaml:"telegram_chat_ids"`
	ProxyURL            string        `yaml:"proxy_url"`
	NotificationRetries int           `yaml:"notification_retries"`
	NotificationDelay   time.Duration `yaml:"notification_delay"`

	MetricsAddr string  `yaml:"metrics_addr"`
	Logging     Logging `yaml:"logging"`
}

// Default returns the stock configuration: paper trading 3 USDT entries
// from a 200 USDT balance on 1m candles.
func Default() Config {
	return Config{
		Mode:              ModePaper,
		Symbols:           []string{"BTCUSDT"},
		Timeframe:         "1m",
		StartingBalance:   200,
		PositionSize:      3,
		CommissionPercent: 0,
		MinFillNotional:   1,
		OrderTimeout:      10 * time.Second,
		Risk: Risk{
			InitialStopPct:     0.01,
			FrictionCostPct:    0.003,
			RiskFreeTriggerPct: 0.0045,
			TP1TriggerPct:      0.009,
			TP1LockPct:         0.0045,
			FinalTakeProfitPct: 0.015,
		},
		Safety: Safety{
			MaxConsecutiveLosses: 3,
			MaxEntriesPerMinute:  8,
			AntiSpamCooldown:     15 * time.Second,
			ExitCooldown:         30 * time.Second,
			CooldownResetsLosses: true,
		},
		StrategyVersion: strategy.TrendRangeVersion,
		StrategyParams:  strategy.DefaultParams(),
		MinCandles:      indicator.DefaultParams().MinCandles,
		MarketSelection: MarketSelection{
			Quote:          "USDT",
			Count:          25,
			MinQuoteVolume: 500_000,
		},
		CandleBufferSize:    100,
		WarmupCandles:       100,
		QueueSize:           256,
		LogQueueSize:        1000,
		FlushInterval:       time.Second,
		BackupInterval:      time.Minute,
		StatsInterval:       3 * time.Minute,
		DataDir:             "./data",
		StateFile:           "state_backup.json",
		TradeLogFile:        "trade_logs/trades.csv",
		Storage:             Storage{Driver: conf.DriverMemory, MaxOpen: 10, MaxIdle: 5},
		NotificationRetries: 3,
		NotificationDelay:   5 * time.Second,
		Logging:             Logging{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 14},
	}
}

// Load reads path over Default and applies environment overrides. An empty
// path uses defaults and environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load that exits on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		utils.GetLogger().Fatalf("Config | %v", err)
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WALLEX_API_KEY"); v != "" {
		c.WallexAPIKey = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_IDS"); v != "" {
		c.TelegramChatIDs = splitList(v)
	}
	if v := os.Getenv("DB_CONN_STR"); v != "" {
		c.Storage.ConnStr = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks ranges and cross-field consistency.
func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModePaper && c.Mode != ModeLive {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModePaper, ModeLive, c.Mode))
	}
	if len(c.Symbols) == 0 && !c.MarketSelection.Enabled {
		errs = append(errs, errors.New("no symbols configured and market selection disabled"))
	}
	if !tfutils.IsValidTimeframe(c.Timeframe) {
		errs = append(errs, fmt.Errorf("invalid timeframe %q", c.Timeframe))
	}
	if c.StartingBalance < 0 {
		errs = append(errs, errors.New("starting_balance cannot be negative"))
	}
	if c.PositionSize <= 0 {
		errs = append(errs, errors.New("position_size must be positive"))
	}
	if c.MinFillNotional < 0 || c.MinFillNotional > c.PositionSize {
		errs = append(errs, errors.New("min_fill_notional must be between 0 and position_size"))
	}
	if c.OrderTimeout <= 0 {
		errs = append(errs, errors.New("order_timeout must be positive"))
	}
	r := c.Risk
	if r.InitialStopPct <= 0 || r.InitialStopPct >= 1 {
		errs = append(errs, errors.New("risk.initial_stop_pct must be in (0, 1)"))
	}
	if r.FinalTakeProfitPct <= 0 {
		errs = append(errs, errors.New("risk.final_take_profit_pct must be positive"))
	}
	if r.RiskFreeTriggerPct >= r.TP1TriggerPct {
		errs = append(errs, errors.New("risk.risk_free_trigger_pct must be below tp1_trigger_pct"))
	}
	if r.TP1TriggerPct >= r.FinalTakeProfitPct {
		errs = append(errs, errors.New("risk.tp1_trigger_pct must be below final_take_profit_pct"))
	}
	if c.Safety.MaxConsecutiveLosses < 1 || c.Safety.MaxEntriesPerMinute < 1 {
		errs = append(errs, errors.New("safety limits must be at least 1"))
	}
	if _, err := strategy.New(c.StrategyVersion, c.StrategyParams); err != nil {
		errs = append(errs, err)
	}
	if c.CandleBufferSize < c.MinCandles {
		errs = append(errs, fmt.Errorf("candle_buffer_size %d is below min_candles %d", c.CandleBufferSize, c.MinCandles))
	}
	if c.QueueSize < 1 || c.LogQueueSize < 1 {
		errs = append(errs, errors.New("queue sizes must be at least 1"))
	}
	switch c.Storage.Driver {
	case conf.DriverMemory:
	case conf.DriverPostgres, conf.DriverSQLite:
		if c.Storage.ConnStr == "" {
			errs = append(errs, fmt.Errorf("storage.conn_str is required for %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}
	if c.Mode == ModeLive && c.WallexAPIKey == "" {
		errs = append(errs, errors.New("wallex_api_key is required in live mode"))
	}
	return errors.Join(errs...)
}

// DataPath resolves name inside DataDir unless it is absolute.
func (c Config) DataPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c Config) PositionParams() position.Params {
	return position.Params{
		InitialStopPct:     decimal.NewFromFloat(c.Risk.InitialStopPct),
		FrictionCostPct:    decimal.NewFromFloat(c.Risk.FrictionCostPct),
		RiskFreeTriggerPct: decimal.NewFromFloat(c.Risk.RiskFreeTriggerPct),
		TP1TriggerPct:      decimal.NewFromFloat(c.Risk.TP1TriggerPct),
		TP1LockPct:         decimal.NewFromFloat(c.Risk.TP1LockPct),
		FinalTakeProfitPct: decimal.NewFromFloat(c.Risk.FinalTakeProfitPct),
	}
}

func (c Config) SafetyParams() safety.Params {
	p := safety.DefaultParams()
	p.MaxConsecutiveLosses = c.Safety.MaxConsecutiveLosses
	p.MaxEntriesPerMinute = c.Safety.MaxEntriesPerMinute
	p.AntiSpamCooldown = c.Safety.AntiSpamCooldown
	p.ExitCooldown = c.Safety.ExitCooldown
	p.CooldownResetsLosses = c.Safety.CooldownResetsLosses
	p.PositionSize = decimal.NewFromFloat(c.PositionSize)
	return p
}

func (c Config) IndicatorParams() indicator.Params {
	p := indicator.DefaultParams()
	p.MinCandles = c.MinCandles
	return p
}

func (c Config) TradingConfig() trading.Config {
	mode := "Paper"
	if c.Mode == ModeLive {
		mode = "Live"
	}
	return trading.Config{
		Mode:                   mode,
		PositionSize:           decimal.NewFromFloat(c.PositionSize),
		CommissionPct:          decimal.NewFromFloat(c.CommissionPercent).Div(decimal.NewFromInt(100)),
		MinFillNotional:        decimal.NewFromFloat(c.MinFillNotional),
		OrderTimeout:           c.OrderTimeout,
		ExitFailureNotifyEvery: 10,
	}
}

func (c Config) SelectorConfig() market.SelectorConfig {
	fallback := ""
	if len(c.Symbols) > 0 {
		fallback = c.Symbols[0]
	}
	return market.SelectorConfig{
		Quote:          c.MarketSelection.Quote,
		Count:          c.MarketSelection.Count,
		MinQuoteVolume: c.MarketSelection.MinQuoteVolume,
		Fallback:       fallback,
	}
}
