package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/portfolio/market"
	"gopkg.in/yaml.v3"
)

// Config represents the complete engine and backtest configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Analyzer AnalyzerConfig `json:"analyzer" yaml:"analyzer"`
	Costs    CostConfig     `json:"costs" yaml:"costs"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

// RiskConfig drives position sizing and exit rules.
type RiskConfig struct {
	PositionLimits       map[market.RiskProfile]float64 `json:"position_limits" yaml:"position_limits"`
	ConfidenceThresholds ConfidenceThresholds           `json:"confidence_thresholds" yaml:"confidence_thresholds"`

	StopLoss   float64 `json:"stop_loss" yaml:"stop_loss"`     // fraction of cost basis, e.g. 0.05
	TakeProfit float64 `json:"take_profit" yaml:"take_profit"` // fraction of cost basis, e.g. 0.15

	MaxPositions       int     `json:"max_positions" yaml:"max_positions"`
	MinTradeSize       float64 `json:"min_trade_size" yaml:"min_trade_size"`
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"` // of initial capital

	Adjustments AdjustmentConfig `json:"adjustments" yaml:"adjustments"`
}

type ConfidenceThresholds struct {
	High   float64 `json:"high" yaml:"high"`
	Medium float64 `json:"medium" yaml:"medium"`
	Low    float64 `json:"low" yaml:"low"`
}

// AdjustmentConfig scales the base size by gap and correlation risk.
type AdjustmentConfig struct {
	GapRiskMultiplier         float64 `json:"gap_risk_multiplier" yaml:"gap_risk_multiplier"`
	MinGapFactor              float64 `json:"min_gap_factor" yaml:"min_gap_factor"`
	CorrelationRiskMultiplier float64 `json:"correlation_risk_multiplier" yaml:"correlation_risk_multiplier"`
	MinCorrelationFactor      float64 `json:"min_correlation_factor" yaml:"min_correlation_factor"`
	MaxDiversificationBonus   float64 `json:"max_diversification_bonus" yaml:"max_diversification_bonus"`
}

// AnalyzerConfig contains gap and VaR parameters for the risk analyzer.
type AnalyzerConfig struct {
	GapThreshold       float64 `json:"gap_threshold" yaml:"gap_threshold"`
	SlippageMultiplier float64 `json:"slippage_multiplier" yaml:"slippage_multiplier"`
	VaRConfidence      float64 `json:"var_confidence" yaml:"var_confidence"`
}

// CostConfig is applied when transactions are built from a reference price.
type CostConfig struct {
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
	SlippageRate   float64 `json:"slippage_rate" yaml:"slippage_rate"`
}

// HistoryConfig sets ring buffer capacities.
type HistoryConfig struct {
	Transactions    int `json:"transactions" yaml:"transactions"`
	ClosedPositions int `json:"closed_positions" yaml:"closed_positions"`
	States          int `json:"states" yaml:"states"`
	Audit           int `json:"audit" yaml:"audit"`
}

type BacktestConfig struct {
	Lookback int  `json:"lookback" yaml:"lookback"` // candles kept per symbol for risk data
	Parallel bool `json:"parallel" yaml:"parallel"`
	Workers  int  `json:"workers" yaml:"workers"`
	CloseEnd bool `json:"close_end" yaml:"close_end"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type             string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TransactionsFile string `json:"transactions_file,omitempty" yaml:"transactions_file,omitempty"`
	EquityFile       string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath           string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables the HTTP endpoint
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields
// missing from the file keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML or JSON based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func fraction(name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s must be in (0, 1]", name)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}

	r := c.Risk
	for _, p := range market.Profiles {
		v, ok := r.PositionLimits[p]
		if !ok {
			return fmt.Errorf("risk.position_limits.%s is required", p)
		}
		if err := fraction("risk.position_limits."+string(p), v); err != nil {
			return err
		}
	}
	for p := range r.PositionLimits {
		if !p.Valid() {
			return fmt.Errorf("risk.position_limits: unknown profile %q", p)
		}
	}

	ct := r.ConfidenceThresholds
	if !(0 <= ct.Low && ct.Low <= ct.Medium && ct.Medium <= ct.High && ct.High <= 1) {
		return fmt.Errorf("risk.confidence_thresholds must satisfy 0 <= low <= medium <= high <= 1")
	}
	if err := fraction("risk.stop_loss", r.StopLoss); err != nil {
		return err
	}
	if r.TakeProfit <= 0 {
		return fmt.Errorf("risk.take_profit must be positive")
	}
	if r.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if r.MinTradeSize < 0 {
		return fmt.Errorf("risk.min_trade_size must not be negative")
	}
	if err := fraction("risk.max_position_size_pct", r.MaxPositionSizePct); err != nil {
		return err
	}

	a := r.Adjustments
	if a.GapRiskMultiplier < 0 || a.CorrelationRiskMultiplier < 0 {
		return fmt.Errorf("risk.adjustments multipliers must not be negative")
	}
	if err := fraction("risk.adjustments.min_gap_factor", a.MinGapFactor); err != nil {
		return err
	}
	if err := fraction("risk.adjustments.min_correlation_factor", a.MinCorrelationFactor); err != nil {
		return err
	}
	if a.MaxDiversificationBonus < 1 {
		return fmt.Errorf("risk.adjustments.max_diversification_bonus must be >= 1")
	}

	if c.Analyzer.GapThreshold <= 0 {
		return fmt.Errorf("analyzer.gap_threshold must be positive")
	}
	if c.Analyzer.SlippageMultiplier < 0 {
		return fmt.Errorf("analyzer.slippage_multiplier must not be negative")
	}
	if c.Analyzer.VaRConfidence <= 0 || c.Analyzer.VaRConfidence >= 1 {
		return fmt.Errorf("analyzer.var_confidence must be in (0, 1)")
	}

	if c.Costs.CommissionRate < 0 || c.Costs.SlippageRate < 0 {
		return fmt.Errorf("costs must not be negative")
	}

	h := c.History
	if h.Transactions <= 0 || h.ClosedPositions <= 0 || h.States <= 0 || h.Audit <= 0 {
		return fmt.Errorf("history capacities must be positive")
	}

	if c.Backtest.Lookback < 2 {
		return fmt.Errorf("backtest.lookback must be at least 2")
	}
	if c.Backtest.Parallel && c.Backtest.Workers <= 0 {
		return fmt.Errorf("backtest.workers must be positive when parallel")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TransactionsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal transactions_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:             "BT-001",
			InitialCapital: 100000,
		},
		Risk: RiskConfig{
			PositionLimits: map[market.RiskProfile]float64{
				market.Aggressive:   0.3,
				market.Neutral:      0.2,
				market.Conservative: 0.1,
			},
			ConfidenceThresholds: ConfidenceThresholds{High: 0.8, Medium: 0.5, Low: 0.2},
			StopLoss:             0.05,
			TakeProfit:           0.15,
			MaxPositions:         10,
			MinTradeSize:         100,
			MaxPositionSizePct:   0.9,
			Adjustments: AdjustmentConfig{
				GapRiskMultiplier:         2.0,
				MinGapFactor:              0.5,
				CorrelationRiskMultiplier: 0.5,
				MinCorrelationFactor:      0.5,
				MaxDiversificationBonus:   1.2,
			},
		},
		Analyzer: AnalyzerConfig{
			GapThreshold:       0.02,
			SlippageMultiplier: 0.5,
			VaRConfidence:      0.95,
		},
		Costs: CostConfig{
			CommissionRate: 0.001,
			SlippageRate:   0.0005,
		},
		History: HistoryConfig{
			Transactions:    10000,
			ClosedPositions: 1000,
			States:          10000,
			Audit:           10000,
		},
		Backtest: BacktestConfig{
			Lookback: 60,
			Workers:  4,
			CloseEnd: true,
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
