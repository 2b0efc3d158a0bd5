package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration.
const (
	EnvInitialCapital = "PORTFOLIO_INITIAL_CAPITAL"
	EnvStopLoss       = "PORTFOLIO_STOP_LOSS"
	EnvTakeProfit     = "PORTFOLIO_TAKE_PROFIT"
	EnvMaxPositions   = "PORTFOLIO_MAX_POSITIONS"
	EnvMinTradeSize   = "PORTFOLIO_MIN_TRADE_SIZE"
	EnvLogLevel       = "PORTFOLIO_LOG_LEVEL"
	EnvJournalDB      = "PORTFOLIO_JOURNAL_DB"
	EnvMetricsAddr    = "PORTFOLIO_METRICS_ADDR"
)

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PORTFOLIO_* environment variables and
// re-validates the result.
func (c *Config) ApplyEnv() error {
	floats := []struct {
		key string
		dst *float64
	}{
		{EnvInitialCapital, &c.Account.InitialCapital},
		{EnvStopLoss, &c.Risk.StopLoss},
		{EnvTakeProfit, &c.Risk.TakeProfit},
		{EnvMinTradeSize, &c.Risk.MinTradeSize},
	}
	for _, f := range floats {
		v, ok := os.LookupEnv(f.key)
		if !ok || v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = x
	}

	if v := os.Getenv(EnvMaxPositions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxPositions, err)
		}
		c.Risk.MaxPositions = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvJournalDB); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}

	return c.Validate()
}
