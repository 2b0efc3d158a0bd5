package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/portfolio/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 100000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.2, cfg.Risk.PositionLimits[market.Neutral])
	assert.Equal(t, 0.8, cfg.Risk.ConfidenceThresholds.High)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "non positive capital",
			mutate: func(c *Config) { c.Account.InitialCapital = 0 },
			errMsg: "account.initial_capital must be positive",
		},
		{
			name:   "missing profile limit",
			mutate: func(c *Config) { delete(c.Risk.PositionLimits, market.Conservative) },
			errMsg: "risk.position_limits.conservative is required",
		},
		{
			name:   "unknown profile",
			mutate: func(c *Config) { c.Risk.PositionLimits["reckless"] = 0.5 },
			errMsg: "unknown profile",
		},
		{
			name:   "thresholds out of order",
			mutate: func(c *Config) { c.Risk.ConfidenceThresholds.Medium = 0.9 },
			errMsg: "risk.confidence_thresholds",
		},
		{
			name:   "stop loss above one",
			mutate: func(c *Config) { c.Risk.StopLoss = 1.5 },
			errMsg: "risk.stop_loss must be in (0, 1]",
		},
		{
			name:   "no positions",
			mutate: func(c *Config) { c.Risk.MaxPositions = 0 },
			errMsg: "risk.max_positions must be positive",
		},
		{
			name:   "bonus below one",
			mutate: func(c *Config) { c.Risk.Adjustments.MaxDiversificationBonus = 0.5 },
			errMsg: "max_diversification_bonus",
		},
		{
			name:   "var confidence",
			mutate: func(c *Config) { c.Analyzer.VaRConfidence = 1 },
			errMsg: "analyzer.var_confidence",
		},
		{
			name:   "sqlite without path",
			mutate: func(c *Config) { c.Journal.Type = "sqlite" },
			errMsg: "journal db_path required",
		},
		{
			name:   "unknown journal",
			mutate: func(c *Config) { c.Journal.Type = "parquet" },
			errMsg: "journal.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	cfg := Default()
	cfg.Risk.StopLoss = 0.07
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.07, loaded.Risk.StopLoss)
	assert.Equal(t, cfg.Risk.PositionLimits, loaded.Risk.PositionLimits)
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")

	cfg := Default()
	cfg.Account.InitialCapital = 5000
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, loaded.Account.InitialCapital)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("risk:\n  take_profit: 0.3\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Risk.TakeProfit)
	assert.Equal(t, 0.05, cfg.Risk.StopLoss)
	assert.Equal(t, 0.3, cfg.Risk.PositionLimits[market.Aggressive])
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  initial_capital: -1\n"), 0644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvStopLoss, "0.08")
	t.Setenv(EnvMaxPositions, "3")
	t.Setenv(EnvJournalDB, "/tmp/j.db")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 0.08, cfg.Risk.StopLoss)
	assert.Equal(t, 3, cfg.Risk.MaxPositions)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.DBPath)
}

func TestApplyEnvBadNumber(t *testing.T) {
	t.Setenv(EnvTakeProfit, "lots")

	err := Default().ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvTakeProfit)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(EnvMinTradeSize+"=250\n"), 0644))
	t.Cleanup(func() { os.Unsetenv(EnvMinTradeSize) })

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 250.0, cfg.Risk.MinTradeSize)
}
