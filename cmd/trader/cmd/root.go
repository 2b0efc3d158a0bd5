package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/pkg/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Position and risk management engine for strategy backtests",
	Long: `Trader replays daily candles and externally generated trading signals
through a risk-aware portfolio ledger.

It provides tools for:
  - Sizing orders from signal confidence, risk stance and portfolio risk
  - Executing orders as atomic, rollback-safe transactions
  - Measuring gap risk, correlation risk and value at risk
  - Journaling transactions, closed positions and equity to SQLite or CSV`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	logLevel  string
	logPretty bool
	envFiles  []string

	log = zerolog.Nop()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human readable console logs")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load (default .env if present)")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}
	log = logger.New(logger.Config{Level: levelOr("info"), Pretty: logPretty})
	logger.SetGlobalLogger(log)
	return nil
}

func levelOr(def string) string {
	if logLevel != "" {
		return logLevel
	}
	return def
}

// loadConfig reads path, or the defaults when path is empty, then applies
// environment overrides. The logger is rebuilt from the configured level
// unless --log-level was given.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	log = logger.New(logger.Config{Level: levelOr(cfg.Log.Level), Pretty: logPretty || cfg.Log.Pretty})
	logger.SetGlobalLogger(log)
	return cfg, nil
}
