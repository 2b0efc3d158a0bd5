package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rustyeddy/portfolio/backtest"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/journal"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/metrics"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backtest signals against a candle file",
	Long: `Replay daily candles and trading signals through the portfolio ledger.

Candles are CSV rows time,symbol,open,high,low,close[,volume].
Signals are CSV rows time,symbol,action,confidence[,risk_stance,size_recommendation,rationale].

Example:
  trader run -c backtest.yaml --candles data/daily.csv --signals data/signals.csv --org run.org`,
	RunE: runRun,
}

type runParams struct {
	ConfigPath  string
	Candles     string
	Signals     string
	From, To    string
	MetricsAddr string
	Org         string
	Positions   bool
	Serve       bool
}

var runFlags runParams

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runFlags.ConfigPath, "config", "c", "", "path to config file (YAML or JSON), defaults when empty")
	f.StringVar(&runFlags.Candles, "candles", "", "candle CSV file (required)")
	f.StringVar(&runFlags.Signals, "signals", "", "signal CSV file")
	f.StringVar(&runFlags.From, "from", "", "first candle date to replay (YYYY-MM-DD)")
	f.StringVar(&runFlags.To, "to", "", "replay candles before this date (YYYY-MM-DD)")
	f.StringVar(&runFlags.MetricsAddr, "metrics-addr", "", "serve /metrics and /api on this address")
	f.StringVar(&runFlags.Org, "org", "", "write an Org-mode run summary to this file")
	f.BoolVar(&runFlags.Positions, "positions", false, "print closed and open positions")
	f.BoolVar(&runFlags.Serve, "serve", false, "keep the metrics server up after the run until interrupted")
	runCmd.MarkFlagRequired("candles")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runFlags.ConfigPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	_, err = runBacktest(ctx, cfg, runFlags, cmd.OutOrStdout())
	return err
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// runBacktest wires a ledger to its observers, replays the files in p and
// prints the summary to out.
func runBacktest(ctx context.Context, cfg *config.Config, p runParams, out io.Writer) (backtest.Result, error) {
	from, err := parseDate(p.From)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("--from: %w", err)
	}
	to, err := parseDate(p.To)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("--to: %w", err)
	}

	var signals []market.Signal
	if p.Signals != "" {
		if signals, err = backtest.LoadSignalsCSV(p.Signals); err != nil {
			return backtest.Result{}, fmt.Errorf("load signals: %w", err)
		}
	}
	feed, err := backtest.NewCSVCandleFeed(p.Candles, from, to)
	if err != nil {
		return backtest.Result{}, fmt.Errorf("open candles: %w", err)
	}

	runID := uuid.NewString()
	tally := &backtest.Tally{}
	observers := ledger.MultiObserver{tally}
	opts := []ledger.Option{ledger.WithLogger(log)}

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		feed.Close()
		return backtest.Result{}, fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		if db, ok := j.(*journal.SQLite); ok {
			db.SetRun(runID)
		}
		rec := journal.NewRecorder(j, log)
		observers = append(observers, rec)
		opts = append(opts, ledger.WithAuditSink(rec))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		feed.Close()
		return backtest.Result{}, err
	}
	observers = append(observers, collector)

	addr := p.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metrics.New(metrics.Config{Addr: addr, Log: log, Gatherer: reg, Collector: collector})
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	l := ledger.New(*cfg, append(opts, ledger.WithObserver(observers))...)

	bo := backtest.OptionsFrom(cfg.Backtest)
	bo.RunID = runID
	runner := backtest.Runner{
		Ledger:  l,
		Feed:    feed,
		Signals: signals,
		Options: bo,
		Log:     log,
		Tally:   tally,
	}

	res, err := runner.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("backtest: %w", err)
	}

	backtest.PrintResult(out, res)
	if p.Positions {
		backtest.PrintPositions(out, "CLOSED POSITIONS", l.ClosedPositions())
		open := make([]ledger.Position, 0)
		for _, sym := range l.GetOpenPositions() {
			if pos, ok := l.Position(sym); ok {
				open = append(open, pos)
			}
		}
		backtest.PrintPositions(out, "OPEN POSITIONS", open)
	}

	run := journalRun(cfg, p, res)
	if db, ok := j.(*journal.SQLite); ok {
		if err := db.RecordRun(ctx, run); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
	}
	if p.Org != "" {
		if err := run.WriteOrg(p.Org); err != nil {
			return res, fmt.Errorf("write org: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", p.Org)
	}

	if p.Serve && addr != "" {
		log.Info().Str("addr", addr).Msg("serving metrics until interrupted")
		<-ctx.Done()
	}
	return res, nil
}

func journalRun(cfg *config.Config, p runParams, res backtest.Result) journal.Run {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("config not stored with run")
	}
	run := journal.Run{
		ID:             res.RunID,
		Created:        time.Now().UTC(),
		Dataset:        filepath.Base(p.Candles),
		Start:          res.Start,
		End:            res.End,
		InitialCapital: res.InitialCapital,
		FinalValue:     res.FinalValue,
		TotalReturn:    res.TotalReturn,
		MaxDrawdown:    res.MaxDrawdown,
		RealizedPnL:    res.RealizedPnL,
		Trades:         res.Trades,
		Wins:           res.Wins,
		Losses:         res.Losses,
		Rejected:       res.Rejected,
		Config:         raw,
	}
	if p.Signals != "" {
		run.Signals = filepath.Base(p.Signals)
	}
	if res.OpenPositions > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("%d positions still open at the end", res.OpenPositions))
	}
	return run
}
