package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rustyeddy/portfolio/backtest"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/risk"
	"github.com/spf13/cobra"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Analyze gap and correlation risk of a candle file",
	Long: `Measure overnight gap risk, gap-adjusted value at risk and cross-symbol
correlation for the trailing window of each symbol in a candle CSV, and
print a risk score with recommendations.

Example:
  trader risk --candles data/daily.csv --lookback 120 --symbols AAPL,MSFT`,
	RunE: runRisk,
}

var (
	riskConfigPath string
	riskCandles    string
	riskSymbols    []string
	riskLookback   int
)

func init() {
	rootCmd.AddCommand(riskCmd)

	riskCmd.Flags().StringVarP(&riskConfigPath, "config", "c", "", "path to config file (YAML or JSON), defaults when empty")
	riskCmd.Flags().StringVar(&riskCandles, "candles", "", "candle CSV file (required)")
	riskCmd.Flags().StringSliceVar(&riskSymbols, "symbols", nil, "restrict analysis to these symbols")
	riskCmd.Flags().IntVar(&riskLookback, "lookback", 0, "trailing candles per symbol (default backtest.lookback)")
	riskCmd.MarkFlagRequired("candles")
}

type symbolRisk struct {
	Symbol string
	Gap    risk.GapRiskMetrics
	VaR    float64
}

type riskReport struct {
	Symbols         []symbolRisk
	Correlation     risk.CorrelationRiskMetrics
	Score           float64
	Recommendations []string
	analyzer        *risk.Analyzer
}

func runRisk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(riskConfigPath)
	if err != nil {
		return err
	}
	feed, err := backtest.NewCSVCandleFeed(riskCandles, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("open candles: %w", err)
	}
	candles, err := backtest.ReadAll(feed)
	if err != nil {
		return fmt.Errorf("read candles: %w", err)
	}

	lookback := riskLookback
	if lookback <= 0 {
		lookback = cfg.Backtest.Lookback
	}
	rep, err := analyzeCandles(cfg, candles, riskSymbols, lookback)
	if err != nil {
		return err
	}
	printRiskReport(cmd.OutOrStdout(), rep)
	return nil
}

// analyzeCandles groups candles by symbol and analyzes the trailing
// lookback window of each. Position concentration is taken as an equal
// weight across the analyzed symbols.
func analyzeCandles(cfg *config.Config, candles []market.Candle, only []string, lookback int) (riskReport, error) {
	keep := map[string]bool{}
	for _, s := range only {
		keep[strings.TrimSpace(s)] = true
	}

	bySymbol := map[string][]market.Candle{}
	for _, c := range candles {
		if len(keep) > 0 && !keep[c.Symbol] {
			continue
		}
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c)
	}
	if len(bySymbol) == 0 {
		return riskReport{}, fmt.Errorf("no candles to analyze")
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	a := risk.NewAnalyzer(cfg.Analyzer, log)
	rep := riskReport{analyzer: a}
	returns := map[string][]float64{}
	var worst risk.GapRiskMetrics
	for _, s := range symbols {
		cs := bySymbol[s]
		if len(cs) > lookback {
			cs = cs[len(cs)-lookback:]
		}
		r := market.Returns(market.Closes(cs))
		returns[s] = r

		gap := a.AnalyzeGapRisk(s, cs)
		rep.Symbols = append(rep.Symbols, symbolRisk{
			Symbol: s,
			Gap:    gap,
			VaR:    a.CalculateAdjustedVaR(r, gap, cfg.Analyzer.VaRConfidence),
		})
		if worst.Symbol == "" || gap.MaxGap > worst.MaxGap {
			worst = gap
		}
	}

	rep.Correlation = a.AnalyzeCorrelationRisk(symbols, returns)
	rep.Score = a.CalculateRiskScore(worst, rep.Correlation, 1/float64(len(symbols)))
	rep.Recommendations = a.GetRiskRecommendations(worst, rep.Correlation, rep.Score)
	return rep, nil
}

func printRiskReport(w io.Writer, rep riskReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("GAP RISK")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Gaps", "Max Gap", "Avg Gap", "Frequency", "Slippage", "VaR"})
	for _, s := range rep.Symbols {
		t.AppendRow(table.Row{
			s.Symbol, s.Gap.Gaps,
			pct(s.Gap.MaxGap), pct(s.Gap.AvgGap), pct(s.Gap.GapFrequency),
			pct(s.Gap.ExpectedSlippage), pct(s.VaR),
		})
	}
	t.Render()

	if m, syms := rep.analyzer.LastCorrelationMatrix(); m != nil {
		ct := table.NewWriter()
		ct.SetOutputMirror(w)
		ct.SetTitle("CORRELATION")
		ct.SetStyle(table.StyleRounded)
		header := table.Row{""}
		for _, s := range syms {
			header = append(header, s)
		}
		ct.AppendHeader(header)
		for i, s := range syms {
			row := table.Row{s}
			for j := range syms {
				row = append(row, fmt.Sprintf("%.2f", m.At(i, j)))
			}
			ct.AppendRow(row)
		}
		ct.AppendFooter(table.Row{"ratio", fmt.Sprintf("%.2f", rep.Correlation.DiversificationRatio)})
		ct.Render()
	}

	fmt.Fprintf(w, "\nRisk score: %.1f / 100\n", rep.Score)
	for _, r := range rep.Recommendations {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func pct(x float64) string { return fmt.Sprintf("%.2f%%", x*100) }
