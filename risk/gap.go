package risk

import (
	"math"

	"github.com/rustyeddy/portfolio/market"
)

// GapRiskMetrics summarizes overnight gaps. All values are fractions of the
// prior close (0.02 is a 2% gap).
type GapRiskMetrics struct {
	Symbol           string
	MaxGap           float64
	AvgGap           float64
	GapFrequency     float64 // share of gaps above the threshold
	ExpectedSlippage float64
	Gaps             int
}

// AnalyzeGapRisk measures gap[i] = (open[i] - close[i-1]) / close[i-1].
// Fewer than two candles yield zero metrics.
func (a *Analyzer) AnalyzeGapRisk(symbol string, candles []market.Candle) GapRiskMetrics {
	m := GapRiskMetrics{Symbol: symbol}
	if len(candles) < 2 {
		return m
	}

	var sum float64
	significant := 0
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		g := math.Abs((candles[i].Open - prev) / prev)
		m.Gaps++
		sum += g
		if g > m.MaxGap {
			m.MaxGap = g
		}
		if g > a.cfg.GapThreshold {
			significant++
		}
	}
	if m.Gaps == 0 {
		return m
	}

	m.AvgGap = sum / float64(m.Gaps)
	m.GapFrequency = float64(significant) / float64(m.Gaps)
	m.ExpectedSlippage = m.AvgGap * a.cfg.SlippageMultiplier

	a.log.Debug().
		Str("symbol", symbol).
		Float64("max_gap", m.MaxGap).
		Float64("avg_gap", m.AvgGap).
		Float64("frequency", m.GapFrequency).
		Msg("gap risk")
	return m
}
