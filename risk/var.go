package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CalculateAdjustedVaR returns the historical value at risk of a return
// series at the given confidence (0.95 for the 5% tail) as a positive loss
// fraction, scaled by 1 + gap_frequency*avg_gap so gap-prone instruments are
// penalized. Fewer than two returns or a confidence outside (0,1) yield 0.
func (a *Analyzer) CalculateAdjustedVaR(returns []float64, gap GapRiskMetrics, confidence float64) float64 {
	if len(returns) < 2 || confidence <= 0 || confidence >= 1 {
		return 0
	}

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	q := stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
	v := math.Max(0, -q)
	return v * (1 + gap.GapFrequency*gap.AvgGap)
}
