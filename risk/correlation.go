package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type CorrelationRiskMetrics struct {
	PortfolioCorrelation float64 // mean of pairwise correlations
	MaxPairCorrelation   float64
	Concentration        float64 // mean squared pairwise correlation
	DiversificationRatio float64 // >= 1, higher is better
	Symbols              []string
}

func neutralCorrelation(symbols []string) CorrelationRiskMetrics {
	return CorrelationRiskMetrics{DiversificationRatio: 1.0, Symbols: symbols}
}

// AnalyzeCorrelationRisk builds the pairwise correlation matrix of the given
// symbols' return series. Symbols with fewer than two returns are skipped
// and the remaining series are aligned on their common trailing window.
// With fewer than two usable symbols the neutral result (correlation 0,
// ratio 1) is returned.
func (a *Analyzer) AnalyzeCorrelationRisk(symbols []string, returns map[string][]float64) CorrelationRiskMetrics {
	used := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	n := math.MaxInt
	for _, s := range symbols {
		if seen[s] {
			continue
		}
		seen[s] = true
		r := returns[s]
		if len(r) < 2 {
			continue
		}
		used = append(used, s)
		n = min(n, len(r))
	}
	if len(used) < 2 {
		return neutralCorrelation(used)
	}

	k := len(used)
	series := make([][]float64, k)
	for i, s := range used {
		r := returns[s]
		series[i] = r[len(r)-n:]
	}

	m := mat.NewSymDense(k, nil)
	pairs := make([]float64, 0, k*(k-1)/2)
	for i := 0; i < k; i++ {
		m.SetSym(i, i, 1)
		for j := i + 1; j < k; j++ {
			c := stat.Correlation(series[i], series[j], nil)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				// a flat series has no defined correlation
				c = 0
			}
			m.SetSym(i, j, c)
			pairs = append(pairs, c)
		}
	}
	a.remember(m, used)

	squares := make([]float64, len(pairs))
	for i, c := range pairs {
		squares[i] = c * c
	}

	out := CorrelationRiskMetrics{
		PortfolioCorrelation: stat.Mean(pairs, nil),
		MaxPairCorrelation:   floats.Max(pairs),
		Concentration:        stat.Mean(squares, nil),
		DiversificationRatio: diversificationRatio(series),
		Symbols:              used,
	}

	a.log.Debug().
		Strs("symbols", used).
		Float64("correlation", out.PortfolioCorrelation).
		Float64("diversification", out.DiversificationRatio).
		Msg("correlation risk")
	return out
}

// diversificationRatio is sqrt(mean individual variance / variance of the
// equal-weight basket). Undefined cases return 1.
func diversificationRatio(series [][]float64) float64 {
	k := len(series)
	n := len(series[0])

	variances := make([]float64, k)
	basket := make([]float64, n)
	for i, s := range series {
		variances[i] = stat.Variance(s, nil)
		for t, r := range s {
			basket[t] += r / float64(k)
		}
	}

	meanVar := stat.Mean(variances, nil)
	basketVar := stat.Variance(basket, nil)
	if basketVar <= 0 || meanVar <= 0 || math.IsNaN(basketVar) || math.IsNaN(meanVar) {
		return 1.0
	}
	return math.Sqrt(meanVar / basketVar)
}
