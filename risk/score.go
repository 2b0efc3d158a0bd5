package risk

import (
	"fmt"
	"math"
)

// Sub-score caps. They sum to 100.
const (
	maxGapScore           = 30.0
	maxCorrelationScore   = 30.0
	maxConcentrationScore = 40.0
)

// Reference levels at which a gap measure saturates its share of the score.
const (
	gapSaturation       = 0.10
	frequencySaturation = 0.20
	slippageSaturation  = 0.02
)

func (a *Analyzer) gapScore(g GapRiskMetrics) float64 {
	s := 0.4*math.Min(g.MaxGap/gapSaturation, 1) +
		0.4*math.Min(g.GapFrequency/frequencySaturation, 1) +
		0.2*math.Min(g.ExpectedSlippage/slippageSaturation, 1)
	return math.Min(maxGapScore, maxGapScore*s)
}

func (a *Analyzer) correlationScore(c CorrelationRiskMetrics) float64 {
	shortfall := clamp(2-c.DiversificationRatio, 0, 1)
	if len(c.Symbols) < 2 {
		// a single holding has nothing to diversify against
		shortfall = 0
	}
	s := 0.5*clamp(c.PortfolioCorrelation, 0, 1) +
		0.3*clamp(c.MaxPairCorrelation, 0, 1) +
		0.2*shortfall
	return math.Min(maxCorrelationScore, maxCorrelationScore*s)
}

// CalculateRiskScore combines gap, correlation and concentration risk into a
// score in [0,100]. positionConcentration is the largest position's share of
// portfolio value.
func (a *Analyzer) CalculateRiskScore(gap GapRiskMetrics, corr CorrelationRiskMetrics, positionConcentration float64) float64 {
	conc := math.Min(maxConcentrationScore, maxConcentrationScore*clamp(positionConcentration, 0, 1))
	return math.Min(100, a.gapScore(gap)+a.correlationScore(corr)+conc)
}

// GetRiskRecommendations returns advisory text. It is informational only.
func (a *Analyzer) GetRiskRecommendations(gap GapRiskMetrics, corr CorrelationRiskMetrics, score float64) []string {
	var out []string

	switch {
	case score >= 70:
		out = append(out, fmt.Sprintf("High overall risk score (%.0f): reduce position sizes and total exposure", score))
	case score >= 40:
		out = append(out, fmt.Sprintf("Moderate overall risk score (%.0f): avoid adding new correlated positions", score))
	}

	name := gap.Symbol
	if name == "" {
		name = "instrument"
	}
	if gap.GapFrequency > 0.10 {
		out = append(out, fmt.Sprintf("%s gaps beyond %.1f%% on %.0f%% of sessions: widen stops or trade smaller",
			name, a.cfg.GapThreshold*100, gap.GapFrequency*100))
	}
	if gap.MaxGap > 0.05 {
		out = append(out, fmt.Sprintf("%s has gapped %.1f%% overnight: stop-loss exits may fill well past their level",
			name, gap.MaxGap*100))
	}

	if corr.PortfolioCorrelation > 0.7 {
		out = append(out, fmt.Sprintf("Holdings are highly correlated (average %.2f): add uncorrelated assets", corr.PortfolioCorrelation))
	}
	if corr.MaxPairCorrelation > 0.9 {
		out = append(out, fmt.Sprintf("At least one pair moves almost in lockstep (%.2f): consider consolidating it", corr.MaxPairCorrelation))
	}
	if len(corr.Symbols) >= 2 && corr.DiversificationRatio < 1.2 {
		out = append(out, fmt.Sprintf("Diversification benefit is limited (ratio %.2f)", corr.DiversificationRatio))
	}

	if len(out) == 0 {
		out = append(out, "Risk levels are within normal ranges")
	}
	return out
}
