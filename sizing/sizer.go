// Package sizing converts a trading signal and its confidence into a
// risk-adjusted position size in account currency.
package sizing

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/risk"
)

// CapitalReserve is the share of initial capital that is never allocated.
// It is measured against initial capital, not current equity, so the
// reserve is a fixed floor in currency terms.
const CapitalReserve = 0.10

// Confidence multipliers applied to the profile allocation.
const (
	highMultiplier   = 1.0
	mediumMultiplier = 0.7
	lowMultiplier    = 0.4
)

// Account is the ledger view the sizer needs for one decision.
type Account struct {
	Cash           float64
	InitialCapital float64
	OpenPositions  int

	// Existing position in the signal's symbol, if any.
	HasPosition   bool
	ExistingValue float64

	// Symbols of all open positions.
	HeldSymbols []string
}

type Violation struct {
	Code string
	Msg  string
}

// Decision is the full breakdown of a sizing calculation.
type Decision struct {
	Symbol        string
	Profile       market.RiskProfile
	MaxAllocation float64
	Multiplier    float64
	Available     float64
	Base          float64
	Capped        float64

	Factors  Factors
	Adjusted bool

	Size       float64
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
}

// Factors are the risk adjustments applied to the capped base size.
type Factors struct {
	Gap             float64
	Correlation     float64
	Diversification float64
}

func neutralFactors() Factors {
	return Factors{Gap: 1, Correlation: 1, Diversification: 1}
}

type marketData struct {
	candles []market.Candle
	returns []float64
}

type Sizer struct {
	cfg      config.RiskConfig
	analyzer *risk.Analyzer
	log      zerolog.Logger

	mu   sync.RWMutex
	data map[string]marketData
}

func New(cfg config.RiskConfig, analyzer *risk.Analyzer, log zerolog.Logger) *Sizer {
	return &Sizer{
		cfg:      cfg,
		analyzer: analyzer,
		log:      log.With().Str("component", "sizer").Logger(),
		data:     make(map[string]marketData),
	}
}

// UpdateMarketData caches price and return history for a symbol. Without
// cached data no risk adjustment is applied to that symbol.
func (s *Sizer) UpdateMarketData(symbol string, candles []market.Candle, returns []float64) {
	md := marketData{
		candles: append([]market.Candle(nil), candles...),
		returns: append([]float64(nil), returns...),
	}
	s.mu.Lock()
	s.data[symbol] = md
	s.mu.Unlock()
}

func (s *Sizer) HasMarketData(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[symbol]
	return ok
}

// Profile picks the risk profile from the signal's stance, falling back to
// confidence bands when the stance is unspecified.
func (s *Sizer) Profile(sig market.Signal, confidence float64) market.RiskProfile {
	if p, err := market.ProfileForStance(sig.RiskStance); err == nil {
		return p
	}
	ct := s.cfg.ConfidenceThresholds
	switch {
	case confidence >= ct.High:
		return market.Aggressive
	case confidence >= ct.Medium:
		return market.Neutral
	default:
		return market.Conservative
	}
}

func (s *Sizer) Multiplier(confidence float64) float64 {
	ct := s.cfg.ConfidenceThresholds
	switch {
	case confidence >= ct.High:
		return highMultiplier
	case confidence >= ct.Medium:
		return mediumMultiplier
	default:
		return lowMultiplier
	}
}

// AvailableCapital is cash above the fixed reserve, never negative.
func AvailableCapital(cash, initialCapital float64) float64 {
	return math.Max(0, cash-CapitalReserve*initialCapital)
}

// CalculatePositionSize returns the order size in account currency, or 0
// when the trade should not be placed.
func (s *Sizer) CalculatePositionSize(sig market.Signal, confidence, price float64, acct Account) float64 {
	return s.Decide(sig, confidence, price, acct).Size
}

// Decide runs the sizing pipeline and records every intermediate value.
func (s *Sizer) Decide(sig market.Signal, confidence, price float64, acct Account) Decision {
	d := Decision{Symbol: sig.Symbol, Factors: neutralFactors()}

	if price <= 0 || math.IsNaN(price) {
		d.add("INVALID_PRICE", fmt.Sprintf("price %.4f must be positive", price))
		return d
	}

	d.Profile = s.Profile(sig, confidence)
	d.MaxAllocation = s.cfg.PositionLimits[d.Profile]
	d.Multiplier = s.Multiplier(confidence)
	d.Available = AvailableCapital(acct.Cash, acct.InitialCapital)
	d.Base = d.Available * d.MaxAllocation * d.Multiplier

	limit := s.cfg.MaxPositionSizePct*acct.InitialCapital - acct.ExistingValue
	d.Capped = math.Max(0, math.Min(d.Base, limit))
	if d.Capped < d.Base {
		d.add("POSITION_CAP", fmt.Sprintf("size capped at %.2f by max position size", d.Capped))
	}
	if !acct.HasPosition && acct.OpenPositions >= s.cfg.MaxPositions {
		d.add("TOO_MANY_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, s.cfg.MaxPositions))
		d.Capped = 0
	}

	size := d.Capped
	if size > 0 && s.HasMarketData(sig.Symbol) {
		f, err := s.riskFactors(sig.Symbol, acct)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("risk adjustment skipped")
		} else {
			d.Factors = f
			d.Adjusted = true
			size = math.Min(Adjust(size, f), math.Max(0, limit))
		}
	}

	if size < s.cfg.MinTradeSize {
		if size > 0 {
			d.add("BELOW_MIN_TRADE", fmt.Sprintf("size %.2f below minimum %.2f", size, s.cfg.MinTradeSize))
		}
		size = 0
	}
	d.Size = size

	s.log.Debug().
		Str("symbol", sig.Symbol).
		Str("profile", string(d.Profile)).
		Float64("base", d.Base).
		Float64("gap_factor", d.Factors.Gap).
		Float64("correlation_factor", d.Factors.Correlation).
		Float64("bonus", d.Factors.Diversification).
		Float64("size", d.Size).
		Msg("position sized")
	return d
}

// Adjust applies the risk factors to a size.
func Adjust(size float64, f Factors) float64 {
	return size * f.Gap * f.Correlation * f.Diversification
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// GapFactor shrinks size for instruments with high expected gap slippage.
func (s *Sizer) GapFactor(expectedSlippage float64) float64 {
	a := s.cfg.Adjustments
	return clamp(1-expectedSlippage*a.GapRiskMultiplier, a.MinGapFactor, 1)
}

// CorrelationFactor shrinks size as the portfolio becomes more correlated.
func (s *Sizer) CorrelationFactor(portfolioCorrelation float64) float64 {
	a := s.cfg.Adjustments
	return clamp(1-portfolioCorrelation*a.CorrelationRiskMultiplier, a.MinCorrelationFactor, 1)
}

// DiversificationBonus rewards portfolios whose basket volatility is below
// the average holding's volatility.
func (s *Sizer) DiversificationBonus(ratio float64) float64 {
	return clamp(ratio, 1, s.cfg.Adjustments.MaxDiversificationBonus)
}

// Factors computes all factors from precomputed metrics. others is the
// number of open positions in symbols other than the one being sized.
func (s *Sizer) Factors(gap risk.GapRiskMetrics, corr risk.CorrelationRiskMetrics, others int) Factors {
	f := neutralFactors()
	f.Gap = s.GapFactor(gap.ExpectedSlippage)
	if others > 0 {
		f.Correlation = s.CorrelationFactor(corr.PortfolioCorrelation)
	}
	f.Diversification = s.DiversificationBonus(corr.DiversificationRatio)
	return f
}

func (s *Sizer) riskFactors(symbol string, acct Account) (f Factors, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("risk factors for %s: %v", symbol, r)
		}
	}()

	s.mu.RLock()
	own, ok := s.data[symbol]
	returns := make(map[string][]float64, len(acct.HeldSymbols)+1)
	returns[symbol] = own.returns
	var others []string
	var missing []string
	for _, h := range acct.HeldSymbols {
		if h == symbol {
			continue
		}
		others = append(others, h)
		md, found := s.data[h]
		if !found {
			missing = append(missing, h)
			continue
		}
		returns[h] = md.returns
	}
	s.mu.RUnlock()

	if !ok {
		return Factors{}, fmt.Errorf("no market data for %s", symbol)
	}
	if len(own.candles) < 2 {
		return Factors{}, fmt.Errorf("insufficient price history for %s: %d candles", symbol, len(own.candles))
	}
	if len(missing) > 0 {
		s.log.Warn().Strs("symbols", missing).Msg("no return history for held symbols, excluded from correlation")
	}

	gap := s.analyzer.AnalyzeGapRisk(symbol, own.candles)
	corr := s.analyzer.AnalyzeCorrelationRisk(append([]string{symbol}, others...), returns)
	return s.Factors(gap, corr, len(others)), nil
}
