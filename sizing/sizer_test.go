package sizing

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSizer(t *testing.T) *Sizer {
	t.Helper()
	cfg := config.Default()
	return New(cfg.Risk, risk.NewAnalyzer(cfg.Analyzer, zerolog.Nop()), zerolog.Nop())
}

func fresh() Account {
	return Account{Cash: 100000, InitialCapital: 100000}
}

func codes(d Decision) []string {
	var out []string
	for _, v := range d.Violations {
		out = append(out, v.Code)
	}
	return out
}

// flat candles have no overnight gaps
func flat(n int) []market.Candle {
	cs := make([]market.Candle, n)
	for i := range cs {
		cs[i] = market.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	return cs
}

func TestWorkedScenario(t *testing.T) {
	t.Parallel()
	s := newSizer(t)

	sig := market.Signal{Symbol: "AAPL", Action: market.Buy, RiskStance: market.StanceNeutral}
	d := s.Decide(sig, 0.8, 150, fresh())

	assert.Equal(t, market.Neutral, d.Profile)
	assert.InDelta(t, 90000.0, d.Available, 1e-9)
	assert.InDelta(t, 0.2, d.MaxAllocation, 1e-12)
	assert.InDelta(t, 1.0, d.Multiplier, 1e-12)
	assert.InDelta(t, 18000.0, d.Size, 1e-6)
	assert.False(t, d.Adjusted)
	assert.Empty(t, d.Violations)

	assert.InDelta(t, 18000.0, s.CalculatePositionSize(sig, 0.8, 150, fresh()), 1e-6)
}

func TestProfileAndMultiplier(t *testing.T) {
	t.Parallel()
	s := newSizer(t)

	tests := []struct {
		name       string
		stance     market.RiskStance
		confidence float64
		profile    market.RiskProfile
		size       float64
	}{
		{"fallback high", market.StanceUnspecified, 0.9, market.Aggressive, 90000 * 0.3 * 1.0},
		{"fallback medium", market.StanceUnspecified, 0.6, market.Neutral, 90000 * 0.2 * 0.7},
		{"fallback low", market.StanceUnspecified, 0.3, market.Conservative, 90000 * 0.1 * 0.4},
		{"stance wins over confidence", market.StanceConservative, 0.95, market.Conservative, 90000 * 0.1 * 1.0},
		{"aggressive stance low confidence", market.StanceAggressive, 0.1, market.Aggressive, 90000 * 0.3 * 0.4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sig := market.Signal{Symbol: "X", Action: market.Buy, RiskStance: tt.stance}
			d := s.Decide(sig, tt.confidence, 10, fresh())
			assert.Equal(t, tt.profile, d.Profile)
			assert.InDelta(t, tt.size, d.Size, 1e-6)
		})
	}
}

func TestAvailableCapital(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 90000.0, AvailableCapital(100000, 100000), 1e-9)
	assert.InDelta(t, 40000.0, AvailableCapital(50000, 100000), 1e-9)
	assert.Equal(t, 0.0, AvailableCapital(5000, 100000))
	// reserve stays tied to initial capital as cash grows
	assert.InDelta(t, 190000.0, AvailableCapital(200000, 100000), 1e-9)
}

func TestHardConstraints(t *testing.T) {
	t.Parallel()
	s := newSizer(t)
	sig := market.Signal{Symbol: "AAPL", Action: market.Buy, RiskStance: market.StanceNeutral}

	t.Run("existing value caps size", func(t *testing.T) {
		t.Parallel()
		acct := fresh()
		acct.HasPosition = true
		acct.ExistingValue = 85000
		d := s.Decide(sig, 0.8, 100, acct)
		assert.InDelta(t, 5000.0, d.Size, 1e-6)
		assert.Contains(t, codes(d), "POSITION_CAP")
	})

	t.Run("position already at cap", func(t *testing.T) {
		t.Parallel()
		acct := fresh()
		acct.HasPosition = true
		acct.ExistingValue = 95000
		d := s.Decide(sig, 0.8, 100, acct)
		assert.Equal(t, 0.0, d.Size)
	})

	t.Run("max positions blocks new symbol", func(t *testing.T) {
		t.Parallel()
		acct := fresh()
		acct.OpenPositions = 10
		d := s.Decide(sig, 0.8, 100, acct)
		assert.Equal(t, 0.0, d.Size)
		assert.Contains(t, codes(d), "TOO_MANY_POSITIONS")
	})

	t.Run("max positions allows adding to held symbol", func(t *testing.T) {
		t.Parallel()
		acct := fresh()
		acct.OpenPositions = 10
		acct.HasPosition = true
		acct.ExistingValue = 1000
		d := s.Decide(sig, 0.8, 100, acct)
		assert.InDelta(t, 18000.0, d.Size, 1e-6)
	})

	t.Run("below min trade size", func(t *testing.T) {
		t.Parallel()
		acct := Account{Cash: 10050, InitialCapital: 100000}
		d := s.Decide(sig, 0.8, 100, acct)
		assert.Equal(t, 0.0, d.Size)
		assert.Contains(t, codes(d), "BELOW_MIN_TRADE")
	})

	t.Run("invalid price", func(t *testing.T) {
		t.Parallel()
		d := s.Decide(sig, 0.8, 0, fresh())
		assert.Equal(t, 0.0, d.Size)
		assert.Equal(t, []string{"INVALID_PRICE"}, codes(d))
	})
}

func TestFactors(t *testing.T) {
	t.Parallel()
	s := newSizer(t)

	assert.Equal(t, 1.0, s.GapFactor(0))
	assert.InDelta(t, 0.9, s.GapFactor(0.05), 1e-12)
	assert.Equal(t, 0.5, s.GapFactor(1))

	assert.Equal(t, 1.0, s.CorrelationFactor(0))
	assert.Equal(t, 1.0, s.CorrelationFactor(-0.5))
	assert.InDelta(t, 0.75, s.CorrelationFactor(0.5), 1e-12)
	assert.Equal(t, 0.5, s.CorrelationFactor(1))

	assert.Equal(t, 1.0, s.DiversificationBonus(0.8))
	assert.InDelta(t, 1.1, s.DiversificationBonus(1.1), 1e-12)
	assert.InDelta(t, 1.2, s.DiversificationBonus(3), 1e-12)

	corr := risk.CorrelationRiskMetrics{PortfolioCorrelation: 0.9, DiversificationRatio: 1}
	f := s.Factors(risk.GapRiskMetrics{}, corr, 0)
	assert.Equal(t, 1.0, f.Correlation, "no other position, no correlation factor")

	f = s.Factors(risk.GapRiskMetrics{}, corr, 1)
	assert.InDelta(t, 0.55, f.Correlation, 1e-12)
}

func TestCorrelationMonotonic(t *testing.T) {
	t.Parallel()
	s := newSizer(t)
	adj := config.Default().Risk.Adjustments

	const base = 18000.0
	gap := risk.GapRiskMetrics{ExpectedSlippage: 0.01}
	floor := base * adj.MinGapFactor * adj.MinCorrelationFactor

	prev := base * 10
	for i := 0; i <= 100; i++ {
		corr := risk.CorrelationRiskMetrics{
			PortfolioCorrelation: -1 + float64(i)*0.02,
			DiversificationRatio: 1.1,
		}
		size := Adjust(base, s.Factors(gap, corr, 2))
		assert.LessOrEqual(t, size, prev, "correlation %.2f", corr.PortfolioCorrelation)
		assert.GreaterOrEqual(t, size, floor)
		prev = size
	}

	worst := Adjust(base, s.Factors(
		risk.GapRiskMetrics{ExpectedSlippage: 10},
		risk.CorrelationRiskMetrics{PortfolioCorrelation: 1, DiversificationRatio: 0.5},
		3,
	))
	assert.InDelta(t, floor, worst, 1e-9)
}

func TestMarketDataAdjustments(t *testing.T) {
	t.Parallel()
	sig := market.Signal{Symbol: "AAPL", Action: market.Buy, RiskStance: market.StanceNeutral}

	t.Run("no gaps no holdings", func(t *testing.T) {
		t.Parallel()
		s := newSizer(t)
		s.UpdateMarketData("AAPL", flat(10), []float64{0.01, -0.01, 0.02})
		require.True(t, s.HasMarketData("AAPL"))

		d := s.Decide(sig, 0.8, 100, fresh())
		assert.True(t, d.Adjusted)
		assert.InDelta(t, 18000.0, d.Size, 1e-6)
	})

	t.Run("gap risk shrinks size", func(t *testing.T) {
		t.Parallel()
		s := newSizer(t)
		candles := []market.Candle{
			{Open: 100, Close: 100},
			{Open: 110, Close: 100},
			{Open: 110, Close: 100},
		}
		s.UpdateMarketData("AAPL", candles, []float64{0, 0})

		d := s.Decide(sig, 0.8, 100, fresh())
		assert.True(t, d.Adjusted)
		assert.InDelta(t, 0.9, d.Factors.Gap, 1e-9)
		assert.InDelta(t, 16200.0, d.Size, 1e-6)
	})

	t.Run("correlated holding shrinks size", func(t *testing.T) {
		t.Parallel()
		s := newSizer(t)
		returns := []float64{0.01, -0.02, 0.03, -0.01, 0.02}
		s.UpdateMarketData("AAPL", flat(6), returns)
		s.UpdateMarketData("MSFT", flat(6), returns)

		acct := fresh()
		acct.OpenPositions = 1
		acct.HeldSymbols = []string{"MSFT"}
		d := s.Decide(sig, 0.8, 100, acct)
		assert.InDelta(t, 0.5, d.Factors.Correlation, 1e-6)
		assert.InDelta(t, 1.0, d.Factors.Diversification, 1e-6)
		assert.InDelta(t, 9000.0, d.Size, 1e-3)
	})

	t.Run("insufficient history falls back to base", func(t *testing.T) {
		t.Parallel()
		s := newSizer(t)
		s.UpdateMarketData("AAPL", flat(1), nil)

		d := s.Decide(sig, 0.8, 100, fresh())
		assert.False(t, d.Adjusted)
		assert.InDelta(t, 18000.0, d.Size, 1e-6)
	})

	t.Run("held symbol without data is ignored", func(t *testing.T) {
		t.Parallel()
		s := newSizer(t)
		s.UpdateMarketData("AAPL", flat(5), []float64{0.01, -0.01, 0.02})

		acct := fresh()
		acct.OpenPositions = 1
		acct.HeldSymbols = []string{"TSLA"}
		d := s.Decide(sig, 0.8, 100, acct)
		assert.True(t, d.Adjusted)
		assert.InDelta(t, 18000.0, d.Size, 1e-6)
	})
}

func TestUpdateMarketDataCopies(t *testing.T) {
	t.Parallel()
	s := newSizer(t)
	candles := flat(3)
	s.UpdateMarketData("AAPL", candles, []float64{0, 0})

	// mutating the caller's slice must not introduce a gap
	candles[2].Open = 200
	d := s.Decide(market.Signal{Symbol: "AAPL", RiskStance: market.StanceNeutral}, 0.8, 100, fresh())
	assert.Equal(t, 1.0, d.Factors.Gap)
}

func TestConcurrentSizing(t *testing.T) {
	t.Parallel()
	s := newSizer(t)
	sig := market.Signal{Symbol: "AAPL", RiskStance: market.StanceNeutral}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.UpdateMarketData("AAPL", flat(5), []float64{0.01, 0.02, -0.01})
		}()
		go func() {
			defer wg.Done()
			size := s.CalculatePositionSize(sig, 0.8, 100, fresh())
			assert.InDelta(t, 18000.0, size, 1e-6)
		}()
	}
	wg.Wait()
}
