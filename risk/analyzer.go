// Package risk quantifies price-gap and cross-position correlation risk
// from historical series. All computations are pure; the Analyzer only
// keeps the last correlation matrix it built for inspection.
package risk

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"gonum.org/v1/gonum/mat"
)

type Analyzer struct {
	cfg config.AnalyzerConfig
	log zerolog.Logger

	mu          sync.RWMutex
	lastMatrix  *mat.SymDense
	lastSymbols []string
}

func NewAnalyzer(cfg config.AnalyzerConfig, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg: cfg,
		log: log.With().Str("component", "risk_analyzer").Logger(),
	}
}

func (a *Analyzer) Config() config.AnalyzerConfig { return a.cfg }

// LastCorrelationMatrix returns a copy of the most recent correlation matrix
// and the symbols labelling its rows. It returns nil before the first
// successful correlation analysis.
func (a *Analyzer) LastCorrelationMatrix() (*mat.SymDense, []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.lastMatrix == nil {
		return nil, nil
	}
	m := mat.NewSymDense(a.lastMatrix.SymmetricDim(), nil)
	m.CopySym(a.lastMatrix)
	return m, append([]string(nil), a.lastSymbols...)
}

func (a *Analyzer) remember(m *mat.SymDense, symbols []string) {
	a.mu.Lock()
	a.lastMatrix = m
	a.lastSymbols = append([]string(nil), symbols...)
	a.mu.Unlock()
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
