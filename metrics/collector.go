package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/portfolio/ledger"
)

const namespace = "portfolio"

// Collector exports ledger events as Prometheus metrics and keeps the most
// recent portfolio state for the HTTP API.
type Collector struct {
	committed      *prometheus.CounterVec
	failed         *prometheus.CounterVec
	rollbackFailed prometheus.Counter
	closed         *prometheus.CounterVec
	realized       prometheus.Histogram
	cash           prometheus.Gauge
	totalValue     prometheus.Gauge
	exposure       prometheus.Gauge
	openPositions  prometheus.Gauge
	totalReturn    prometheus.Gauge

	mu   sync.RWMutex
	last ledger.PortfolioState
	seen bool
}

// NewCollector creates the metric families and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		committed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_committed_total",
				Help:      "Committed transactions",
			},
			[]string{"symbol", "action"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_failed_total",
				Help:      "Transactions rejected or rolled back",
			},
			[]string{"symbol", "action"},
		),
		rollbackFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollback_failures_total",
			Help:      "Rollbacks that could not restore the ledger",
		}),
		closed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "positions_closed_total",
				Help:      "Positions closed, by exit reason",
			},
			[]string{"reason"},
		),
		realized: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "position_realized_pnl",
			Help:      "Realized P&L of closed positions",
			Buckets:   []float64{-5000, -1000, -500, -100, 0, 100, 500, 1000, 5000},
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash",
			Help:      "Cash balance at the last recorded state",
		}),
		totalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_value",
			Help:      "Cash plus marked position value",
		}),
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exposure_ratio",
			Help:      "Invested share of total value",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),
		totalReturn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_return_ratio",
			Help:      "Return on initial capital",
		}),
	}

	for _, m := range []prometheus.Collector{
		c.committed, c.failed, c.rollbackFailed, c.closed, c.realized,
		c.cash, c.totalValue, c.exposure, c.openPositions, c.totalReturn,
	} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) TransactionCommitted(t ledger.Transaction) {
	c.committed.WithLabelValues(t.Symbol, string(t.Action)).Inc()
}

func (c *Collector) TransactionFailed(t ledger.Transaction, _ error) {
	c.failed.WithLabelValues(t.Symbol, string(t.Action)).Inc()
}

func (c *Collector) PositionClosed(p ledger.Position) {
	reason := p.ExitReason
	if reason == "" {
		reason = "unspecified"
	}
	c.closed.WithLabelValues(reason).Inc()
	c.realized.Observe(p.RealizedPnL)
}

func (c *Collector) StateRecorded(s ledger.PortfolioState) {
	c.cash.Set(s.Cash)
	c.totalValue.Set(s.TotalValue)
	c.exposure.Set(s.Exposure)
	c.openPositions.Set(float64(s.PositionCount))
	c.totalReturn.Set(s.TotalReturn)

	c.mu.Lock()
	c.last = s
	c.seen = true
	c.mu.Unlock()
}

func (c *Collector) RollbackFailed(ledger.Transaction, error) {
	c.rollbackFailed.Inc()
}

// Last returns the most recently recorded state, if any.
func (c *Collector) Last() (ledger.PortfolioState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.seen
}

var _ ledger.Observer = (*Collector)(nil)
