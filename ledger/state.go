package ledger

import (
	"time"

	"github.com/rustyeddy/portfolio/txn"
)

// GetPortfolioState values the ledger at the ledger clock's current time
// and appends the result to the state history.
func (l *Ledger) GetPortfolioState() PortfolioState {
	return l.RecordState(l.now())
}

// RecordState values the ledger as of at. Backtests pass the simulated
// time. The snapshot is taken under every resource lock so it never
// straddles a transaction.
func (l *Ledger) RecordState(at time.Time) PortfolioState {
	unlock := l.tm.Lock(txn.AllResources...)
	s := l.stateLocked(at)
	l.states.Append(s)
	unlock()

	l.observer.StateRecorded(s)
	return s
}

func (l *Ledger) stateLocked(at time.Time) PortfolioState {
	s := PortfolioState{
		Time:          at,
		Cash:          l.cash,
		Positions:     l.positionsLocked(),
		RealizedPnL:   l.realizedClosed,
		PositionCount: len(l.positions),
	}

	var invested, largest float64
	for _, p := range s.Positions {
		v := p.MarketValue()
		invested += v
		s.UnrealizedPnL += p.UnrealizedPnL
		s.RealizedPnL += p.RealizedPnL
		if v > largest || s.LargestPosition == "" {
			largest = v
			s.LargestPosition = p.Symbol
		}
	}
	s.TotalValue = s.Cash + invested

	if initial := l.cfg.Account.InitialCapital; initial > 0 {
		s.TotalReturn = (s.TotalValue - initial) / initial
	}
	if s.TotalValue != 0 {
		s.Exposure = (s.TotalValue - s.Cash) / s.TotalValue
	}
	return s
}
