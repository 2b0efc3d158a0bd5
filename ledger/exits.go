package ledger

import (
	"time"

	"github.com/rustyeddy/portfolio/txn"
)

// CheckExitConditions returns copies of the open positions whose exit rule
// fired at now, sorted by symbol. Rules are checked in a fixed order and
// the first match wins: stop-loss, take-profit, then holding period. The
// positions are not sold; callers close them with ClosePosition.
func (l *Ledger) CheckExitConditions(now time.Time) []Position {
	unlock := l.tm.Lock(txn.Positions)
	open := l.positionsLocked()
	unlock()

	var out []Position
	for _, p := range open {
		if reason := l.exitReason(p, now); reason != "" {
			p.ExitReason = reason
			p.StopLossTriggered = reason == ExitStopLoss
			p.TakeProfitTriggered = reason == ExitTakeProfit
			out = append(out, p)
		}
	}
	return out
}

func (l *Ledger) exitReason(p Position, now time.Time) string {
	basis := p.CostBasis()
	if basis > 0 {
		pct := p.UnrealizedPnL / basis
		switch {
		case p.UnrealizedPnL < 0 && -pct >= l.cfg.Risk.StopLoss:
			return ExitStopLoss
		case p.UnrealizedPnL > 0 && pct >= l.cfg.Risk.TakeProfit:
			return ExitTakeProfit
		}
	}
	if now.Sub(p.EntryDate) > MaxHoldingPeriod {
		return ExitMaxHolding
	}
	return ""
}
