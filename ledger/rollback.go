package ledger

import "fmt"

// Rollback commands registered by the BUY and SELL mutations. Each one sets
// state back to a captured value, so replaying it twice is harmless.

type restoreCash struct {
	l    *Ledger
	cash float64
}

func (r restoreCash) Describe() string { return fmt.Sprintf("restore cash to %.2f", r.cash) }

func (r restoreCash) Undo() error {
	r.l.cash = r.cash
	return nil
}

type restorePosition struct {
	l   *Ledger
	pos Position
}

func (r restorePosition) Describe() string { return "restore position " + r.pos.Symbol }

func (r restorePosition) Undo() error {
	p := r.pos
	r.l.positions[p.Symbol] = &p
	return nil
}

type removePosition struct {
	l      *Ledger
	symbol string
}

func (r removePosition) Describe() string { return "remove position " + r.symbol }

func (r removePosition) Undo() error {
	delete(r.l.positions, r.symbol)
	return nil
}
