package ledger

// Observer is notified of ledger events after the ledger's locks are
// released. Implementations must not block for long.
type Observer interface {
	TransactionCommitted(Transaction)
	TransactionFailed(Transaction, error)
	PositionClosed(Position)
	StateRecorded(PortfolioState)
	RollbackFailed(Transaction, error)
}

type nopObserver struct{}

func (nopObserver) TransactionCommitted(Transaction)     {}
func (nopObserver) TransactionFailed(Transaction, error) {}
func (nopObserver) PositionClosed(Position)              {}
func (nopObserver) StateRecorded(PortfolioState)         {}
func (nopObserver) RollbackFailed(Transaction, error)    {}

// MultiObserver fans events out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) TransactionCommitted(t Transaction) {
	for _, o := range m {
		o.TransactionCommitted(t)
	}
}

func (m MultiObserver) TransactionFailed(t Transaction, err error) {
	for _, o := range m {
		o.TransactionFailed(t, err)
	}
}

func (m MultiObserver) PositionClosed(p Position) {
	for _, o := range m {
		o.PositionClosed(p)
	}
}

func (m MultiObserver) StateRecorded(s PortfolioState) {
	for _, o := range m {
		o.StateRecorded(s)
	}
}

func (m MultiObserver) RollbackFailed(t Transaction, err error) {
	for _, o := range m {
		o.RollbackFailed(t, err)
	}
}
