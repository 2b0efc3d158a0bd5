// Package ledger owns cash, open positions and their histories. Every
// change goes through an atomic transaction so a failed order leaves the
// ledger exactly as it was.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/pkg/id"
	"github.com/rustyeddy/portfolio/ring"
	"github.com/rustyeddy/portfolio/risk"
	"github.com/rustyeddy/portfolio/sizing"
	"github.com/rustyeddy/portfolio/txn"
)

var (
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrNoPosition           = errors.New("no open position")
	ErrUnknownAction        = errors.New("unknown action")
	ErrInvalidTransaction   = errors.New("invalid transaction")
)

// MaxHoldingPeriod closes positions held longer than this.
const MaxHoldingPeriod = 30 * 24 * time.Hour

// dust is the residual quantity, relative to the sold quantity, treated as
// a complete close.
const dust = 1e-9

// costTolerance is the relative slack allowed between a transaction's
// TotalCost and the total recomputed from quantity, price and commission.
const costTolerance = 1e-9

type Ledger struct {
	cfg      config.Config
	log      zerolog.Logger
	observer Observer
	sink     txn.Sink
	now      func() time.Time

	tm       *txn.Manager
	analyzer *risk.Analyzer
	sizer    *sizing.Sizer

	// guarded by txn.Cash
	cash float64

	// guarded by txn.Positions
	positions map[string]*Position

	// guarded by txn.Portfolio
	transactions   *ring.Buffer[Transaction]
	closed         *ring.Buffer[Position]
	states         *ring.Buffer[PortfolioState]
	realizedClosed float64

	inconsistent atomic.Bool
}

type Option func(*Ledger)

func WithLogger(l zerolog.Logger) Option { return func(led *Ledger) { led.log = l } }

// WithObserver sets the ledger's event observer. Nil means none.
func WithObserver(o Observer) Option { return func(led *Ledger) { led.observer = o } }

// WithAuditSink forwards every transaction log entry to s.
func WithAuditSink(s txn.Sink) Option { return func(led *Ledger) { led.sink = s } }

func WithClock(now func() time.Time) Option { return func(led *Ledger) { led.now = now } }

// New builds a ledger funded with cfg.Account.InitialCapital.
func New(cfg config.Config, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:  cfg,
		log:  zerolog.Nop(),
		now:  time.Now,
		cash: cfg.Account.InitialCapital,

		positions:    make(map[string]*Position),
		transactions: ring.New[Transaction](cfg.History.Transactions),
		closed:       ring.New[Position](cfg.History.ClosedPositions),
		states:       ring.New[PortfolioState](cfg.History.States),
	}
	for _, o := range opts {
		o(l)
	}
	if l.observer == nil {
		l.observer = nopObserver{}
	}

	base := l.log
	l.log = base.With().Str("component", "ledger").Logger()

	topts := []txn.Option{txn.WithLogger(base), txn.WithClock(l.now)}
	if l.sink != nil {
		topts = append(topts, txn.WithSink(l.sink))
	}
	l.tm = txn.NewManager(cfg.History.Audit, topts...)
	l.analyzer = risk.NewAnalyzer(cfg.Analyzer, base)
	l.sizer = sizing.New(cfg.Risk, l.analyzer, base)
	return l
}

func (l *Ledger) Config() config.Config { return l.cfg }

func (l *Ledger) Analyzer() *risk.Analyzer { return l.analyzer }

func (l *Ledger) InitialCapital() float64 { return l.cfg.Account.InitialCapital }

// Consistent reports false once a rollback has failed. From then on the
// ledger's invariants can no longer be assumed.
func (l *Ledger) Consistent() bool { return !l.inconsistent.Load() }

func (l *Ledger) Cash() float64 {
	unlock := l.tm.Lock(txn.Cash)
	defer unlock()
	return l.cash
}

// snapshot is the msgpack before/after state of a transaction.
type snapshot struct {
	Cash      float64    `msgpack:"cash"`
	Positions []Position `msgpack:"positions"`
}

// snapshotLocked requires the cash and positions locks.
func (l *Ledger) snapshotLocked() any {
	return snapshot{Cash: l.cash, Positions: l.positionsLocked()}
}

func (l *Ledger) positionsLocked() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ExecuteTransaction applies a BUY or SELL atomically. It returns false
// when the transaction was rejected or rolled back; the reason is logged
// and reported to the observer, never returned.
func (l *Ledger) ExecuteTransaction(ctx context.Context, t Transaction) bool {
	if t.ID == "" {
		t.ID = id.NewAt(t.Time)
	}
	if t.TotalCost == 0 {
		t.TotalCost = t.total()
	}

	req := txn.Request{
		ID:        t.ID,
		Operation: fmt.Sprintf("%s %s", t.Action, t.Symbol),
		Resources: txn.AllResources,
		Before:    l.snapshotLocked,
	}
	closed, err := txn.Execute(ctx, l.tm, req, func(tx *txn.Tx) (*Position, error) {
		if err := validate(t); err != nil {
			return nil, err
		}

		var closed *Position
		var err error
		switch t.Action {
		case market.Buy:
			err = l.buyLocked(tx, t)
		case market.Sell:
			closed, err = l.sellLocked(tx, t)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownAction, t.Action)
		}
		if err != nil {
			return nil, err
		}

		tx.SetAfter(l.snapshotLocked())
		tx.OnCommit(func() {
			l.transactions.Append(t)
			if closed != nil {
				l.closed.Append(*closed)
				l.realizedClosed += closed.RealizedPnL
			}
		})
		return closed, nil
	})
	return l.report(t, closed, err)
}

// report logs the outcome of a transaction and notifies the observer.
func (l *Ledger) report(t Transaction, closed *Position, err error) bool {
	if err != nil {
		if errors.Is(err, txn.ErrRollbackFailed) {
			l.inconsistent.Store(true)
			l.log.Error().Err(err).Str("tx", t.ID).Msg("ledger inconsistent after failed rollback")
			l.observer.RollbackFailed(t, err)
		} else {
			l.log.Warn().Err(err).
				Str("tx", t.ID).
				Str("symbol", t.Symbol).
				Str("action", string(t.Action)).
				Float64("quantity", t.Quantity).
				Msg("transaction rejected")
		}
		l.observer.TransactionFailed(t, err)
		return false
	}

	l.log.Info().
		Str("tx", t.ID).
		Str("symbol", t.Symbol).
		Str("action", string(t.Action)).
		Float64("quantity", t.Quantity).
		Float64("price", t.Price).
		Float64("total", t.TotalCost).
		Msg("transaction committed")
	l.observer.TransactionCommitted(t)
	if closed != nil {
		l.observer.PositionClosed(*closed)
	}
	return true
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func validate(t Transaction) error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidTransaction)
	case !finite(t.Quantity) || t.Quantity <= 0:
		return fmt.Errorf("%w: quantity %v must be positive", ErrInvalidTransaction, t.Quantity)
	case !finite(t.Price) || t.Price <= 0:
		return fmt.Errorf("%w: price %v must be positive", ErrInvalidTransaction, t.Price)
	case !finite(t.Commission) || t.Commission < 0:
		return fmt.Errorf("%w: commission %v must not be negative", ErrInvalidTransaction, t.Commission)
	}
	if want := t.total(); !finite(t.TotalCost) || math.Abs(t.TotalCost-want) > costTolerance*math.Max(1, math.Abs(want)) {
		return fmt.Errorf("%w: total cost %v does not match %.6f", ErrInvalidTransaction, t.TotalCost, want)
	}
	return nil
}

func (l *Ledger) buyLocked(tx *txn.Tx, t Transaction) error {
	cost := t.TotalCost
	if cost > l.cash {
		return fmt.Errorf("buy %s: need %.2f, have %.2f: %w", t.Symbol, cost, l.cash, ErrInsufficientCash)
	}

	tx.Register(restoreCash{l: l, cash: l.cash})
	l.cash -= cost

	if p, ok := l.positions[t.Symbol]; ok {
		tx.Register(restorePosition{l: l, pos: *p})
		qty := p.Quantity + t.Quantity
		p.EntryPrice = (p.Quantity*p.EntryPrice + t.Quantity*t.Price) / qty
		p.Quantity = qty
		p.mark(t.Price)
		return nil
	}

	p := &Position{
		Symbol:      t.Symbol,
		EntryDate:   t.Time,
		EntryPrice:  t.Price,
		Quantity:    t.Quantity,
		Status:      Open,
		EntryReason: t.Reason,
	}
	p.mark(t.Price)
	l.positions[t.Symbol] = p
	tx.Register(removePosition{l: l, symbol: t.Symbol})
	return nil
}

// sellLocked returns the closed position when the sale empties it.
func (l *Ledger) sellLocked(tx *txn.Tx, t Transaction) (*Position, error) {
	p, ok := l.positions[t.Symbol]
	if !ok {
		return nil, fmt.Errorf("sell %s: %w", t.Symbol, ErrNoPosition)
	}
	if t.Quantity-p.Quantity > dust*t.Quantity {
		return nil, fmt.Errorf("sell %s: want %v, hold %v: %w", t.Symbol, t.Quantity, p.Quantity, ErrInsufficientQuantity)
	}

	if l.cash+t.TotalCost < 0 {
		return nil, fmt.Errorf("sell %s: proceeds %.2f: %w", t.Symbol, t.TotalCost, ErrInsufficientCash)
	}
	tx.Register(restoreCash{l: l, cash: l.cash})
	l.cash += t.TotalCost

	tx.Register(restorePosition{l: l, pos: *p})
	remaining := p.Quantity - t.Quantity
	if remaining < dust*t.Quantity {
		remaining = 0
	}
	p.RealizedPnL += (t.Price-p.EntryPrice)*t.Quantity - t.Commission
	p.Quantity = remaining

	if remaining > 0 {
		p.Status = PartiallyClosed
		p.mark(t.Price)
		return nil, nil
	}

	p.Status = Closed
	p.MarkPrice = t.Price
	p.UnrealizedPnL = 0
	p.ExitDate = t.Time
	p.ExitPrice = t.Price
	p.ExitReason = t.Reason
	p.StopLossTriggered = t.Reason == ExitStopLoss
	p.TakeProfitTriggered = t.Reason == ExitTakeProfit
	delete(l.positions, t.Symbol)

	closed := *p
	return &closed, nil
}

// UpdatePositionValue marks an open position to price. Unknown symbols and
// non-positive prices are ignored.
func (l *Ledger) UpdatePositionValue(symbol string, price float64) {
	if !finite(price) || price <= 0 {
		l.log.Warn().Str("symbol", symbol).Float64("price", price).Msg("ignoring invalid mark price")
		return
	}
	unlock := l.tm.Lock(txn.Positions)
	defer unlock()
	if p, ok := l.positions[symbol]; ok {
		p.mark(price)
	}
}

// GetOpenPositions returns the held symbols in sorted order.
func (l *Ledger) GetOpenPositions() []string {
	unlock := l.tm.Lock(txn.Positions)
	defer unlock()
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Position returns a copy of the open position in symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	unlock := l.tm.Lock(txn.Positions)
	defer unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// ClosePosition sells the entire current quantity of symbol at a reference
// price. Exit-rule closes always go through here.
func (l *Ledger) ClosePosition(ctx context.Context, at time.Time, symbol string, price float64, reason string) bool {
	p, ok := l.Position(symbol)
	if !ok {
		l.log.Warn().Str("symbol", symbol).Msg("close requested without open position")
		return false
	}
	t := NewTransaction(at, symbol, market.Sell, p.Quantity, price, l.cfg.Costs)
	t.Reason = reason
	return l.ExecuteTransaction(ctx, t)
}

// account builds the sizer's view of the ledger under cash and positions
// locks so cash and holdings agree.
func (l *Ledger) account(symbol string) sizing.Account {
	unlock := l.tm.Lock(txn.Cash, txn.Positions)
	defer unlock()

	a := sizing.Account{
		Cash:           l.cash,
		InitialCapital: l.cfg.Account.InitialCapital,
		OpenPositions:  len(l.positions),
		HeldSymbols:    make([]string, 0, len(l.positions)),
	}
	for s, p := range l.positions {
		a.HeldSymbols = append(a.HeldSymbols, s)
		if s == symbol {
			a.HasPosition = true
			a.ExistingValue = p.MarketValue()
		}
	}
	sort.Strings(a.HeldSymbols)
	return a
}

// CalculatePositionSize returns the currency amount to commit to sig, or 0.
func (l *Ledger) CalculatePositionSize(sig market.Signal, confidence, price float64) float64 {
	return l.sizer.CalculatePositionSize(sig, confidence, price, l.account(sig.Symbol))
}

// SizeDecision is CalculatePositionSize with the full breakdown.
func (l *Ledger) SizeDecision(sig market.Signal, confidence, price float64) sizing.Decision {
	return l.sizer.Decide(sig, confidence, price, l.account(sig.Symbol))
}

// UpdateMarketData feeds price and return history to the sizer's risk
// adjustments.
func (l *Ledger) UpdateMarketData(symbol string, candles []market.Candle, returns []float64) {
	l.sizer.UpdateMarketData(symbol, candles, returns)
}

func (l *Ledger) Transactions() []Transaction {
	unlock := l.tm.Lock(txn.Portfolio)
	defer unlock()
	return l.transactions.All()
}

func (l *Ledger) ClosedPositions() []Position {
	unlock := l.tm.Lock(txn.Portfolio)
	defer unlock()
	return l.closed.All()
}

func (l *Ledger) StateHistory() []PortfolioState {
	unlock := l.tm.Lock(txn.Portfolio)
	defer unlock()
	return l.states.All()
}

func (l *Ledger) AuditLog() []txn.LogEntry { return l.tm.Entries() }
