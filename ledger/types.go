package ledger

import (
	"time"

	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/market"
)

type PositionStatus string

const (
	Open            PositionStatus = "OPEN"
	Closed          PositionStatus = "CLOSED"
	PartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
)

// Exit reasons set by CheckExitConditions.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitMaxHolding = "max_holding_period"
)

// Position is a long holding in one symbol.
type Position struct {
	Symbol     string         `msgpack:"symbol"`
	EntryDate  time.Time      `msgpack:"entry_date"`
	EntryPrice float64        `msgpack:"entry_price"` // quantity-weighted average fill
	Quantity   float64        `msgpack:"quantity"`
	MarkPrice  float64        `msgpack:"mark_price"` // last price seen
	Status     PositionStatus `msgpack:"status"`

	UnrealizedPnL float64 `msgpack:"unrealized_pnl"`
	RealizedPnL   float64 `msgpack:"realized_pnl"`

	StopLossTriggered   bool `msgpack:"stop_loss_triggered"`
	TakeProfitTriggered bool `msgpack:"take_profit_triggered"`

	EntryReason string    `msgpack:"entry_reason,omitempty"`
	ExitReason  string    `msgpack:"exit_reason,omitempty"`
	ExitDate    time.Time `msgpack:"exit_date,omitempty"`
	ExitPrice   float64   `msgpack:"exit_price,omitempty"`
}

func (p Position) MarketValue() float64 { return p.Quantity * p.MarkPrice }

func (p Position) CostBasis() float64 { return p.Quantity * p.EntryPrice }

func (p *Position) mark(price float64) {
	p.MarkPrice = price
	p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
}

// Transaction is an executed or proposed order. Price is the fill price.
// For a BUY TotalCost is the cash paid including commission; for a SELL it
// is the net proceeds after commission.
type Transaction struct {
	ID         string         `msgpack:"id"`
	Time       time.Time      `msgpack:"time"`
	Symbol     string         `msgpack:"symbol"`
	Action     market.Action  `msgpack:"action"`
	Quantity   float64        `msgpack:"quantity"`
	Price      float64        `msgpack:"price"`
	Commission float64        `msgpack:"commission"`
	Slippage   float64        `msgpack:"slippage"` // currency cost of fill vs reference price
	TotalCost  float64        `msgpack:"total_cost"`
	Reason     string         `msgpack:"reason,omitempty"`
	Signal     *market.Signal `msgpack:"signal,omitempty"`
}

// NewTransaction prices an order against a reference price. BUYs fill above
// the reference and SELLs below it by the slippage rate; commission is a
// rate on the filled notional.
func NewTransaction(ts time.Time, symbol string, action market.Action, qty, refPrice float64, costs config.CostConfig) Transaction {
	fill := refPrice
	switch action {
	case market.Buy:
		fill = refPrice * (1 + costs.SlippageRate)
	case market.Sell:
		fill = refPrice * (1 - costs.SlippageRate)
	}
	t := Transaction{
		Time:       ts,
		Symbol:     symbol,
		Action:     action,
		Quantity:   qty,
		Price:      fill,
		Commission: qty * fill * costs.CommissionRate,
		Slippage:   abs(fill-refPrice) * qty,
	}
	t.TotalCost = t.total()
	return t
}

func (t Transaction) total() float64 {
	if t.Action == market.Sell {
		return t.Quantity*t.Price - t.Commission
	}
	return t.Quantity*t.Price + t.Commission
}

// PortfolioState is a point-in-time valuation of the ledger.
type PortfolioState struct {
	Time            time.Time  `msgpack:"time"`
	Cash            float64    `msgpack:"cash"`
	Positions       []Position `msgpack:"positions"`
	TotalValue      float64    `msgpack:"total_value"`
	UnrealizedPnL   float64    `msgpack:"unrealized_pnl"`
	RealizedPnL     float64    `msgpack:"realized_pnl"`
	TotalReturn     float64    `msgpack:"total_return"`
	Exposure        float64    `msgpack:"exposure"`
	PositionCount   int        `msgpack:"position_count"`
	LargestPosition string     `msgpack:"largest_position,omitempty"`
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
