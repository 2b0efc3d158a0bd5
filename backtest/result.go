package backtest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rustyeddy/portfolio/ledger"
)

// Result summarizes a run.
type Result struct {
	RunID      string
	Start, End time.Time
	Steps      int
	Signals    int

	InitialCapital float64
	FinalValue     float64
	TotalReturn    float64
	MaxDrawdown    float64 // largest peak-to-trough fall of total value, as a fraction
	RealizedPnL    float64

	Trades        int // closed positions
	Wins          int
	Losses        int
	Rejected      int // transactions the ledger refused
	OpenPositions int
}

func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

// PrintResult renders the result as a table.
func PrintResult(w io.Writer, r Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST " + r.RunID)
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Start", r.Start.Format(time.DateOnly)},
		{"End", r.End.Format(time.DateOnly)},
		{"Steps", r.Steps},
		{"Signals", r.Signals},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Initial Capital", fmt.Sprintf("%.2f", r.InitialCapital)},
		{"Final Value", fmt.Sprintf("%.2f", r.FinalValue)},
		{"Return", fmt.Sprintf("%.2f%%", r.TotalReturn*100)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", r.MaxDrawdown*100)},
		{"Realized P&L", fmt.Sprintf("%.2f", r.RealizedPnL)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Trades", r.Trades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", r.Wins, r.Losses)},
		{"Win Rate", fmt.Sprintf("%.2f%%", r.WinRate()*100)},
		{"Rejected", r.Rejected},
		{"Open Positions", r.OpenPositions},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// PrintPositions renders closed or open positions as a table.
func PrintPositions(w io.Writer, title string, ps []ledger.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Status", "Qty", "Entry", "Mark/Exit", "Realized", "Unrealized", "Reason"})
	for _, p := range ps {
		px := p.MarkPrice
		if p.Status == ledger.Closed {
			px = p.ExitPrice
		}
		t.AppendRow(table.Row{
			p.Symbol, p.Status,
			fmt.Sprintf("%.4f", p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", px),
			fmt.Sprintf("%.2f", p.RealizedPnL),
			fmt.Sprintf("%.2f", p.UnrealizedPnL),
			p.ExitReason,
		})
	}
	t.Render()
}

// Tally counts closed positions. Register it as a ledger observer.
type Tally struct {
	mu                   sync.Mutex
	trades, wins, losses int
}

func (t *Tally) Counts() (trades, wins, losses int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trades, t.wins, t.losses
}

func (t *Tally) PositionClosed(p ledger.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades++
	switch {
	case p.RealizedPnL > 0:
		t.wins++
	case p.RealizedPnL < 0:
		t.losses++
	}
}

func (*Tally) TransactionCommitted(ledger.Transaction)     {}
func (*Tally) TransactionFailed(ledger.Transaction, error) {}
func (*Tally) StateRecorded(ledger.PortfolioState)         {}
func (*Tally) RollbackFailed(ledger.Transaction, error)    {}

var _ ledger.Observer = (*Tally)(nil)
