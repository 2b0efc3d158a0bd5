package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/txn"
)

// SQLite stores every record in one database. Rows are tagged with the
// current run id so several backtests can share a file.
type SQLite struct {
	db *sql.DB

	mu    sync.RWMutex
	runID string
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// SetRun tags subsequent records with runID.
func (j *SQLite) SetRun(runID string) {
	j.mu.Lock()
	j.runID = runID
	j.mu.Unlock()
}

func (j *SQLite) run() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.runID
}

func (j *SQLite) RecordTransaction(t ledger.Transaction) error {
	_, err := j.db.Exec(`
		INSERT INTO transactions
		(tx_id, run_id, time, symbol, action, quantity, price, commission, slippage, total_cost, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, j.run(), t.Time, t.Symbol, string(t.Action), t.Quantity,
		t.Price, t.Commission, t.Slippage, t.TotalCost, t.Reason,
	)
	if err != nil {
		return fmt.Errorf("record transaction %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) RecordPosition(p ledger.Position) error {
	_, err := j.db.Exec(`
		INSERT INTO closed_positions
		(run_id, symbol, entry_date, entry_price, exit_date, exit_price, realized_pnl, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.run(), p.Symbol, p.EntryDate, p.EntryPrice, p.ExitDate, p.ExitPrice, p.RealizedPnL, p.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("record position %s: %w", p.Symbol, err)
	}
	return nil
}

func (j *SQLite) RecordState(s ledger.PortfolioState) error {
	_, err := j.db.Exec(`
		INSERT INTO portfolio_states
		(run_id, time, cash, total_value, unrealized_pnl, realized_pnl, total_return, exposure, position_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.run(), s.Time, s.Cash, s.TotalValue, s.UnrealizedPnL, s.RealizedPnL,
		s.TotalReturn, s.Exposure, s.PositionCount,
	)
	if err != nil {
		return fmt.Errorf("record state: %w", err)
	}
	return nil
}

// RecordAudit stores the entry with its msgpack snapshots as BLOBs.
func (j *SQLite) RecordAudit(e txn.LogEntry) error {
	_, err := j.db.Exec(`
		INSERT INTO tx_log
		(run_id, tx_id, operation, status, error, replayed, time, before, after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.run(), e.TxID, e.Operation, string(e.Status), e.Err, e.Replayed, e.Time, e.Before, e.After,
	)
	if err != nil {
		return fmt.Errorf("record audit %s: %w", e.TxID, err)
	}
	return nil
}

// RecordRun inserts or replaces the run summary.
func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, created, dataset, signals, start_time, end_time, initial_capital, final_value,
		 total_return, max_drawdown, trades, wins, losses, rejected, realized_pnl, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Created, r.Dataset, r.Signals, r.Start, r.End, r.InitialCapital, r.FinalValue,
		r.TotalReturn, r.MaxDrawdown, r.Trades, r.Wins, r.Losses, r.Rejected, r.RealizedPnL, r.Config,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
