package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/txn"
)

var ErrNotFound = errors.New("not found")

// GetRun returns the summary of one run.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, dataset, signals, start_time, end_time, initial_capital, final_value,
		       total_return, max_drawdown, trades, wins, losses, rejected, realized_pnl, config
		FROM runs
		WHERE run_id = ?`, runID)

	err := row.Scan(
		&r.ID, &r.Created, &r.Dataset, &r.Signals, &r.Start, &r.End,
		&r.InitialCapital, &r.FinalValue, &r.TotalReturn, &r.MaxDrawdown,
		&r.Trades, &r.Wins, &r.Losses, &r.Rejected, &r.RealizedPnL, &r.Config,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns run summaries, newest first.
func (j *SQLite) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, created, dataset, signals, start_time, end_time, initial_capital, final_value,
		       total_return, max_drawdown, trades, wins, losses, rejected, realized_pnl
		FROM runs
		ORDER BY created DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.Created, &r.Dataset, &r.Signals, &r.Start, &r.End,
			&r.InitialCapital, &r.FinalValue, &r.TotalReturn, &r.MaxDrawdown,
			&r.Trades, &r.Wins, &r.Losses, &r.Rejected, &r.RealizedPnL,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTransactions returns a run's transactions in time order.
func (j *SQLite) ListTransactions(ctx context.Context, runID string) ([]ledger.Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT tx_id, time, symbol, action, quantity, price, commission, slippage, total_cost, reason
		FROM transactions
		WHERE run_id = ?
		ORDER BY time ASC, tx_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		var action string
		if err := rows.Scan(
			&t.ID, &t.Time, &t.Symbol, &action, &t.Quantity, &t.Price,
			&t.Commission, &t.Slippage, &t.TotalCost, &t.Reason,
		); err != nil {
			return nil, err
		}
		t.Action = market.Action(action)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListClosedPositions returns a run's closed positions in exit order.
func (j *SQLite) ListClosedPositions(ctx context.Context, runID string) ([]ledger.Position, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT symbol, entry_date, entry_price, exit_date, exit_price, realized_pnl, exit_reason
		FROM closed_positions
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		p := ledger.Position{Status: ledger.Closed}
		if err := rows.Scan(
			&p.Symbol, &p.EntryDate, &p.EntryPrice, &p.ExitDate, &p.ExitPrice, &p.RealizedPnL, &p.ExitReason,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListStates returns a run's equity curve.
func (j *SQLite) ListStates(ctx context.Context, runID string) ([]ledger.PortfolioState, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, cash, total_value, unrealized_pnl, realized_pnl, total_return, exposure, position_count
		FROM portfolio_states
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PortfolioState
	for rows.Next() {
		var s ledger.PortfolioState
		if err := rows.Scan(
			&s.Time, &s.Cash, &s.TotalValue, &s.UnrealizedPnL, &s.RealizedPnL,
			&s.TotalReturn, &s.Exposure, &s.PositionCount,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAudit returns a run's transaction log with its snapshots.
func (j *SQLite) ListAudit(ctx context.Context, runID string) ([]txn.LogEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT tx_id, operation, status, error, replayed, time, before, after
		FROM tx_log
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []txn.LogEntry
	for rows.Next() {
		var e txn.LogEntry
		var status string
		if err := rows.Scan(
			&e.TxID, &e.Operation, &status, &e.Err, &e.Replayed, &e.Time, &e.Before, &e.After,
		); err != nil {
			return nil, err
		}
		e.Status = txn.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
