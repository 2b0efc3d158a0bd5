package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/market"
	"github.com/rustyeddy/portfolio/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"runs", "transactions", "closed_positions", "portfolio_states", "tx_log"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteTransactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	buy := ledger.NewTransaction(ts, "AAPL", market.Buy, 10, 100, config.CostConfig{CommissionRate: 0.001})
	buy.ID = "01A"
	buy.Reason = "signal"
	sell := ledger.NewTransaction(ts.Add(time.Hour), "AAPL", market.Sell, 10, 110, config.CostConfig{})
	sell.ID = "01B"

	j.SetRun("run-1")
	require.NoError(t, j.RecordTransaction(sell))
	require.NoError(t, j.RecordTransaction(buy))
	j.SetRun("run-2")
	other := buy
	other.ID = "01C"
	require.NoError(t, j.RecordTransaction(other))

	got, err := j.ListTransactions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "01A", got[0].ID)
	assert.Equal(t, market.Buy, got[0].Action)
	assert.True(t, got[0].Time.Equal(ts))
	assert.InDelta(t, buy.TotalCost, got[0].TotalCost, 1e-9)
	assert.InDelta(t, buy.Commission, got[0].Commission, 1e-9)
	assert.Equal(t, "signal", got[0].Reason)
	assert.Equal(t, market.Sell, got[1].Action)

	// duplicate ids are rejected
	assert.Error(t, j.RecordTransaction(other))

	none, err := j.ListTransactions(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLitePositionsAndStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	j.SetRun("r")

	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p := ledger.Position{
		Symbol:      "MSFT",
		EntryDate:   entry,
		EntryPrice:  300,
		ExitDate:    entry.Add(48 * time.Hour),
		ExitPrice:   285,
		RealizedPnL: -150.5,
		ExitReason:  ledger.ExitStopLoss,
		Status:      ledger.Closed,
	}
	require.NoError(t, j.RecordPosition(p))

	s := ledger.PortfolioState{
		Time:          entry,
		Cash:          90000,
		TotalValue:    100500,
		UnrealizedPnL: 500,
		TotalReturn:   0.005,
		Exposure:      0.1045,
		PositionCount: 2,
	}
	require.NoError(t, j.RecordState(s))

	positions, err := j.ListClosedPositions(ctx, "r")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "MSFT", positions[0].Symbol)
	assert.Equal(t, ledger.Closed, positions[0].Status)
	assert.True(t, positions[0].ExitDate.Equal(p.ExitDate))
	assert.InDelta(t, -150.5, positions[0].RealizedPnL, 1e-9)
	assert.Equal(t, ledger.ExitStopLoss, positions[0].ExitReason)

	states, err := j.ListStates(ctx, "r")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.InDelta(t, 100500.0, states[0].TotalValue, 1e-9)
	assert.Equal(t, 2, states[0].PositionCount)
	assert.True(t, states[0].Time.Equal(entry))
}

func TestSQLiteAuditKeepsSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })
	j.SetRun("r")

	l := ledger.New(*config.Default(), ledger.WithAuditSink(NewRecorder(j, testLogger())))
	require.True(t, l.ExecuteTransaction(ctx, ledger.NewTransaction(time.Now(), "AAPL", market.Buy, 1, 100, config.CostConfig{})))
	require.False(t, l.ExecuteTransaction(ctx, ledger.NewTransaction(time.Now(), "AAPL", market.Sell, 5, 100, config.CostConfig{})))

	entries, err := j.ListAudit(ctx, "r")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, txn.Committed, entries[0].Status)
	assert.Equal(t, txn.RolledBack, entries[1].Status)
	assert.Contains(t, entries[1].Err, "insufficient quantity")
	assert.Empty(t, entries[1].After)

	var before struct {
		Cash float64 `msgpack:"cash"`
	}
	require.NoError(t, entries[0].DecodeBefore(&before))
	assert.Equal(t, 100000.0, before.Cash)

	var after struct {
		Cash      float64           `msgpack:"cash"`
		Positions []ledger.Position `msgpack:"positions"`
	}
	require.NoError(t, entries[0].DecodeAfter(&after))
	assert.Equal(t, 99900.0, after.Cash)
	require.Len(t, after.Positions, 1)
	assert.Equal(t, "AAPL", after.Positions[0].Symbol)
}

func TestSQLiteRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	r := Run{
		ID:             "8c1f",
		Created:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Dataset:        "candles.csv",
		Signals:        "signals.csv",
		Start:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		InitialCapital: 100000,
		FinalValue:     104000,
		TotalReturn:    0.04,
		MaxDrawdown:    0.02,
		Trades:         5,
		Wins:           3,
		Losses:         2,
		Rejected:       1,
		RealizedPnL:    3800,
		Config:         []byte("account:\n  initial_capital: 100000\n"),
	}
	require.NoError(t, j.RecordRun(ctx, r))

	r.FinalValue = 105000
	require.NoError(t, j.RecordRun(ctx, r))

	got, err := j.GetRun(ctx, "8c1f")
	require.NoError(t, err)
	assert.Equal(t, 105000.0, got.FinalValue)
	assert.Equal(t, r.Config, got.Config)
	assert.True(t, got.End.Equal(r.End))
	assert.Equal(t, 3, got.Wins)

	_, err = j.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	older := r
	older.ID = "11aa"
	older.Created = r.Created.Add(-time.Hour)
	require.NoError(t, j.RecordRun(ctx, older))

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "8c1f", runs[0].ID)
	assert.Equal(t, "11aa", runs[1].ID)
	assert.Nil(t, runs[0].Config)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	j, err := Open(config.JournalConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, j)

	j, err = Open(config.JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "j.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, j)
	require.NoError(t, j.Close())

	j, err = Open(config.JournalConfig{
		Type:             "csv",
		TransactionsFile: filepath.Join(dir, "tx.csv"),
		EquityFile:       filepath.Join(dir, "eq.csv"),
	})
	require.NoError(t, err)
	assert.IsType(t, &CSV{}, j)
	require.NoError(t, j.Close())

	_, err = Open(config.JournalConfig{Type: "postgres"})
	assert.Error(t, err)
}
