package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	recs, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return recs
}

func newTestCSV(t *testing.T) (*CSV, string, string) {
	t.Helper()
	dir := t.TempDir()
	txPath := filepath.Join(dir, "transactions.csv")
	eqPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(txPath, eqPath)
	require.NoError(t, err)
	return j, txPath, eqPath
}

func TestCSVHeaders(t *testing.T) {
	t.Parallel()

	j, txPath, eqPath := newTestCSV(t)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{transactionHeader}, readCSV(t, txPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, eqPath))
}

func TestCSVRecords(t *testing.T) {
	t.Parallel()

	j, txPath, eqPath := newTestCSV(t)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, j.RecordTransaction(ledger.Transaction{
		ID:         "01HX",
		Time:       ts,
		Symbol:     "AAPL",
		Action:     market.Buy,
		Quantity:   10,
		Price:      100.05,
		Commission: 1.0005,
		Slippage:   0.5,
		TotalCost:  1001.5005,
		Reason:     "signal",
	}))
	require.NoError(t, j.RecordState(ledger.PortfolioState{
		Time:          ts,
		Cash:          98998.4995,
		TotalValue:    99999,
		TotalReturn:   -0.00001,
		Exposure:      0.01,
		PositionCount: 1,
	}))
	// not kept by the CSV journal
	require.NoError(t, j.RecordPosition(ledger.Position{Symbol: "AAPL"}))
	require.NoError(t, j.Close())

	txs := readCSV(t, txPath)
	require.Len(t, txs, 2)
	assert.Equal(t, []string{
		"01HX", "2024-01-02T03:04:05Z", "AAPL", "BUY", "10.000000", "100.050000",
		"1.000500", "0.500000", "1001.500500", "signal",
	}, txs[1])

	eq := readCSV(t, eqPath)
	require.Len(t, eq, 2)
	assert.Equal(t, "2024-01-02T03:04:05Z", eq[1][0])
	assert.Equal(t, "98998.499500", eq[1][1])
	assert.Equal(t, "1", eq[1][7])
}

func TestCSVCloseAfterFlushError(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestCSV(t)
	// buffered but unflushed row, then the file goes away underneath it
	require.NoError(t, j.txs.Write([]string{"pending"}))
	require.NoError(t, j.tf.Close())

	err := j.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrClosed)

	// the equity file was still closed
	assert.ErrorIs(t, j.ef.Close(), os.ErrClosed)
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := NewCSV(filepath.Join(dir, "missing", "tx.csv"), filepath.Join(dir, "eq.csv"))
	assert.Error(t, err)

	_, err = NewCSV(filepath.Join(dir, "tx.csv"), filepath.Join(dir, "missing", "eq.csv"))
	assert.Error(t, err)
}
