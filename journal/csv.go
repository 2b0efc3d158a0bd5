package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/txn"
)

var (
	transactionHeader = []string{"tx_id", "time", "symbol", "action", "quantity", "price", "commission", "slippage", "total_cost", "reason"}
	equityHeader      = []string{"time", "cash", "total_value", "unrealized_pnl", "realized_pnl", "total_return", "exposure", "positions"}
)

// CSV writes transactions and the equity curve to two files. Closed
// positions and audit entries are not kept.
type CSV struct {
	mu     sync.Mutex
	txs    *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(transactionsPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(transactionsPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", transactionsPath, err)
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, fmt.Errorf("create %s: %w", equityPath, err)
	}

	j := &CSV{txs: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.write(j.txs, transactionHeader); err != nil {
		_ = j.closeFiles()
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		_ = j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSV) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) RecordTransaction(t ledger.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.txs, []string{
		t.ID,
		t.Time.UTC().Format(time.RFC3339),
		t.Symbol,
		string(t.Action),
		f(t.Quantity),
		f(t.Price),
		f(t.Commission),
		f(t.Slippage),
		f(t.TotalCost),
		t.Reason,
	})
}

func (j *CSV) RecordState(s ledger.PortfolioState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.write(j.equity, []string{
		s.Time.UTC().Format(time.RFC3339),
		f(s.Cash),
		f(s.TotalValue),
		f(s.UnrealizedPnL),
		f(s.RealizedPnL),
		f(s.TotalReturn),
		f(s.Exposure),
		strconv.Itoa(s.PositionCount),
	})
}

func (j *CSV) RecordPosition(ledger.Position) error { return nil }

func (j *CSV) RecordAudit(txn.LogEntry) error { return nil }

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.txs.Flush()
	j.equity.Flush()
	return errors.Join(j.txs.Error(), j.equity.Error(), j.closeFiles())
}

// closeFiles closes both files even when the first close fails.
func (j *CSV) closeFiles() error {
	return errors.Join(j.tf.Close(), j.ef.Close())
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
