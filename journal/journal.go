// Package journal persists ledger activity for later review.
package journal

import (
	"fmt"

	"github.com/rustyeddy/portfolio/config"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/txn"
)

type Journal interface {
	RecordTransaction(ledger.Transaction) error
	RecordPosition(ledger.Position) error
	RecordState(ledger.PortfolioState) error
	RecordAudit(txn.LogEntry) error
	Close() error
}

// Open returns the journal selected by cfg. Type "none" yields a nil
// Journal and no error.
func Open(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "csv":
		j, err := NewCSV(cfg.TransactionsFile, cfg.EquityFile)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "sqlite":
		j, err := NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return nil, fmt.Errorf("journal: unknown type %q", cfg.Type)
}
