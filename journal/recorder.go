package journal

import (
	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/ledger"
	"github.com/rustyeddy/portfolio/txn"
)

// Recorder writes ledger events and audit entries to a Journal. Write
// errors are logged; they never fail the ledger operation that caused them.
type Recorder struct {
	j   Journal
	log zerolog.Logger
}

func NewRecorder(j Journal, log zerolog.Logger) *Recorder {
	return &Recorder{j: j, log: log.With().Str("component", "journal").Logger()}
}

func (r *Recorder) TransactionCommitted(t ledger.Transaction) {
	if err := r.j.RecordTransaction(t); err != nil {
		r.log.Error().Err(err).Str("tx", t.ID).Msg("journal transaction")
	}
}

// TransactionFailed is covered by the audit entry.
func (r *Recorder) TransactionFailed(ledger.Transaction, error) {}

func (r *Recorder) PositionClosed(p ledger.Position) {
	if err := r.j.RecordPosition(p); err != nil {
		r.log.Error().Err(err).Str("symbol", p.Symbol).Msg("journal position")
	}
}

func (r *Recorder) StateRecorded(s ledger.PortfolioState) {
	if err := r.j.RecordState(s); err != nil {
		r.log.Error().Err(err).Time("time", s.Time).Msg("journal state")
	}
}

func (r *Recorder) RollbackFailed(ledger.Transaction, error) {}

// RecordAudit implements txn.Sink.
func (r *Recorder) RecordAudit(e txn.LogEntry) {
	if err := r.j.RecordAudit(e); err != nil {
		r.log.Error().Err(err).Str("tx", e.TxID).Msg("journal audit")
	}
}

var (
	_ ledger.Observer = (*Recorder)(nil)
	_ txn.Sink        = (*Recorder)(nil)
	_ Journal         = (*SQLite)(nil)
	_ Journal         = (*CSV)(nil)
)
