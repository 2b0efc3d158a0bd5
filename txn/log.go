package txn

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type Status string

const (
	Pending    Status = "PENDING"
	Committed  Status = "COMMITTED"
	RolledBack Status = "ROLLED_BACK"
	Failed     Status = "FAILED"
)

// LogEntry is the audit record of one transaction execution. Before and
// After hold msgpack snapshots so later mutation of the ledger cannot
// change them.
type LogEntry struct {
	TxID      string         `msgpack:"tx_id"`
	Operation string         `msgpack:"operation"`
	Resources []ResourceKind `msgpack:"resources"`
	Before    []byte         `msgpack:"before"`
	After     []byte         `msgpack:"after,omitempty"`
	Status    Status         `msgpack:"status"`
	Err       string         `msgpack:"error,omitempty"`
	Replayed  int            `msgpack:"replayed"`
	Time      time.Time      `msgpack:"time"`
}

// DecodeBefore unmarshals the before-state snapshot into v.
func (e LogEntry) DecodeBefore(v any) error {
	return decode(e.Before, v)
}

// DecodeAfter unmarshals the after-state snapshot into v. It fails when no
// after-state was recorded.
func (e LogEntry) DecodeAfter(v any) error {
	if len(e.After) == 0 {
		return fmt.Errorf("txn %s: no after state", e.TxID)
	}
	return decode(e.After, v)
}

// Sink receives every log entry after the transaction's locks are released.
type Sink interface {
	RecordAudit(LogEntry)
}

func encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

func decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}
