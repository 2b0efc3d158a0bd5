package txn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRollbackFailed  = errors.New("txn: rollback failed")
	ErrPanic           = errors.New("txn: panic in mutation")
	ErrUnknownResource = errors.New("txn: unknown resource")
)

// RollbackAction restores one piece of state changed by a mutation. Actions
// are replayed in reverse registration order.
type RollbackAction interface {
	Describe() string
	Undo() error
}

// UndoFunc adapts a plain function to RollbackAction.
type UndoFunc func() error

func (f UndoFunc) Describe() string { return "func" }
func (f UndoFunc) Undo() error      { return f() }

// RollbackError is returned when one or more rollback actions failed. The
// state guarded by the transaction can no longer be assumed consistent.
type RollbackError struct {
	TxID     string
	Cause    error
	Failures []error
}

func (e *RollbackError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("txn %s: rollback failed after %v: %s", e.TxID, e.Cause, strings.Join(msgs, "; "))
}

func (e *RollbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+2)
	out = append(out, ErrRollbackFailed)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return append(out, e.Failures...)
}

// replay undoes actions LIFO. Every action is attempted even after a
// failure. It returns the number of actions that ran.
func replay(actions []RollbackAction) (int, []error) {
	var failures []error
	n := 0
	for i := len(actions) - 1; i >= 0; i-- {
		n++
		if err := undo(actions[i]); err != nil {
			failures = append(failures, err)
		}
	}
	return n, failures
}

func undo(a RollbackAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("undo %s: panic: %v", a.Describe(), r)
		}
	}()
	if err := a.Undo(); err != nil {
		return fmt.Errorf("undo %s: %w", a.Describe(), err)
	}
	return nil
}
