// Package txn runs all-or-nothing mutations over named shared resources.
// A mutation registers typed rollback actions as it changes state; on
// failure they are replayed in reverse order before any lock is released.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/portfolio/ring"
)

const DefaultLogCapacity = 10000

type Manager struct {
	global sync.RWMutex
	locks  [numResources]sync.Mutex

	mu      sync.Mutex
	entries *ring.Buffer[LogEntry]

	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

type Option func(*Manager)

func WithSink(s Sink) Option { return func(m *Manager) { m.sink = s } }

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "txn").Logger() }
}

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager keeps the most recent capacity log entries.
func NewManager(capacity int, opts ...Option) *Manager {
	m := &Manager{
		entries: ring.New[LogEntry](capacity),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Request describes one transaction. Before, when set, is called with the
// resources locked and its result is stored as the before-state.
type Request struct {
	ID        string
	Operation string
	Resources []ResourceKind
	Before    func() any
}

// Tx is handed to the mutation function.
type Tx struct {
	id       string
	actions  []RollbackAction
	after    any
	onCommit []func()
}

func (t *Tx) ID() string { return t.id }

// Register records how to undo a change that has just been applied.
func (t *Tx) Register(a RollbackAction) { t.actions = append(t.actions, a) }

// SetAfter sets the state recorded as the after-snapshot on commit.
func (t *Tx) SetAfter(state any) { t.after = state }

// OnCommit schedules fn to run after a successful mutation while the
// transaction's locks are still held.
func (t *Tx) OnCommit(fn func()) { t.onCommit = append(t.onCommit, fn) }

// Execute locks req.Resources in order, runs fn and commits or rolls back.
// The context is only consulted before locking: once fn starts the
// transaction runs to completion.
func Execute[T any](ctx context.Context, m *Manager, req Request, fn func(*Tx) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, m.reject(req, req.Resources, err)
	}
	resources, err := ordered(req.Resources)
	if err != nil {
		return zero, m.reject(req, req.Resources, err)
	}

	unlock := m.lock(resources)
	var before []byte
	if req.Before != nil {
		if before, err = encode(req.Before()); err != nil {
			unlock()
			return zero, m.reject(req, resources, err)
		}
	}

	entry := LogEntry{
		TxID:      req.ID,
		Operation: req.Operation,
		Resources: resources,
		Before:    before,
		Status:    Pending,
	}
	tx := &Tx{id: req.ID}
	res, err := run(tx, fn)
	entry.Time = m.now()

	if err == nil {
		if after, encErr := encode(tx.after); encErr != nil {
			m.log.Warn().Err(encErr).Str("tx", req.ID).Msg("after state not recorded")
		} else {
			entry.After = after
		}
		entry.Status = Committed
		if hookErr := runHooks(tx.onCommit); hookErr != nil {
			entry.Err = hookErr.Error()
			m.log.Error().Err(hookErr).Str("tx", req.ID).Msg("commit hook failed")
		}
		m.append(entry)
		unlock()

		m.log.Debug().Str("tx", req.ID).Str("op", req.Operation).Msg("committed")
		m.forward(entry)
		return res, nil
	}

	n, failures := replay(tx.actions)
	entry.Replayed = n
	entry.Err = err.Error()
	if len(failures) > 0 {
		entry.Status = Failed
		err = &RollbackError{TxID: req.ID, Cause: err, Failures: failures}
	} else {
		entry.Status = RolledBack
	}
	m.append(entry)
	unlock()

	if entry.Status == Failed {
		m.log.Error().Err(err).Str("tx", req.ID).Str("op", req.Operation).Msg("rollback failed")
	} else {
		m.log.Warn().Err(err).Str("tx", req.ID).Str("op", req.Operation).Int("replayed", n).Msg("rolled back")
	}
	m.forward(entry)
	return zero, err
}

// reject records a FAILED entry for a transaction that never ran its
// mutation. Nothing is locked when it is called.
func (m *Manager) reject(req Request, resources []ResourceKind, cause error) error {
	err := fmt.Errorf("txn %s: %w", req.ID, cause)
	e := LogEntry{
		TxID:      req.ID,
		Operation: req.Operation,
		Resources: resources,
		Status:    Failed,
		Err:       err.Error(),
		Time:      m.now(),
	}
	m.append(e)
	m.log.Warn().Err(err).Str("tx", req.ID).Str("op", req.Operation).Msg("rejected")
	m.forward(e)
	return err
}

// runHooks runs every commit hook. A panicking hook does not stop the
// others; the first panic is returned.
func runHooks(hooks []func()) (err error) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil && err == nil {
					err = fmt.Errorf("%w: commit hook: %v", ErrPanic, r)
				}
			}()
			hook()
		}()
	}
	return err
}

func run[T any](tx *Tx, fn func(*Tx) (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(tx)
}

// Lock acquires the given resources outside of a transaction using the same
// order as Execute. The returned function releases them.
func (m *Manager) Lock(resources ...ResourceKind) (unlock func()) {
	rs, err := ordered(resources)
	if err != nil {
		panic(err)
	}
	return m.lock(rs)
}

func (m *Manager) lock(rs []ResourceKind) func() {
	m.global.RLock()
	for _, r := range rs {
		m.locks[r].Lock()
	}
	return func() {
		for i := len(rs) - 1; i >= 0; i-- {
			m.locks[rs[i]].Unlock()
		}
		m.global.RUnlock()
	}
}

// Exclusive runs fn while no transaction or Lock holder is active. fn must
// not call Execute or Lock on the same manager.
func (m *Manager) Exclusive(fn func() error) error {
	m.global.Lock()
	defer m.global.Unlock()
	return fn()
}

// Entries returns the retained log entries, oldest first.
func (m *Manager) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.All()
}

func (m *Manager) append(e LogEntry) {
	m.mu.Lock()
	m.entries.Append(e)
	m.mu.Unlock()
}

func (m *Manager) forward(e LogEntry) {
	if m.sink != nil {
		m.sink.RecordAudit(e)
	}
}
