package txn

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Querier runs statements. *sql.DB, *sql.Tx and *Handle implement it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// State is the lifecycle state of a Handle.
type State int32

const (
	Active State = iota
	Committed
	RolledBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Handle is one open transaction on one datasource.
//
// Statements may be issued from several goroutines that share the scope;
// database/sql serializes them on the transaction's connection.
type Handle struct {
	id      string
	pool    *Pool
	tx      *sql.Tx
	started time.Time

	mu          sync.Mutex
	state       State
	afterCommit []func(context.Context)
}

func newHandle(pool *Pool, tx *sql.Tx) *Handle {
	return &Handle{
		id:      uuid.Must(uuid.NewV7()).String(),
		pool:    pool,
		tx:      tx,
		started: time.Now(),
	}
}

// ID returns a time-ordered identifier for logs.
func (h *Handle) ID() string { return h.id }

// Datasource returns the datasource name.
func (h *Handle) Datasource() string { return h.pool.name }

// Pool returns the pool the transaction was begun on.
func (h *Handle) Pool() *Pool { return h.pool }

// State returns the lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Active reports whether the transaction is still open.
func (h *Handle) Active() bool {
	return h.State() == Active
}

// AfterCommit registers fn to run after the transaction commits. Hooks run
// in registration order and are dropped on rollback.
func (h *Handle) AfterCommit(fn func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterCommit = append(h.afterCommit, fn)
}

// ExecContext executes a statement in the transaction.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query in the transaction.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query in the transaction.
func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return h.tx.QueryRowContext(ctx, query, args...)
}

var errNotActive = errors.New("transaction is not active")

// commit ends the transaction. A failed commit leaves the handle rolled
// back: the driver has released the transaction either way.
func (h *Handle) commit() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Active {
		return errNotActive
	}
	if err := h.tx.Commit(); err != nil {
		_ = h.tx.Rollback()
		h.state = RolledBack
		h.afterCommit = nil
		return err
	}
	h.state = Committed
	return nil
}

func (h *Handle) rollback() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Active {
		return errNotActive
	}
	h.state = RolledBack
	h.afterCommit = nil
	err := h.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		// database/sql already rolled back on context cancellation.
		return nil
	}
	return err
}

func (h *Handle) runAfterCommit(ctx context.Context) {
	h.mu.Lock()
	hooks := h.afterCommit
	h.afterCommit = nil
	h.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}
