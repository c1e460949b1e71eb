package txn

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// Classifier decides whether an error returned from a scope rolls the
// transaction back (true) or commits it (false).
type Classifier func(error) bool

// RollbackAll rolls back on every error.
func RollbackAll(error) bool { return true }

// Never commits regardless of the error.
func Never(error) bool { return false }

// RollbackFor rolls back when the error matches one of targets
// (errors.Is) and commits otherwise.
func RollbackFor(targets ...error) Classifier {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// RollbackOn rolls back when the error chain contains an E (errors.As) and
// commits otherwise.
func RollbackOn[E error]() Classifier {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// Manager runs functions inside transaction scopes.
type Manager struct {
	router     *Router
	classifier Classifier
	logger     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used to report failed scopes.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithDefaultClassifier replaces RollbackAll for scopes that do not pass
// WithClassifier.
func WithDefaultClassifier(c Classifier) ManagerOption {
	return func(m *Manager) {
		m.classifier = c
	}
}

// NewManager creates a Manager over a router.
func NewManager(r *Router, opts ...ManagerOption) *Manager {
	m := &Manager{
		router:     r,
		classifier: RollbackAll,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Router returns the router the manager begins transactions on.
func (m *Manager) Router() *Router {
	return m.router
}

// Current returns the ambient handle of a datasource in ctx, or nil.
func (m *Manager) Current(ctx context.Context, datasource string) *Handle {
	return m.router.Current(ctx, datasource)
}

type runConfig struct {
	classifier Classifier
	txOpts     *sql.TxOptions
	handle     *Handle
}

// RunOption configures one Run call.
type RunOption func(*runConfig)

// WithClassifier sets the rollback classifier of an outermost scope.
// Joined scopes never resolve the transaction and ignore it.
func WithClassifier(c Classifier) RunOption {
	return func(rc *runConfig) {
		rc.classifier = c
	}
}

// WithTxOptions sets the options of a newly begun transaction.
func WithTxOptions(opts *sql.TxOptions) RunOption {
	return func(rc *runConfig) {
		rc.txOpts = opts
	}
}

// UseHandle makes an outermost Run enter h, a handle freshly begun by
// Router.CurrentOrNew, instead of beginning its own transaction. Run then
// resolves h like any transaction it began. A handle that is not active, is
// on another datasource or conflicts with an ambient transaction is rolled
// back and refused.
func UseHandle(h *Handle) RunOption {
	return func(rc *runConfig) {
		rc.handle = h
	}
}

// ReadOnly begins a newly begun transaction read-only.
func ReadOnly() RunOption {
	return func(rc *runConfig) {
		if rc.txOpts == nil {
			rc.txOpts = &sql.TxOptions{}
		} else {
			o := *rc.txOpts
			rc.txOpts = &o
		}
		rc.txOpts.ReadOnly = true
	}
}

// Run calls fn inside a transaction scope on datasource.
//
// If ctx already carries an active handle for datasource, fn joins it and
// Run neither commits nor rolls back. Otherwise Run begins a transaction
// (or enters the handle given with UseHandle), passes fn a context carrying
// it, and resolves it when fn returns: commit on nil, rollback when the
// classifier accepts the error, commit when it does not. If fn panics or
// exits its goroutine the transaction is rolled back; a panic is re-raised.
//
// The error returned by fn is returned unchanged. A failed commit after fn
// succeeded is returned as a TX_COMMIT error.
func (m *Manager) Run(ctx context.Context, datasource string, fn func(ctx context.Context) error, opts ...RunOption) error {
	slot, ok := m.router.store.Slot(datasource)
	if !ok {
		return configError(datasource, "unknown datasource")
	}

	rc := runConfig{classifier: m.classifier}
	for _, opt := range opts {
		opt(&rc)
	}

	if h := slot.Get(ctx); h != nil {
		if !h.Active() {
			return &Error{
				Code:       CodeContextLeak,
				Datasource: datasource,
				Message:    "ambient transaction " + h.id + " is " + h.State().String(),
			}
		}
		if rc.handle != nil && rc.handle != h {
			m.abandon(rc.handle)
			return &Error{
				Code:       CodeContextLeak,
				Datasource: datasource,
				Message:    "handle " + rc.handle.id + " given inside ambient transaction " + h.id,
			}
		}
		joinedTotal.WithLabelValues(datasource).Inc()
		return fn(ctx)
	}

	h := rc.handle
	if h == nil {
		var err error
		h, _, err = m.router.acquire(ctx, datasource, rc.txOpts)
		if err != nil {
			return err
		}
		m.logger.Debug("transaction begun", "datasource", datasource, "tx", h.id)
	} else if h.Datasource() != datasource || !h.Active() {
		err := configError(datasource, "handle %s is %s on datasource %s", h.id, h.State(), h.Datasource())
		m.abandon(h)
		return err
	}

	inner, tok := slot.Set(ctx, h)
	defer slot.Reset(tok)

	resolved := false
	defer func() {
		if resolved {
			return
		}
		r := recover()
		if rbErr := m.rollback(h); rbErr != nil {
			m.logger.Error("rollback of abandoned scope failed", "datasource", datasource, "tx", h.id, "error", rbErr)
		}
		if r != nil {
			m.observe(h, outcomePanic)
			m.logger.Error("transaction rolled back on panic", "datasource", datasource, "tx", h.id, "panic", r)
			panic(r)
		}
		m.observe(h, outcomeExit)
		m.logger.Error("transaction rolled back on goroutine exit", "datasource", datasource, "tx", h.id)
	}()

	fnErr := fn(inner)
	resolved = true

	if fnErr == nil {
		if cmErr := m.commit(h); cmErr != nil {
			m.observe(h, outcomeCommitError)
			m.logger.Error("commit failed", "datasource", datasource, "tx", h.id, "error", cmErr)
			return &Error{Code: CodeCommit, Datasource: datasource, Message: "commit", Err: cmErr}
		}
		m.observe(h, outcomeCommit)
		h.runAfterCommit(ctx)
		return nil
	}

	if rc.classifier(fnErr) {
		if rbErr := m.rollback(h); rbErr != nil {
			m.logger.Error("rollback failed", "datasource", datasource, "tx", h.id, "error", rbErr)
		}
		m.observe(h, outcomeRollback)
		m.logger.Error("transaction rolled back", "datasource", datasource, "tx", h.id, "error", fnErr)
		return fnErr
	}

	if cmErr := m.commit(h); cmErr != nil {
		m.observe(h, outcomeCommitError)
		m.logger.Error("commit after unclassified error failed", "datasource", datasource, "tx", h.id,
			"error", fnErr, "commit_error", cmErr)
		return fnErr
	}
	m.observe(h, outcomeCommit)
	m.logger.Warn("transaction committed despite error", "datasource", datasource, "tx", h.id, "error", fnErr)
	h.runAfterCommit(ctx)
	return fnErr
}

// abandon rolls back a handle Run refused to enter.
func (m *Manager) abandon(h *Handle) {
	if !h.Active() {
		return
	}
	if err := m.rollback(h); err != nil {
		m.logger.Error("rollback of refused handle failed", "datasource", h.Datasource(), "tx", h.id, "error", err)
	}
	m.observe(h, outcomeRollback)
}

func (m *Manager) commit(h *Handle) error {
	if err := h.commit(); err != nil {
		rolledBackTotal.WithLabelValues(h.Datasource()).Inc()
		return err
	}
	committedTotal.WithLabelValues(h.Datasource()).Inc()
	return nil
}

func (m *Manager) rollback(h *Handle) error {
	rolledBackTotal.WithLabelValues(h.Datasource()).Inc()
	return h.rollback()
}

func (m *Manager) observe(h *Handle, outcome string) {
	durationSeconds.WithLabelValues(h.Datasource(), outcome).Observe(time.Since(h.started).Seconds())
}

// Do is Run for functions that produce a value. The value is returned
// whenever fn returned one, including alongside a committed error.
func Do[T any](ctx context.Context, m *Manager, datasource string, fn func(ctx context.Context) (T, error), opts ...RunOption) (T, error) {
	var out T
	err := m.Run(ctx, datasource, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	}, opts...)
	return out, err
}
