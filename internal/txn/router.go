package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/basex/internal/config"
)

// Router maps datasource names to pools and hands out transactions.
// The set of datasources is fixed at construction.
type Router struct {
	pools  map[string]*Pool
	store  *Store
	logger *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for pool lifecycle events.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// Open opens one pool per configured datasource and verifies each with a
// ping. A missing default datasource or an unusable setting is a
// configuration error; pools opened before the failure are closed.
func Open(ctx context.Context, datasources map[string]config.Datasource, opts ...RouterOption) (*Router, error) {
	if _, ok := datasources[config.DefaultDatasource]; !ok {
		return nil, configError("", "missing %q datasource", config.DefaultDatasource)
	}

	pools := make([]*Pool, 0, len(datasources))
	for name, ds := range datasources {
		pool, err := OpenPool(ctx, name, ds)
		if err != nil {
			for _, p := range pools {
				p.db.Close()
			}
			return nil, err
		}
		pools = append(pools, pool)
	}

	r, err := NewRouter(pools...)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range r.Datasources() {
		p := r.pools[name]
		r.logger.Debug("datasource opened", "datasource", name, "driver", p.driver)
	}
	return r, nil
}

// NewRouter builds a router over open pools. One pool must be named
// "default" and names must be unique.
func NewRouter(pools ...*Pool) (*Router, error) {
	byName := make(map[string]*Pool, len(pools))
	names := make([]string, 0, len(pools))
	for _, p := range pools {
		if _, dup := byName[p.name]; dup {
			return nil, configError(p.name, "duplicate datasource")
		}
		byName[p.name] = p
		names = append(names, p.name)
	}
	if _, ok := byName[config.DefaultDatasource]; !ok {
		return nil, configError("", "missing %q datasource", config.DefaultDatasource)
	}
	return &Router{
		pools:  byName,
		store:  NewStore(names...),
		logger: slog.Default(),
	}, nil
}

// Store returns the context slots, one per datasource.
func (r *Router) Store() *Store {
	return r.store
}

// Datasources returns the datasource names in sorted order.
func (r *Router) Datasources() []string {
	return r.store.Names()
}

// Resolve returns the pool of a datasource.
func (r *Router) Resolve(name string) (*Pool, error) {
	p, ok := r.pools[name]
	if !ok {
		return nil, configError(name, "unknown datasource")
	}
	return p, nil
}

// Current returns the ambient handle of a datasource in ctx, or nil.
func (r *Router) Current(ctx context.Context, name string) *Handle {
	slot, ok := r.store.Slot(name)
	if !ok {
		return nil
	}
	return slot.Get(ctx)
}

// CurrentOrNew returns the ambient handle of a datasource with joined set,
// or begins a new transaction on its pool. A new handle is not stored in
// the context and cannot be committed or rolled back by the caller: it must
// be passed to Manager.Run with UseHandle, which enters and resolves it.
func (r *Router) CurrentOrNew(ctx context.Context, name string) (h *Handle, joined bool, err error) {
	return r.acquire(ctx, name, nil)
}

func (r *Router) acquire(ctx context.Context, name string, opts *sql.TxOptions) (*Handle, bool, error) {
	slot, ok := r.store.Slot(name)
	if !ok {
		return nil, false, configError(name, "unknown datasource")
	}
	if h := slot.Get(ctx); h != nil {
		return h, true, nil
	}

	pool := r.pools[name]
	tx, err := pool.db.BeginTx(ctx, pool.txOptions(opts))
	if err != nil {
		return nil, false, &Error{Code: CodeBegin, Datasource: name, Message: "begin", Err: err}
	}
	begunTotal.WithLabelValues(name).Inc()
	return newHandle(pool, tx), false, nil
}

// Querier returns the ambient handle of a datasource, or its pool when no
// transaction is in scope.
func (r *Router) Querier(ctx context.Context, name string) (Querier, error) {
	pool, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if h := r.Current(ctx, name); h != nil {
		return h, nil
	}
	return pool.db, nil
}

// Ping checks every pool concurrently and returns the failures by name.
func (r *Router) Ping(ctx context.Context) map[string]error {
	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, p := range r.pools {
		name, p := name, p
		g.Go(func() error {
			if err := p.db.PingContext(gctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// Close closes every pool.
func (r *Router) Close() error {
	var errs []error
	for _, name := range r.Datasources() {
		if err := r.pools[name].db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
