package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/basex/internal/config"
	"github.com/roach88/basex/internal/dialect"
	"github.com/roach88/basex/internal/entity"
	"github.com/roach88/basex/internal/idgen"
	"github.com/roach88/basex/internal/txn"
)

var (
	// ErrNotFound is returned when no live row matches.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleVersion is returned when an update or logical delete finds
	// the row at another version than the entity carries.
	ErrStaleVersion = errors.New("stale entity version")

	// ErrUnknownColumn is returned when a page orders by a column the
	// entity does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

type options struct {
	ignoreNil       bool
	defaultPageSize int
	maxPageSize     int
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Service.
type Option func(*options)

// WithIgnoreNil controls whether Update skips columns holding NULL
// (nil pointers, invalid sql.Null* values). Enabled by default.
func WithIgnoreNil(ignore bool) Option {
	return func(o *options) {
		o.ignoreNil = ignore
	}
}

// WithPageSizes sets the page size used for unsized pages and the largest
// page size served.
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(o *options) {
		o.defaultPageSize = defaultSize
		o.maxPageSize = maxSize
	}
}

// WithClock replaces time.Now for create and modify timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Service stores entities of type T.
type Service[T entity.Entity] struct {
	m          *txn.Manager
	ids        idgen.Source
	newT       func() T
	datasource string
	table      string
	columns    []string
	known      map[string]bool
	dialect    dialect.Dialect
	expire     bool
	opts       options
}

// NewService creates a Service. newT must return a new, empty T; its table,
// columns and datasource are read once here.
func NewService[T entity.Entity](m *txn.Manager, ids idgen.Source, newT func() T, opts ...Option) (*Service[T], error) {
	o := options{
		ignoreNil:       true,
		defaultPageSize: config.DefaultPageSize,
		maxPageSize:     config.DefaultMaxPage,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sample := newT()
	pool, err := m.Router().Resolve(sample.Datasource())
	if err != nil {
		return nil, fmt.Errorf("session for %s: %w", entity.TableName(sample), err)
	}

	fields := entity.AllFields(sample)
	columns := make([]string, len(fields))
	known := make(map[string]bool, len(fields))
	for i, f := range fields {
		if known[f.Name] {
			return nil, fmt.Errorf("session for %s: duplicate column %q", entity.TableName(sample), f.Name)
		}
		columns[i] = f.Name
		known[f.Name] = true
	}

	return &Service[T]{
		m:          m,
		ids:        ids,
		newT:       newT,
		datasource: sample.Datasource(),
		table:      entity.TableName(sample),
		columns:    columns,
		known:      known,
		dialect:    pool.Dialect(),
		expire:     pool.ExpireOnCommit(),
		opts:       o,
	}, nil
}

// Table returns the table name.
func (s *Service[T]) Table() string { return s.table }

// Datasource returns the datasource name.
func (s *Service[T]) Datasource() string { return s.datasource }

// Get returns the live entity with id.
func (s *Service[T]) Get(ctx context.Context, id int64) (T, error) {
	return s.SelectOne(ctx, s.dialect.Quote(entity.ColumnID)+" = ?", id)
}

// Create inserts e. An entity without an id is assigned one. Server
// controlled columns are reset: the row starts live, at version 0, with a
// create time and no modify time.
func (s *Service[T]) Create(ctx context.Context, e T) error {
	return s.m.Run(ctx, s.datasource, func(ctx context.Context) error {
		return s.insert(ctx, e)
	})
}

// CreateBatch inserts every entity in one transaction.
func (s *Service[T]) CreateBatch(ctx context.Context, es ...T) error {
	return s.m.Run(ctx, s.datasource, func(ctx context.Context) error {
		for _, e := range es {
			if err := s.insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update writes e's own columns, bumps its version and sets its modify
// time. The row must still be at e's version; otherwise ErrStaleVersion is
// returned and nothing is written.
func (s *Service[T]) Update(ctx context.Context, e T) error {
	return s.m.Run(ctx, s.datasource, func(ctx context.Context) error {
		return s.update(ctx, e)
	})
}

// UpdateBatch updates every entity in one transaction.
func (s *Service[T]) UpdateBatch(ctx context.Context, es ...T) error {
	return s.m.Run(ctx, s.datasource, func(ctx context.Context) error {
		for _, e := range es {
			if err := s.update(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Save updates e if it has been created, and creates it otherwise.
func (s *Service[T]) Save(ctx context.Context, e T) error {
	if e.Meta().CreateTime.Valid {
		return s.Update(ctx, e)
	}
	return s.Create(ctx, e)
}

// Delete removes e. A logical delete marks the row deleted under the same
// version check as Update and returns 1; a physical delete returns the
// number of rows removed.
func (s *Service[T]) Delete(ctx context.Context, e T, logical bool) (int64, error) {
	return txn.Do(ctx, s.m, s.datasource, func(ctx context.Context) (int64, error) {
		q, err := s.m.Router().Querier(ctx, s.datasource)
		if err != nil {
			return 0, err
		}
		meta := e.Meta()

		if !logical {
			res, err := q.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf(
				"DELETE FROM %s WHERE %s = ?", s.dialect.Quote(s.table), s.dialect.Quote(entity.ColumnID))), meta.ID)
			if err != nil {
				return 0, fmt.Errorf("delete %s %d: %w", s.table, meta.ID, err)
			}
			return res.RowsAffected()
		}

		now := s.opts.now()
		query := fmt.Sprintf("UPDATE %s SET %s = 1, %s = %s + 1, %s = ? WHERE %s = ? AND %s = ?",
			s.dialect.Quote(s.table),
			s.dialect.Quote(entity.ColumnDeleted),
			s.dialect.Quote(entity.ColumnVersion), s.dialect.Quote(entity.ColumnVersion),
			s.dialect.Quote(entity.ColumnModifyTime),
			s.dialect.Quote(entity.ColumnID),
			s.dialect.Quote(entity.ColumnVersion))
		if err := s.execVersioned(ctx, q, query, now, meta.ID, meta.Version); err != nil {
			return 0, err
		}
		meta.Deleted = 1
		meta.Version++
		meta.ModifyTime = sql.NullTime{Time: now, Valid: true}
		return 1, nil
	})
}

func (s *Service[T]) insert(ctx context.Context, e T) error {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return err
	}

	meta := e.Meta()
	if meta.ID == 0 {
		meta.ID = s.ids.Next()
	}
	meta.Deleted = 0
	meta.Version = 0
	meta.CreateTime = sql.NullTime{Time: s.opts.now(), Valid: true}
	meta.ModifyTime = sql.NullTime{}

	fields := entity.AllFields(e)
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = s.dialect.Quote(f.Name)
		marks[i] = "?"
		args[i] = f.Value()
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(s.table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := q.ExecContext(ctx, s.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert %s %d: %w", s.table, meta.ID, err)
	}

	s.expireOnCommit(ctx, e)
	return nil
}

func (s *Service[T]) update(ctx context.Context, e T) error {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return err
	}

	meta := e.Meta()
	now := s.opts.now()

	var (
		sets []string
		args []any
	)
	for _, f := range e.Fields() {
		if s.opts.ignoreNil && f.IsNull() {
			continue
		}
		sets = append(sets, s.dialect.Quote(f.Name)+" = ?")
		args = append(args, f.Value())
	}
	version := s.dialect.Quote(entity.ColumnVersion)
	sets = append(sets,
		version+" = "+version+" + 1",
		s.dialect.Quote(entity.ColumnModifyTime)+" = ?")
	args = append(args, now, meta.ID, meta.Version)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?",
		s.dialect.Quote(s.table), strings.Join(sets, ", "),
		s.dialect.Quote(entity.ColumnID), version)
	if err := s.execVersioned(ctx, q, query, args...); err != nil {
		return err
	}

	meta.Version++
	meta.ModifyTime = sql.NullTime{Time: now, Valid: true}
	s.expireOnCommit(ctx, e)
	return nil
}

// execVersioned runs a statement whose last two arguments are the id and
// the expected version.
func (s *Service[T]) execVersioned(ctx context.Context, q txn.Querier, query string, args ...any) error {
	id, version := args[len(args)-2], args[len(args)-1]

	res, err := q.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update %s %v: %w", s.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %v: %w", s.table, id, err)
	}
	if n == 0 {
		s.opts.logger.Debug("stale version", "table", s.table, "id", id, "version", version)
		return fmt.Errorf("%w: %s id=%v version=%v", ErrStaleVersion, s.table, id, version)
	}
	return nil
}

// expireOnCommit reloads e after the outermost commit when the datasource
// asks for it.
func (s *Service[T]) expireOnCommit(ctx context.Context, e T) {
	if !s.expire {
		return
	}
	h := s.m.Current(ctx, s.datasource)
	if h == nil {
		return
	}
	h.AfterCommit(func(ctx context.Context) {
		if err := s.reload(ctx, e); err != nil {
			s.opts.logger.Warn("reload after commit failed", "table", s.table, "id", e.Meta().ID, "error", err)
		}
	})
}

// reload reads e's row, deleted or not, back into e.
func (s *Service[T]) reload(ctx context.Context, e T) error {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		s.columnList(), s.dialect.Quote(s.table), s.dialect.Quote(entity.ColumnID))
	row := q.QueryRowContext(ctx, s.dialect.Rebind(query), e.Meta().ID)
	if err := row.Scan(pointers(e)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service[T]) columnList() string {
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = s.dialect.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

func pointers(e entity.Entity) []any {
	fields := entity.AllFields(e)
	ptrs := make([]any, len(fields))
	for i, f := range fields {
		ptrs[i] = f.Ptr
	}
	return ptrs
}
