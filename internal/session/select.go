package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/basex/internal/entity"
)

// SelectList returns the live entities matching where, which may be empty.
func (s *Service[T]) SelectList(ctx context.Context, where string, args ...any) ([]T, error) {
	return s.selectRows(ctx, s.selectSQL(where), args...)
}

// SelectOne returns the first live entity matching where, or ErrNotFound.
func (s *Service[T]) SelectOne(ctx context.Context, where string, args ...any) (T, error) {
	var zero T
	out, err := s.selectRows(ctx, s.selectSQL(where)+s.dialect.OrderLimit("", 1, 0), args...)
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, s.table)
	}
	return out[0], nil
}

// Count returns the number of live rows matching where.
func (s *Service[T]) Count(ctx context.Context, where string, args ...any) (int, error) {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.dialect.Quote(s.table), s.liveFilter(where))

	var n int
	if err := q.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// SelectPage fills page with the live entities matching where.
//
// The request is normalized first: a current page below 1 becomes 1, a
// size below 1 becomes the default page size and a size above the maximum
// is clamped. Orders must name columns of the entity; rows are ordered by
// id after them.
func (s *Service[T]) SelectPage(ctx context.Context, page *entity.Page[T], where string, args ...any) error {
	page.Normalize(s.opts.defaultPageSize, s.opts.maxPageSize)

	orders := make([]string, 0, len(page.Orders)+1)
	byID := false
	for _, o := range page.Orders {
		if !s.known[o.Column] {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.table, o.Column)
		}
		dir := " DESC"
		if o.Asc {
			dir = " ASC"
		}
		orders = append(orders, s.dialect.Quote(o.Column)+dir)
		byID = byID || o.Column == entity.ColumnID
	}
	if !byID {
		// id breaks ties so pages neither overlap nor skip rows
		orders = append(orders, s.dialect.Quote(entity.ColumnID)+" ASC")
	}

	total, err := s.Count(ctx, where, args...)
	if err != nil {
		return err
	}
	page.SetTotal(total)

	if total == 0 || page.Offset() >= total {
		page.Records = []T{}
		return nil
	}

	query := s.selectSQL(where) + s.dialect.OrderLimit(strings.Join(orders, ", "), page.Size, page.Offset())
	records, err := s.selectRows(ctx, query, args...)
	if err != nil {
		return err
	}
	page.Records = records
	return nil
}

// Query runs a raw statement on the entity's datasource and returns every
// row as a column-keyed map. Text columns are returned as strings.
func (s *Service[T]) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	return out, nil
}

func (s *Service[T]) selectSQL(where string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", s.columnList(), s.dialect.Quote(s.table), s.liveFilter(where))
}

func (s *Service[T]) liveFilter(where string) string {
	live := s.dialect.Quote(entity.ColumnDeleted) + " = 0"
	if strings.TrimSpace(where) == "" {
		return live
	}
	return live + " AND (" + where + ")"
}

func (s *Service[T]) selectRows(ctx context.Context, query string, args ...any) ([]T, error) {
	q, err := s.m.Router().Querier(ctx, s.datasource)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		e := s.newT()
		if err := rows.Scan(pointers(e)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", s.table, err)
	}
	return out, nil
}
