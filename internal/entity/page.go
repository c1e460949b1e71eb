package entity

import "fmt"

// OrderItem orders a page by one column.
type OrderItem struct {
	Column string `json:"column"`
	Asc    bool   `json:"asc"`
}

// Asc orders by column ascending.
func Asc(column string) OrderItem {
	return OrderItem{Column: column, Asc: true}
}

// Desc orders by column descending.
func Desc(column string) OrderItem {
	return OrderItem{Column: column}
}

// Page is a request for, and the result of, one page of records.
// Current is 1-based.
type Page[T any] struct {
	Orders  []OrderItem `json:"orders,omitempty"`
	Records []T         `json:"records"`
	Current int         `json:"current"`
	Pages   int         `json:"pages"`
	Total   int         `json:"total"`
	Size    int         `json:"size"`
}

// NewPage creates a page request.
func NewPage[T any](current, size int, orders ...OrderItem) *Page[T] {
	return &Page[T]{Current: current, Size: size, Orders: orders}
}

// Normalize clamps the request: Current below 1 becomes 1, Size below 1
// becomes defaultSize and Size above maxSize becomes maxSize.
func (p *Page[T]) Normalize(defaultSize, maxSize int) {
	if p.Current < 1 {
		p.Current = 1
	}
	if p.Size < 1 {
		p.Size = defaultSize
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
}

// Offset returns the number of rows before the current page.
func (p *Page[T]) Offset() int {
	return (p.Current - 1) * p.Size
}

// SetTotal records the row count and derives Pages.
func (p *Page[T]) SetTotal(total int) {
	p.Total = total
	if total <= 0 || p.Size <= 0 {
		p.Pages = 0
		return
	}
	p.Pages = (total + p.Size - 1) / p.Size
}

// String summarizes the page for logs.
func (p *Page[T]) String() string {
	return fmt.Sprintf("page %d/%d size=%d total=%d", p.Current, p.Pages, p.Size, p.Total)
}
