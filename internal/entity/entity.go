// Package entity defines the persistence boundary between application
// types and the session layer.
//
// An application type embeds Base and lists its own columns:
//
//	type OrderModel struct {
//		entity.Base
//		Customer string
//		Amount   int64
//		Note     *string
//	}
//
//	func (o *OrderModel) Fields() []entity.Field {
//		return []entity.Field{
//			{Name: "customer", Ptr: &o.Customer},
//			{Name: "amount", Ptr: &o.Amount},
//			{Name: "note", Ptr: &o.Note},
//		}
//	}
//
// OrderModel is stored in table "order" on the "default" datasource. A type
// binds to another datasource by declaring Datasource, and to another table
// by declaring TableName.
package entity

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strings"
	"unicode"

	"github.com/roach88/basex/internal/config"
)

// Base column names.
const (
	ColumnID         = "id"
	ColumnDeleted    = "deleted"
	ColumnVersion    = "version"
	ColumnCreateTime = "create_time"
	ColumnModifyTime = "modify_time"
)

// Entity is a persistable record.
type Entity interface {
	// Meta returns the embedded base columns.
	Meta() *Base
	// Datasource names the datasource the type is stored in.
	Datasource() string
	// Fields lists the type's own columns in table order, excluding Base.
	Fields() []Field
}

// Tabler overrides the derived table name.
type Tabler interface {
	TableName() string
}

// Field binds a column to a pointer into the entity.
type Field struct {
	Name string
	Ptr  any
}

// Base holds the columns every entity carries.
//
// ID is assigned once on create and never changes. Version is the
// optimistic lock counter. Deleted is 1 for logically deleted rows.
type Base struct {
	ID         int64
	Deleted    int
	Version    int
	CreateTime sql.NullTime
	ModifyTime sql.NullTime
}

// Meta returns b.
func (b *Base) Meta() *Base { return b }

// Datasource returns the default datasource.
func (b *Base) Datasource() string { return config.DefaultDatasource }

// Columns returns the base columns in table order.
func (b *Base) Columns() []Field {
	return []Field{
		{Name: ColumnID, Ptr: &b.ID},
		{Name: ColumnDeleted, Ptr: &b.Deleted},
		{Name: ColumnVersion, Ptr: &b.Version},
		{Name: ColumnCreateTime, Ptr: &b.CreateTime},
		{Name: ColumnModifyTime, Ptr: &b.ModifyTime},
	}
}

// AllFields returns the base columns followed by the entity's own.
func AllFields(e Entity) []Field {
	return append(e.Meta().Columns(), e.Fields()...)
}

// TableName returns the table of an entity: its TableName method if it has
// one, otherwise the type name without a "Model" suffix in snake case.
func TableName(e any) string {
	if t, ok := e.(Tabler); ok {
		return t.TableName()
	}
	typ := reflect.TypeOf(e)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return SnakeCase(strings.TrimSuffix(typ.Name(), "Model"))
}

// SnakeCase puts an underscore before every upper-case letter except the
// first and lower-cases the result: "OrderItem" becomes "order_item".
func SnakeCase(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Value returns the value a field pointer refers to.
func (f Field) Value() any {
	v := reflect.ValueOf(f.Ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	return v.Elem().Interface()
}

// IsNull reports whether the field currently holds SQL NULL: a nil pointer
// or a driver.Valuer that yields nil.
func (f Field) IsNull() bool {
	v := f.Value()
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		return err == nil && dv == nil
	}
	return false
}
