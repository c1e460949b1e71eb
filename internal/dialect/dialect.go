// Package dialect renders the small parts of SQL that differ between the
// supported drivers: bind placeholders, identifier quoting and paging.
//
// Statements are written with '?' placeholders and rebound per driver.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a SQL dialect.
type Kind int

const (
	SQLite Kind = iota
	Postgres
	MySQL
	SQLServer
)

var kindNames = map[Kind]string{
	SQLite:    "sqlite",
	Postgres:  "postgres",
	MySQL:     "mysql",
	SQLServer: "sqlserver",
}

// String returns the dialect name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Dialect renders driver-specific SQL fragments.
type Dialect struct {
	kind Kind
}

// New returns the dialect for a kind.
func New(kind Kind) Dialect {
	return Dialect{kind: kind}
}

// ForDriver returns the dialect for a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return New(SQLite), nil
	case "postgres", "postgresql", "pgx":
		return New(Postgres), nil
	case "mysql":
		return New(MySQL), nil
	case "sqlserver", "mssql":
		return New(SQLServer), nil
	default:
		return Dialect{}, fmt.Errorf("no dialect for driver %q", driver)
	}
}

// Kind returns the dialect kind.
func (d Dialect) Kind() Kind {
	return d.kind
}

// String returns the dialect name.
func (d Dialect) String() string {
	return d.kind.String()
}

// Placeholder returns the n-th (1-based) bind placeholder.
func (d Dialect) Placeholder(n int) string {
	switch d.kind {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Rebind rewrites '?' placeholders for the dialect. Question marks inside
// single-quoted literals, quoted identifiers and comments are left alone.
func (d Dialect) Rebind(query string) string {
	if d.kind == SQLite || d.kind == MySQL {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.WriteByte(c)
		case c == '[' && d.kind == SQLServer:
			quote = ']'
			b.WriteByte(c)
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query) - i - 1
			}
			b.WriteString(query[i : i+end+1])
			i += end
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				b.WriteString(query[i:])
				return b.String()
			}
			end += i + 4
			b.WriteString(query[i:end])
			i = end - 1
		case c == '?':
			n++
			b.WriteString(d.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Quote quotes an identifier. Embedded quote characters are doubled.
func (d Dialect) Quote(ident string) string {
	switch d.kind {
	case MySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case SQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// OrderLimit renders the ORDER BY and paging suffix of a SELECT. orderBy is
// the rendered column list without the keyword and may be empty. A limit
// of zero or less renders no paging clause.
func (d Dialect) OrderLimit(orderBy string, limit, offset int) string {
	var b strings.Builder

	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit <= 0 {
		return b.String()
	}
	if offset < 0 {
		offset = 0
	}

	if d.kind == SQLServer {
		// OFFSET/FETCH is only valid after ORDER BY.
		if orderBy == "" {
			b.WriteString(" ORDER BY (SELECT NULL)")
		}
		fmt.Fprintf(&b, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
		return b.String()
	}

	fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	return b.String()
}
