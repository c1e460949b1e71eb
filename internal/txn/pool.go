package txn

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/basex/internal/config"
	"github.com/roach88/basex/internal/dialect"
)

// sqliteParams are added to every SQLite DSN that does not set them.
var sqliteParams = []struct{ key, value string }{
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_foreign_keys", "on"},
	{"_synchronous", "NORMAL"},
}

// PoolOptions are per-datasource settings that outlive connection setup.
type PoolOptions struct {
	// ExpireOnCommit asks the session layer to reload written entities
	// after the outermost commit.
	ExpireOnCommit bool

	// Isolation is the isolation level of transactions begun without
	// explicit options.
	Isolation sql.IsolationLevel
}

// Pool is the connection pool of one logical datasource.
type Pool struct {
	name    string
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
	opts    PoolOptions
}

// NewPool wraps an open database handle.
func NewPool(name string, db *sql.DB, driver string, opts PoolOptions) (*Pool, error) {
	d, err := dialect.ForDriver(driver)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Datasource: name, Message: "unsupported driver", Err: err}
	}
	return &Pool{name: name, db: db, driver: driver, dialect: d, opts: opts}, nil
}

// Name returns the datasource name.
func (p *Pool) Name() string { return p.name }

// DB returns the underlying pool.
func (p *Pool) DB() *sql.DB { return p.db }

// Driver returns the database/sql driver name.
func (p *Pool) Driver() string { return p.driver }

// Dialect returns the SQL dialect of the driver.
func (p *Pool) Dialect() dialect.Dialect { return p.dialect }

// ExpireOnCommit reports whether written entities are reloaded after commit.
func (p *Pool) ExpireOnCommit() bool { return p.opts.ExpireOnCommit }

func (p *Pool) txOptions(override *sql.TxOptions) *sql.TxOptions {
	if override != nil {
		return override
	}
	if p.opts.Isolation == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: p.opts.Isolation}
}

// OpenPool opens the pool of one configured datasource and verifies it with
// a ping. Failures are configuration errors.
func OpenPool(ctx context.Context, name string, ds config.Datasource) (*Pool, error) {
	driver, dsn, err := resolveDriver(ds)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Datasource: name, Message: "resolve driver", Err: err}
	}

	isolation, err := parseIsolation(ds.Isolation)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Datasource: name, Message: "isolation", Err: err}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Datasource: name, Message: "open", Err: err}
	}

	if driver == "sqlite3" && strings.Contains(dsn, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if ds.MaxOpenConns > 0 {
			db.SetMaxOpenConns(ds.MaxOpenConns)
		}
		if ds.MaxIdleConns > 0 {
			db.SetMaxIdleConns(ds.MaxIdleConns)
		}
		if ds.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(ds.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Code: CodeConfiguration, Datasource: name, Message: "connect", Err: err}
	}

	pool, err := NewPool(name, db, driver, PoolOptions{
		ExpireOnCommit: ds.ExpireOnCommit,
		Isolation:      isolation,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return pool, nil
}

// resolveDriver maps a datasource to a registered driver name and DSN.
// Explicit driver and dsn settings win over the URL.
func resolveDriver(ds config.Datasource) (driver, dsn string, err error) {
	if ds.Driver != "" && ds.DSN != "" {
		if ds.Driver == "sqlite3" {
			return ds.Driver, sqliteDSN(ds.DSN), nil
		}
		return ds.Driver, ds.DSN, nil
	}
	if ds.URL == "" {
		return "", "", fmt.Errorf("no url")
	}

	scheme, rest, ok := strings.Cut(ds.URL, "://")
	if !ok {
		return "", "", fmt.Errorf("url %q has no scheme", redact(ds.URL))
	}
	// scheme+dialect URLs name the client library after the plus.
	scheme, _, _ = strings.Cut(strings.ToLower(scheme), "+")

	switch scheme {
	case "sqlite3", "sqlite":
		if rest == "" {
			return "", "", fmt.Errorf("sqlite url has no path")
		}
		return "sqlite3", sqliteDSN(rest), nil
	case "postgres", "postgresql":
		return "postgres", "postgres://" + rest, nil
	case "mysql":
		dsn, err := mysqlDSN(rest)
		if err != nil {
			return "", "", err
		}
		return "mysql", dsn, nil
	case "sqlserver", "mssql":
		return "sqlserver", "sqlserver://" + rest, nil
	default:
		return "", "", fmt.Errorf("unsupported url scheme %q", scheme)
	}
}

func sqliteDSN(path string) string {
	base, query, _ := strings.Cut(path, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	var extra []string
	for _, p := range sqliteParams {
		if _, ok := values[p.key]; !ok {
			extra = append(extra, p.key+"="+p.value)
		}
	}
	if query != "" {
		extra = append([]string{query}, extra...)
	}
	if len(extra) == 0 {
		return base
	}
	return base + "?" + strings.Join(extra, "&")
}

// mysqlDSN converts "user:pass@host:port/db?k=v" to the driver's DSN form.
func mysqlDSN(rest string) (string, error) {
	u, err := url.Parse("mysql://" + rest)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	host := u.Host
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "3306")
	}
	cfg.Addr = host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	if q := u.Query(); len(q) > 0 {
		cfg.Params = make(map[string]string, len(q))
		for k := range q {
			cfg.Params[k] = q.Get(k)
		}
	}
	return cfg.FormatDSN(), nil
}

func parseIsolation(s string) (sql.IsolationLevel, error) {
	switch s {
	case "":
		return sql.LevelDefault, nil
	case "read_uncommitted":
		return sql.LevelReadUncommitted, nil
	case "read_committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
	}
}

// redact hides the password of a URL for error messages.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
