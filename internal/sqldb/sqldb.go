// Package sqldb opens the SQL databases that back the registry, the queue,
// and the index tables, and hides the few places where SQLite and Postgres
// disagree (placeholders, pragmas).
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// OperationTimeout bounds every single statement issued by the stores.
const OperationTimeout = 5 * time.Second

// ErrNotImplemented is returned for DSN schemes that name a backend this
// build does not ship.
var ErrNotImplemented = errors.New("backend not implemented")

// Dialect identifies the SQL flavour of a DB.
type Dialect int

const (
	// SQLite is modernc.org/sqlite.
	SQLite Dialect = iota
	// Postgres is github.com/lib/pq.
	Postgres
)

// String returns the database/sql driver name.
func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is a *sql.DB that knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	// Path is the SQLite file path, empty for in-memory and Postgres.
	Path string
}

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

var openDB sqlOpenFunc = sql.Open

// Open opens a database from a DSN.
//
//	sqlite:///var/lib/ragingest/registry.db
//	file:registry.db
//	registry.db                 (bare path, SQLite)
//	sqlite://:memory:
//	postgres://user:pw@host/db?sslmode=disable
func Open(dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty database dsn")
	}
	switch scheme, rest := splitScheme(dsn); scheme {
	case "", "file", "sqlite", "sqlite3":
		if rest == "" {
			return nil, fmt.Errorf("database dsn %q has no path", dsn)
		}
		if rest == ":memory:" {
			rest = ""
		}
		return OpenSQLite(rest)
	case "postgres", "postgresql":
		return OpenPostgres(dsn)
	case "mysql", "dynamodb", "redis":
		return nil, fmt.Errorf("%w: database backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported database scheme: %s", scheme)
	}
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
// An empty path opens a private in-memory database.
func OpenSQLite(path string) (*DB, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path
	}

	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One writer; also keeps a :memory: database alive for the life of the pool.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	if path != "" {
		// WAL must be set via PRAGMA for modernc.org/sqlite
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	return &DB{DB: db, Dialect: SQLite, Path: path}, nil
}

// OpenPostgres opens a Postgres pool and verifies connectivity.
func OpenPostgres(dsn string) (*DB, error) {
	db, err := openDB("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &DB{DB: db, Dialect: Postgres}, nil
}

// Rebind rewrites '?' placeholders to '$n' for Postgres.
// Queries must not contain '?' inside string literals.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// Exec runs a rebound statement under OperationTimeout.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()
	return d.DB.ExecContext(ctx, d.Rebind(query), args...)
}

// InTx runs fn in a transaction, committing if fn returns nil.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Migrate executes schema statements in order.
func (d *DB) Migrate(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// QuoteIdentifier quotes a table or index name. Both dialects accept
// double-quoted identifiers.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// splitScheme separates "scheme://rest" or "scheme:rest". A DSN without a
// scheme (a bare path, or ":memory:") returns an empty scheme.
func splitScheme(dsn string) (scheme, rest string) {
	i := strings.Index(dsn, ":")
	if i <= 0 || strings.ContainsAny(dsn[:i], `/\.`) {
		return "", dsn
	}
	return strings.ToLower(dsn[:i]), strings.TrimPrefix(dsn[i+1:], "//")
}
