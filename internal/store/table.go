package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/sqldb"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS index_tables (
	owner       TEXT PRIMARY KEY,
	table_name  TEXT NOT NULL,
	dimensions  INTEGER NOT NULL,
	created_at  BIGINT NOT NULL
)`

// TableStore keeps one chunk table per owner and a catalog of those tables.
// Every vector written must have exactly Dimensions() components.
type TableStore struct {
	db   *sqldb.DB
	dims int
	now  func() time.Time

	mu     sync.Mutex
	tables map[string]string // owner -> quoted table name, once created
}

// Open opens the database named by dsn and returns a store over it.
func Open(ctx context.Context, dsn string, dims int) (*TableStore, error) {
	db, err := sqldb.Open(dsn)
	if err != nil {
		return nil, errors.IndexError("failed to open index database", err)
	}
	s, err := New(ctx, db, dims)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store over an open database and applies the catalog schema.
func New(ctx context.Context, db *sqldb.DB, dims int) (*TableStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is nil")
	}
	if dims <= 0 {
		return nil, errors.ConfigError(fmt.Sprintf("embedding size must be positive, got %d", dims), nil)
	}
	if err := db.Migrate(ctx, catalogSchema); err != nil {
		return nil, errors.IndexError("failed to create index catalog", err)
	}
	return &TableStore{
		db:     db,
		dims:   dims,
		now:    time.Now,
		tables: make(map[string]string),
	}, nil
}

// Dimensions returns the vector width every row must have.
func (s *TableStore) Dimensions() int {
	return s.dims
}

// TableName derives the table for an owner. Owner ids are free-form, so the
// name keeps a readable prefix and a hash suffix to stay unique.
func TableName(owner string) string {
	var sb strings.Builder
	sb.WriteString("idx_")
	for _, r := range strings.ToLower(owner) {
		if sb.Len() >= 36 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	sum := sha256.Sum256([]byte(owner))
	fmt.Fprintf(&sb, "_%x", sum[:4])
	return sb.String()
}

// OpenOrCreate ensures the owner's table exists. An existing table created
// with a different vector width is rejected.
func (s *TableStore) OpenOrCreate(ctx context.Context, owner string) error {
	_, err := s.table(ctx, owner, true)
	return err
}

// table returns the quoted table name for owner. With create false, a missing
// table returns "" and no error.
func (s *TableStore) table(ctx context.Context, owner string, create bool) (string, error) {
	if owner == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "owner is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.tables[owner]; ok {
		return name, nil
	}

	var (
		name string
		dims int
	)
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT table_name, dimensions FROM index_tables WHERE owner = ?`), owner)
	switch err := row.Scan(&name, &dims); {
	case err == nil:
		if dims != s.dims {
			return "", errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("index table for %s holds %d-dimension vectors", owner, dims),
				ErrDimensionMismatch{Expected: s.dims, Got: dims})
		}
		quoted := sqldb.QuoteIdentifier(name)
		s.tables[owner] = quoted
		return quoted, nil
	case !stderrors.Is(err, sql.ErrNoRows):
		return "", errors.IndexError("failed to read index catalog", err)
	}

	if !create {
		return "", nil
	}

	name = TableName(owner)
	quoted := sqldb.QuoteIdentifier(name)
	blob := "BLOB"
	if s.db.Dialect == sqldb.Postgres {
		blob = "BYTEA"
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id      TEXT PRIMARY KEY,
				source  TEXT NOT NULL,
				page    TEXT NOT NULL,
				ordinal INTEGER NOT NULL,
				text    TEXT NOT NULL,
				vector  %s NOT NULL
			)`, quoted, blob),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(source)`, sqldb.QuoteIdentifier(name+"_source"), quoted),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO index_tables (owner, table_name, dimensions, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (owner) DO NOTHING`),
			owner, name, s.dims, s.now().UnixNano())
		return err
	})
	if err != nil {
		return "", errors.IndexError(fmt.Sprintf("failed to create index table for %s", owner), err)
	}

	slog.Debug("index_table_created", slog.String("owner", owner), slog.String("table", name), slog.Int("dimensions", s.dims))
	s.tables[owner] = quoted
	return quoted, nil
}

func (s *TableStore) checkRows(rows []Row) error {
	for _, r := range rows {
		if r.ID == "" {
			return errors.New(errors.ErrCodeInvalidInput, "row id is required", nil)
		}
		if len(r.Vector) != s.dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("row %s has %d-dimension vector", r.ID, len(r.Vector)),
				ErrDimensionMismatch{Expected: s.dims, Got: len(r.Vector)})
		}
	}
	return nil
}

// Upsert writes rows in one transaction. Existing ids are overwritten.
func (s *TableStore) Upsert(ctx context.Context, owner string, rows []Row) error {
	return s.write(ctx, owner, "", false, rows)
}

// ReplaceSource removes every row of source and writes rows in their place,
// in one transaction. Either the old rows or the new rows remain, never a mix.
func (s *TableStore) ReplaceSource(ctx context.Context, owner, source string, rows []Row) error {
	if source == "" {
		return errors.New(errors.ErrCodeInvalidInput, "source is required", nil)
	}
	return s.write(ctx, owner, source, true, rows)
}

func (s *TableStore) write(ctx context.Context, owner, source string, replace bool, rows []Row) error {
	if err := s.checkRows(rows); err != nil {
		return err
	}
	table, err := s.table(ctx, owner, true)
	if err != nil {
		return err
	}

	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if replace {
			if _, err := tx.ExecContext(ctx, s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE source = ?`, table)), source); err != nil {
				return fmt.Errorf("failed to clear source: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, s.db.Rebind(fmt.Sprintf(
			`INSERT INTO %s (id, source, page, ordinal, text, vector) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				source = excluded.source, page = excluded.page, ordinal = excluded.ordinal,
				text = excluded.text, vector = excluded.vector`, table)))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Source, r.Page, r.Ordinal, r.Text, EncodeVector(r.Vector)); err != nil {
				return fmt.Errorf("failed to write row %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.IndexError(fmt.Sprintf("failed to write %d rows for %s", len(rows), owner), err)
	}
	return nil
}

// DeleteBySource removes every row of source and reports how many went.
// An owner with no table has nothing to delete.
func (s *TableStore) DeleteBySource(ctx context.Context, owner, source string) (int, error) {
	table, err := s.table(ctx, owner, false)
	if err != nil || table == "" {
		return 0, err
	}
	res, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = ?`, table), source)
	if err != nil {
		return 0, errors.IndexError(fmt.Sprintf("failed to delete rows of %s", source), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.IndexError("failed to count deleted rows", err)
	}
	return int(n), nil
}

// CountBySource returns the number of rows of source.
func (s *TableStore) CountBySource(ctx context.Context, owner, source string) (int, error) {
	table, err := s.table(ctx, owner, false)
	if err != nil || table == "" {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE source = ?`, table)), source).Scan(&n)
	if err != nil {
		return 0, errors.IndexError(fmt.Sprintf("failed to count rows of %s", source), err)
	}
	return n, nil
}

// Sources lists the distinct sources in an owner's table, sorted.
func (s *TableStore) Sources(ctx context.Context, owner string) ([]string, error) {
	table, err := s.table(ctx, owner, false)
	if err != nil || table == "" {
		return nil, err
	}
	return s.queryStrings(ctx, fmt.Sprintf(`SELECT DISTINCT source FROM %s ORDER BY source`, table))
}

// Owners lists every owner with an index table, sorted.
func (s *TableStore) Owners(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT owner FROM index_tables ORDER BY owner`)
}

// Rows returns the rows of source ordered by page and ordinal.
func (s *TableStore) Rows(ctx context.Context, owner, source string) ([]Row, error) {
	table, err := s.table(ctx, owner, false)
	if err != nil || table == "" {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf(
		`SELECT id, source, page, ordinal, text, vector FROM %s WHERE source = ? ORDER BY ordinal`, table)), source)
	if err != nil {
		return nil, errors.IndexError(fmt.Sprintf("failed to read rows of %s", source), err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Page, &r.Ordinal, &r.Text, &blob); err != nil {
			return nil, errors.IndexError("failed to scan row", err)
		}
		if r.Vector, err = DecodeVector(blob); err != nil {
			return nil, errors.IndexError(fmt.Sprintf("corrupt vector in row %s", r.ID), err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IndexError("failed to read rows", err)
	}
	return out, nil
}

func (s *TableStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.IndexError("index query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.IndexError("failed to scan value", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IndexError("index query failed", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *TableStore) Close() error {
	return s.db.Close()
}
