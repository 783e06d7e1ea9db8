package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	perrors "github.com/Aman-CERP/ragingest/internal/errors"
	"github.com/Aman-CERP/ragingest/internal/sqldb"
)

const defaultTableName = "document_registry"

// SQLRegistry is a Registry on SQLite or Postgres.
// Claim relies on the fingerprint primary key, so concurrent processes
// sharing one database cannot both claim the same content.
type SQLRegistry struct {
	db    *sqldb.DB
	table string
	now   func() time.Time
}

var _ Registry = (*SQLRegistry)(nil)

// NewSQLRegistry creates the registry schema in db if missing.
func NewSQLRegistry(ctx context.Context, db *sqldb.DB) (*SQLRegistry, error) {
	r := &SQLRegistry{db: db, table: defaultTableName, now: time.Now}
	table := sqldb.QuoteIdentifier(r.table)
	err := db.Migrate(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			fingerprint TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (storage_path)",
			sqldb.QuoteIdentifier(r.table+"_storage_path_idx"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (owner)",
			sqldb.QuoteIdentifier(r.table+"_owner_idx"), table),
	)
	if err != nil {
		return nil, perrors.RegistryWriteError("create registry schema", err)
	}
	return r, nil
}

func (r *SQLRegistry) Exists(ctx context.Context, fingerprint string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, sqldb.OperationTimeout)
	defer cancel()

	var one int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(fmt.Sprintf("SELECT 1 FROM %s WHERE fingerprint = ?", sqldb.QuoteIdentifier(r.table))),
		fingerprint,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, perrors.RegistryReadError("check fingerprint", err).WithDetail("fingerprint", fingerprint)
	}
	return true, nil
}

func (r *SQLRegistry) Put(ctx context.Context, entry Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (fingerprint, owner, storage_path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint)
		DO UPDATE SET owner = EXCLUDED.owner, storage_path = EXCLUDED.storage_path, created_at = EXCLUDED.created_at`,
		sqldb.QuoteIdentifier(r.table))
	if _, err := r.db.Exec(ctx, query, entry.Fingerprint, entry.Owner, entry.StoragePath, r.now().UnixNano()); err != nil {
		return perrors.RegistryWriteError("put entry", err).WithDetail("fingerprint", entry.Fingerprint)
	}
	return nil
}

func (r *SQLRegistry) Claim(ctx context.Context, entry Entry) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (fingerprint, owner, storage_path, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`,
		sqldb.QuoteIdentifier(r.table))
	res, err := r.db.Exec(ctx, query, entry.Fingerprint, entry.Owner, entry.StoragePath, r.now().UnixNano())
	if err != nil {
		return false, perrors.RegistryWriteError("claim entry", err).WithDetail("fingerprint", entry.Fingerprint)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, perrors.RegistryWriteError("claim entry", err).WithDetail("fingerprint", entry.Fingerprint)
	}
	return n == 1, nil
}

func (r *SQLRegistry) Delete(ctx context.Context, fingerprint, storagePath string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE fingerprint = ? AND storage_path = ?", sqldb.QuoteIdentifier(r.table))
	res, err := r.db.Exec(ctx, query, fingerprint, storagePath)
	if err != nil {
		return perrors.RegistryWriteError("delete entry", err).WithDetail("fingerprint", fingerprint)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return perrors.RegistryWriteError("delete entry", err).WithDetail("fingerprint", fingerprint)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *SQLRegistry) LookupFingerprintByPath(ctx context.Context, storagePath string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, sqldb.OperationTimeout)
	defer cancel()

	var fingerprint string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(fmt.Sprintf(
			"SELECT fingerprint FROM %s WHERE storage_path = ? ORDER BY created_at DESC LIMIT 1",
			sqldb.QuoteIdentifier(r.table))),
		storagePath,
	).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, perrors.RegistryReadError("lookup by path", err).WithDetail("path", storagePath)
	}
	return fingerprint, true, nil
}

func (r *SQLRegistry) List(ctx context.Context, owner string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT fingerprint, owner, storage_path FROM %s", sqldb.QuoteIdentifier(r.table))
	var args []any
	if owner != "" {
		query += " WHERE owner = ?"
		args = append(args, owner)
	}
	query += " ORDER BY fingerprint"
	return r.query(ctx, query, args...)
}

func (r *SQLRegistry) ListByPath(ctx context.Context, storagePath string) ([]Entry, error) {
	return r.query(ctx,
		fmt.Sprintf("SELECT fingerprint, owner, storage_path FROM %s WHERE storage_path = ? ORDER BY fingerprint",
			sqldb.QuoteIdentifier(r.table)),
		storagePath)
}

func (r *SQLRegistry) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, sqldb.OperationTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, perrors.RegistryReadError("list entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Fingerprint, &e.Owner, &e.StoragePath); err != nil {
			return nil, perrors.RegistryReadError("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.RegistryReadError("list entries", err)
	}
	return out, nil
}

func (r *SQLRegistry) Close() error {
	return r.db.Close()
}
