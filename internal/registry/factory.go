package registry

import (
	"context"
	"strings"

	"github.com/Aman-CERP/ragingest/internal/sqldb"
)

// Open builds a Registry from a DSN. "memory://" (or an empty DSN) yields a
// MemoryRegistry; anything else is handed to sqldb.Open.
func Open(ctx context.Context, dsn string) (Registry, error) {
	switch strings.ToLower(strings.TrimSpace(dsn)) {
	case "", "memory://", "mem://", "inmem://":
		return NewMemoryRegistry(), nil
	}
	db, err := sqldb.Open(dsn)
	if err != nil {
		return nil, err
	}
	r, err := NewSQLRegistry(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}
