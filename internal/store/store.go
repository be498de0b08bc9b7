// Package store persists the runtime blacklist and verification records.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperifyio/revimg/internal/verify"
)

// Store is implemented by every backend.
type Store interface {
	LoadRuntime(ctx context.Context) ([]string, error)
	SaveRuntime(ctx context.Context, domains []string) error
	SaveRecords(ctx context.Context, records []verify.Record) error
	// RecentRecords returns up to limit records, newest first.
	RecentRecords(ctx context.Context, limit int) ([]verify.Record, error)
	Close() error
}

// Open selects a backend from a DSN: "sqlite:<path>" or a plain path ending
// in .db/.sqlite opens SQLite; anything else is a directory for JSON files.
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("store: empty location")
	}
	path, isSQLite := strings.CutPrefix(dsn, "sqlite:")
	if isSQLite || strings.HasSuffix(dsn, ".db") || strings.HasSuffix(dsn, ".sqlite") {
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	f, err := OpenFile(dsn)
	if err != nil {
		return nil, err
	}
	return f, nil
}
