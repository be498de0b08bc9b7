package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperifyio/revimg/internal/verify"
)

// SQLite wraps *sql.DB on top of modernc.org/sqlite (pure Go).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runtime_blacklist (
            domain TEXT PRIMARY KEY,
            added_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS verifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            round_id TEXT NOT NULL,
            link TEXT NOT NULL,
            text TEXT,
            message_id TEXT,
            state TEXT NOT NULL,
            posted_at TIMESTAMP,
            observed_at TIMESTAMP,
            error TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS verifications_round ON verifications(round_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLite) LoadRuntime(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM runtime_blacklist ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("query runtime blacklist: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan runtime blacklist: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveRuntime inserts domains not yet stored. The blacklist is append-only,
// so nothing is deleted.
func (s *SQLite) SaveRuntime(ctx context.Context, domains []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UTC()
	for _, d := range domains {
		if _, err := tx.ExecContext(ctx, `INSERT INTO runtime_blacklist(domain, added_at) VALUES(?, ?) ON CONFLICT(domain) DO NOTHING`, d, now); err != nil {
			return fmt.Errorf("insert runtime domain %s: %w", d, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) SaveRecords(ctx context.Context, records []verify.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `INSERT INTO verifications(round_id, link, text, message_id, state, posted_at, observed_at, error)
            VALUES(?,?,?,?,?,?,?,?)`,
			r.RoundID, r.Link, r.Text, r.MessageID, string(r.State), r.PostedAt.UTC(), nullTime(r.ObservedAt), r.Error)
		if err != nil {
			return fmt.Errorf("insert verification %s: %w", r.Link, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) RecentRecords(ctx context.Context, limit int) ([]verify.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT round_id, link, COALESCE(text,''), COALESCE(message_id,''), state, posted_at, observed_at, COALESCE(error,'')
        FROM verifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()
	var out []verify.Record
	for rows.Next() {
		var r verify.Record
		var state string
		var posted, observed sql.NullTime
		if err := rows.Scan(&r.RoundID, &r.Link, &r.Text, &r.MessageID, &state, &posted, &observed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan verifications: %w", err)
		}
		r.State = verify.State(state)
		if posted.Valid {
			r.PostedAt = posted.Time
		}
		if observed.Valid {
			r.ObservedAt = observed.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
