// Package audit mirrors the JSON-lines sync log into a SQLite database,
// giving `cast status`-style tooling indexed queries (by cast-id, by
// peer) instead of a linear scan of sync.log.
//
// Grounded on the teacher's internal/store package: the WAL-mode pragma
// set, the PRAGMA user_version migration ladder, and the
// ON CONFLICT DO NOTHING idempotent-insert pattern all carry over
// directly, re-pointed at sync events instead of concept invocations.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is an open handle onto one vault's .cast/history.db.
type Store struct {
	db *sql.DB
}

// Open creates or opens path, applying pragmas and migrations. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect history db: %w", err)
	}

	// SQLite allows only one writer; the sync driver never opens this
	// store from more than one goroutine, but pooling is still capped to
	// avoid SQLITE_BUSY under the file lock another process might hold.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply history schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Record is one mirrored sync event, field-compatible with the sync.log
// JSON-lines shape the plan executor writes.
type Record struct {
	TS     string
	Event  string
	CastID string
	Peer   string
	From   string
	To     string
	Path   string
}

// Append inserts one event. Re-appending the same (cast_id, peer, event,
// ts, path) tuple — e.g. after a crash-and-retry — is a no-op by the
// schema's unique index, so callers never need to de-duplicate themselves.
func (s *Store) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_events (cast_id, peer, event, ts, from_path, to_path, path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cast_id, peer, event, ts, path) DO NOTHING
	`, r.CastID, r.Peer, r.Event, r.TS, r.From, r.To, r.Path)
	if err != nil {
		return fmt.Errorf("append sync event: %w", err)
	}
	return nil
}

// QueryHistory returns every mirrored event for castID, oldest first. An
// empty peer matches every peer.
func (s *Store) QueryHistory(ctx context.Context, castID, peer string) ([]Record, error) {
	query := `SELECT ts, event, cast_id, peer, from_path, to_path, path FROM sync_events WHERE cast_id = ?`
	args := []any{castID}
	if peer != "" {
		query += " AND peer = ?"
		args = append(args, peer)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var from, to, path sql.NullString
		if err := rows.Scan(&r.TS, &r.Event, &r.CastID, &r.Peer, &from, &to, &path); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.From, r.To, r.Path = from.String, to.String, path.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}
