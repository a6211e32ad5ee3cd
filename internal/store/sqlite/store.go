// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Weft Contributors

// Package sqlite implements the durable store on a single SQLite
// database in WAL mode. Entity name/attribute search is served by an
// FTS5 shadow index kept in sync by triggers, which requires building
// with the sqlite_fts5 tag.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/weft-dev/weft/internal/store"
	werr "github.com/weft-dev/weft/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.Store  = (*Store)(nil)
	_ store.Writer = (*writer)(nil)
)

// Store is the SQLite-backed durable store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath, enables WAL mode,
// and runs any pending migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "creating data directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "opening database")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, werr.Wrap(err, werr.CodeStoreDatabaseFailure, "pinging database")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying database connection, flushing the WAL.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn inside a transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return werr.Wrap(err, werr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&writer{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return werr.Wrap(err, werr.CodeStoreDatabaseFailure, "committing transaction")
	}
	return nil
}

// writer implements store.Writer on a single transaction.
type writer struct {
	tx *sql.Tx
}

// querier abstracts *sql.DB and *sql.Tx so entity/edge/event helpers
// serve both the read path and the transactional write path.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	// table names come from callers in this package only
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, werr.Wrapf(err, werr.CodeStoreDatabaseFailure, "counting %s", table)
	}
	return n, nil
}

// EntityCount returns the number of entity rows.
func (s *Store) EntityCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "entities")
}

// EdgeCount returns the number of edge rows.
func (s *Store) EdgeCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "edges")
}

// EventCount returns the number of event rows.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	return s.count(ctx, "events")
}
