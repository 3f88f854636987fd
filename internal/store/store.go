package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database. Reads go straight through sqlx;
// writes funnel through WithWriteTx so that multi-statement updates are
// serialized process-wide and atomic.
type Store struct {
	db      *sqlx.DB
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the sqlite database at path,
// applies pending migrations and returns the ready Store.
func Open(path string) (*Store, error) {
	// Migrations get their own connection: the migrator closes the
	// handle it is given when it finishes.
	migrationDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database for migration: %w", err)
	}
	if err := MigrateUp(migrationDB); err != nil {
		migrationDB.Close()
		return nil, err
	}
	migrationDB.Close()

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// dsn builds the connection string: WAL for concurrent readers during
// writes, enforced foreign keys for cascade deletes, a busy timeout so
// short lock contention blocks instead of failing, and immediate
// transactions so writes take the lock up front.
func dsn(path string) string {
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}
	return "file:" + path + "?_txlock=immediate&" + strings.Join(pragmas, "&")
}

// DB exposes the underlying handle for read-only queries.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithWriteTx runs fn inside a write transaction while holding the
// process-wide write lock. The transaction is rolled back unless fn
// returns nil, in which case it is committed.
func (s *Store) WithWriteTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write tx: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
