// Package sqlite implements internal/storage.Storage over the pure-Go
// SQLite driver github.com/ncruces/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"dlfi/internal/storage"
)

// SQLiteStorage is the concrete storage.Storage backend.
type SQLiteStorage struct {
	conn
	path string
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// Open creates or opens the database at path, applies the base schema,
// and runs every pending migration.
func Open(path string) (*SQLiteStorage, error) {
	connStr := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows only one writer; a single pooled connection keeps
	// every statement serialized through the same handle and avoids
	// SQLITE_BUSY from the driver's own pool fighting itself.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStorage{conn: conn{db: db}, path: path}, nil
}

func (s *SQLiteStorage) Close() error { return s.db.Close() }

func (s *SQLiteStorage) Path() string { return s.path }

func (s *SQLiteStorage) UnderlyingDB() *sql.DB { return s.db }

// RunInTransaction runs fn inside a BEGIN IMMEDIATE transaction: the
// write lock is taken up front rather than on first write, so a
// concurrent reader never forces this transaction to retry mid-way.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) (err error) {
	if _, execErr := s.db.ExecContext(ctx, "BEGIN IMMEDIATE"); execErr != nil {
		return fmt.Errorf("begin immediate: %w", execErr)
	}
	tx := &txStorage{conn: conn{db: s.db}}

	defer func() {
		if p := recover(); p != nil {
			s.db.ExecContext(ctx, "ROLLBACK")
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if _, rbErr := s.db.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if _, err = s.db.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// txStorage implements storage.Transaction by running every Queryer
// method against the same *sql.DB handle used to BEGIN IMMEDIATE above;
// the pool is capped at one connection (see Open), so statements issued
// here land inside the open transaction rather than on a sibling
// connection.
type txStorage struct {
	conn
}

var _ storage.Transaction = (*txStorage)(nil)
