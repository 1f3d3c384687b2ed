// Package store implements the canonical chat history Store (component B):
// a SQLite-backed database file plus a sibling directory tree holding
// dataset roots and their media, presenting a capability-bounded read/write
// API, backups, and a multi-reader/single-writer concurrency discipline.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// Store owns one SQLite database file and the directory tree of dataset
// roots beside it. Reads may proceed concurrently; writes are serialized
// against both other writes and all reads by mu, per spec.md §5.
type Store struct {
	db     *sql.DB
	dbPath string
	dbDir  string

	mu             sync.RWMutex // reader/writer lock, not a mutual-exclusion lock on db access alone
	backupsSuspended bool
}

// Open opens or creates the database at dbPath, enabling WAL mode and
// foreign keys. It does not initialize the schema; call InitSchema for a
// fresh database.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + defaultSQLiteParams
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, dbDir: dir}, nil
}

// Close closes the underlying database connection. Per spec.md §5, the
// service adapter calls this when a handle is closed; it must not be called
// while other goroutines hold read or write references to this Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string { return s.dbPath }

// DatasetRoot returns the filesystem directory under which the named
// dataset's media is stored: <db-dir>/<dataset-root>.
func (s *Store) DatasetRoot(root string) string {
	return filepath.Join(s.dbDir, root)
}

// InitSchema creates the schema if it does not already exist.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// isSQLiteError checks if err is a sqlite3.Error whose message contains substr.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	return false
}

// isUniqueConstraintError reports whether err is a SQLite UNIQUE constraint
// violation, the trigger for apperror.Conflict at call sites.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// withRead acquires the reader side of the store lock for the duration of fn.
func (s *Store) withRead(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// withWrite acquires the exclusive writer side of the store lock, which also
// excludes readers for the duration of fn, per spec.md §5.
func (s *Store) withWrite(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// queryInChunks executes a parameterized IN-query in chunks to stay within
// SQLite's 999 bound-parameter ceiling. queryTemplate must contain a single
// %s placeholder for the comma-separated "?" list; prefixArgs are prepended
// to every chunk's args.
func queryInChunks[T any](db *sql.DB, ids []T, prefixArgs []interface{}, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		query := fmt.Sprintf(queryTemplate, strings.Join(placeholders, ","))
		rows, err := db.Query(query, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// insertInChunks executes a multi-VALUES INSERT in chunks to stay within
// SQLite's parameter ceiling. valuesPerRow is the parameter count of one
// VALUES tuple; valueBuilder produces the placeholder/arg pair for rows
// [start,end).
func insertInChunks(tx *sql.Tx, totalRows int, valuesPerRow int, queryPrefix string, valueBuilder func(start, end int) ([]string, []interface{})) error {
	const maxParams = 900
	chunkSize := maxParams / valuesPerRow
	if chunkSize < 1 {
		chunkSize = 1
	}
	for i := 0; i < totalRows; i += chunkSize {
		end := i + chunkSize
		if end > totalRows {
			end = totalRows
		}
		values, args := valueBuilder(i, end)
		query := queryPrefix + strings.Join(values, ",")
		if _, err := tx.Exec(query, args...); err != nil {
			return err
		}
	}
	return nil
}
