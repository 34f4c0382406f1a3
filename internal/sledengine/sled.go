// Package sledengine implements the engine.Engine contract on top of an
// embedded SQLite database (github.com/mattn/go-sqlite3), standing in for
// the reference implementation's "sled" embedded store.
package sledengine

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/calvinalkan/kvs/internal/config"
	"github.com/calvinalkan/kvs/internal/engine"
)

const dbFileName = "index.sqlite"

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// Sled is a cheaply-cloneable handle to a shared *sql.DB. database/sql
// connection pools are already safe for concurrent use, so Clone just shares
// the pointer.
type Sled struct {
	db    *sql.DB
	owner bool
}

// Open opens (creating if absent) the SQLite index file inside dir.
//
// Open records dir as having been opened with the sled engine in the
// directory's config marker (see package config). It returns
// engine.ErrMismatchEngine if dir was previously opened with a different
// engine.
func Open(dir string) (*Sled, error) {
	if dir == "" {
		return nil, errors.New("sledengine: open: dir is empty")
	}

	err := config.EnsureMatches(dir, engine.KindSled)
	if err != nil {
		return nil, fmt.Errorf("sledengine: open: %w", err)
	}

	metaDir := filepath.Join(dir, config.MetaDir)

	db, err := openDB(filepath.Join(metaDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("sledengine: open: %w", err)
	}

	return &Sled{db: db, owner: true}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = applyPragmas(db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	_, err = db.Exec(schema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

// applyPragmas enables WAL journaling for concurrent readers and full
// synchronous commits, so Set/Remove match the log engine's durability
// contract: both flush before returning.
func applyPragmas(db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		if err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

// Set stores value under key, creating or overwriting any prior value.
func (s *Sled) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sledengine: set %q: %w", key, err)
	}

	return nil
}

// Get returns the value stored under key. The second return value is false
// if key is not present.
func (s *Sled) Get(key string) (string, bool, error) {
	var value string

	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("sledengine: get %q: %w", key, err)
	}

	return value, true, nil
}

// Remove deletes key. It returns an error wrapping engine.ErrKeyNotFound if
// key is not present.
func (s *Sled) Remove(key string) error {
	result, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sledengine: remove %q: %w", key, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sledengine: remove %q: rows affected: %w", key, err)
	}

	if n == 0 {
		return fmt.Errorf("sledengine: remove %q: %w", key, engine.ErrKeyNotFound)
	}

	return nil
}

// Clone returns a handle sharing the same underlying *sql.DB connection
// pool, which is already safe for concurrent use.
func (s *Sled) Clone() engine.Engine {
	return &Sled{db: s.db}
}

// Close closes the underlying database connection pool. Call it only on the
// handle returned by Open; Close on a Clone()-derived handle is a no-op.
func (s *Sled) Close() error {
	if s.db == nil || !s.owner {
		return nil
	}

	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("sledengine: close: %w", err)
	}

	return nil
}

var _ engine.Engine = (*Sled)(nil)
