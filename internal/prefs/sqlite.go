package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite file.
// Each set is a single row whose value is the CBOR-encoded member list.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the preference database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create preference dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preference database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure preference database: %w", err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS preference_sets (
		key        TEXT PRIMARY KEY,
		members    BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create preference table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LoadSet decodes the stored member list. A missing row is an empty set.
func (s *SQLiteStore) LoadSet(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT members FROM preference_sets WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	var members []string
	if err := cbor.Unmarshal(blob, &members); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return members, nil
}

// SaveSet replaces the stored member list.
func (s *SQLiteStore) SaveSet(ctx context.Context, key string, members []string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if members == nil {
		members = []string{}
	}

	blob, err := cbor.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO preference_sets (key, members, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			members=excluded.members,
			updated_at=excluded.updated_at`,
		key, blob, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// DB returns the underlying database handle, for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
