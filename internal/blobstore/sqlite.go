package blobstore

import (
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteBackend is the durable tier, backed by a key/value blob table in the
// device-local database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates the blob table if needed and returns the tier.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

func (s *SQLiteBackend) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteBackend) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, key)
	return err
}

func (s *SQLiteBackend) Clear() error {
	_, err := s.db.Exec(`DELETE FROM blobs`)
	return err
}

func (s *SQLiteBackend) Usage() (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM blobs`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
