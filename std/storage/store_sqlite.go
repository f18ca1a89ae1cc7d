package storage

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Store implementation using sqlite3
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	init := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	}
	for _, stmt := range init {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Update(key string, value []byte) error {
	if len(value) == 0 {
		_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func (s *SqliteStore) Iterate(fn func(key string, value []byte) error) error {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (s *SqliteStore) EraseAll() error {
	_, err := s.db.Exec("DELETE FROM settings")
	return err
}

func (s *SqliteStore) Flush() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(FULL)")
	return err
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}
