package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the snapshot database and applies migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping snapshot store: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot store: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_access TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_last_access ON snapshots(last_access);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads a snapshot. A corrupt payload is treated as a miss after
// removing the row, so a damaged store degrades instead of blocking.
func (s *SQLiteStore) Get(key string) (*Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM snapshots WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		_ = s.Delete(key)
		return nil, ErrMiss
	}
	return &snap, nil
}

// Put stores or replaces a snapshot.
func (s *SQLiteStore) Put(snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (key, payload, created_at, last_access) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload,
		   created_at = excluded.created_at, last_access = excluded.last_access`,
		snap.Key, payload, snap.CreatedAt, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", snap.Key, err)
	}
	return nil
}

// Delete removes one snapshot.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

// Entries lists store metadata ordered by last access, oldest first.
func (s *SQLiteStore) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, created_at, last_access FROM snapshots ORDER BY last_access ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.CreatedAt, &e.LastAccess); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Touch records an access for LRU ordering.
func (s *SQLiteStore) Touch(key string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE snapshots SET last_access = ? WHERE key = ?`, at, key)
	return err
}

// Count returns the number of stored snapshots.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

// Purge removes all snapshots.
func (s *SQLiteStore) Purge() error {
	_, err := s.db.Exec(`DELETE FROM snapshots`)
	return err
}
