package cache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists change-detection entries across process restarts.
// Use ":memory:" for an ephemeral database, or a file path for persistence.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the digest database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS digests (
		path TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		recorded_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(path string) (string, error) {
	var digest string
	err := s.db.QueryRow(`SELECT digest FROM digests WHERE path = ?`, path).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query digest: %w", err)
	}
	return digest, nil
}

func (s *SQLiteStore) Put(path, digest string) error {
	_, err := s.db.Exec(
		`INSERT INTO digests (path, digest) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET digest = excluded.digest, recorded_at = strftime('%s','now')`,
		path, digest)
	if err != nil {
		return fmt.Errorf("store digest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Paths() ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM digests`)
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan digest row: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) Delete(path string) error {
	_, err := s.db.Exec(`DELETE FROM digests WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete digest: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
