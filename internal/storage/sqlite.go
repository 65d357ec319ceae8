// Package storage - SQLite-backed snapshot store.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SnapshotStore persists encoded reasoner states in SQLite so a host can
// keep a history of named snapshots beyond a single save/load blob.
type SnapshotStore struct {
	db *sql.DB
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    name       TEXT NOT NULL,
    created_at TEXT NOT NULL,
    step       INTEGER NOT NULL,
    state      BLOB NOT NULL,
    PRIMARY KEY (name)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
`

// OpenSnapshotStore opens (creating if needed) a snapshot database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot store path cannot be empty")
	}
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping snapshot store: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save upserts a named snapshot.
func (s *SnapshotStore) Save(name string, step uint64, state []byte, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (name, created_at, step, state) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET created_at=excluded.created_at, step=excluded.step, state=excluded.state`,
		name, now.UTC().Format(time.RFC3339Nano), int64(step), state,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %q: %w", name, err)
	}
	return nil
}

// Load returns the state blob for a named snapshot.
func (s *SnapshotStore) Load(name string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRow(`SELECT state FROM snapshots WHERE name = ?`, name).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %q: %w", name, err)
	}
	return state, nil
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Step      uint64    `json:"step"`
}

// List returns metadata for every stored snapshot, newest first.
func (s *SnapshotStore) List() ([]SnapshotInfo, error) {
	rows, err := s.db.Query(`SELECT name, created_at, step FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var created string
		var step int64
		if err := rows.Scan(&info.Name, &created, &step); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = t
		}
		info.Step = uint64(step)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a named snapshot.
func (s *SnapshotStore) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
