// Package isolation manages git-worktree-backed workspaces for work items.
// Each item gets its own branch and working directory so its side effects
// stay contained until integration.
package isolation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists workspace mappings in SQLite so they survive process
// restarts for manual recovery.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultStorePath returns the project-local mapping database path.
func DefaultStorePath(projectRoot string) string {
	return filepath.Join(projectRoot, ".weft", "state.db")
}

// OpenStore opens the mapping database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func OpenStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending schema migrations.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Workspaces},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Workspaces = `
CREATE TABLE IF NOT EXISTS workspaces (
	item_id TEXT PRIMARY KEY,
	executor_id TEXT NOT NULL,
	branch TEXT NOT NULL,
	path TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workspaces_branch ON workspaces(branch);
`

// SaveWorkspace inserts or replaces a workspace mapping.
func (s *Store) SaveWorkspace(ws *Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT OR REPLACE INTO workspaces (item_id, executor_id, branch, path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, ws.ItemID, ws.ExecutorID, ws.Branch, ws.Path, formatTime(ws.CreatedAt))
	if err != nil {
		return fmt.Errorf("save workspace %s: %w", ws.ItemID, err)
	}
	return nil
}

// GetWorkspace returns the workspace for an item, or nil if none is recorded.
func (s *Store) GetWorkspace(itemID string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRow(`
		SELECT item_id, executor_id, branch, path, created_at
		FROM workspaces WHERE item_id = ?
	`, itemID)

	ws, err := scanWorkspace(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace %s: %w", itemID, err)
	}
	return ws, nil
}

// DeleteWorkspace removes the mapping for an item. Deleting an unknown
// item is not an error.
func (s *Store) DeleteWorkspace(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec("DELETE FROM workspaces WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("delete workspace %s: %w", itemID, err)
	}
	return nil
}

// ListWorkspaces returns all recorded workspace mappings.
func (s *Store) ListWorkspaces() ([]*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT item_id, executor_id, branch, path, created_at
		FROM workspaces ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// scanWorkspace reads one workspace row via the given scan function.
func scanWorkspace(scan func(dest ...any) error) (*Workspace, error) {
	var ws Workspace
	var createdAt string
	if err := scan(&ws.ItemID, &ws.ExecutorID, &ws.Branch, &ws.Path, &createdAt); err != nil {
		return nil, err
	}
	if t, err := parseTime(createdAt); err == nil {
		ws.CreatedAt = t
	}
	return &ws, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
