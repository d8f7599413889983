// Package db opens the workspace-scoped SQLite store. All SafetyDesk state
// lives in a single .safetydesk/safetydesk.db file next to the data it
// describes, so a workspace can be copied or archived as a unit.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "safetydesk.db"

type Config struct {
	Workspace string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".safetydesk", defaultDBName)
}

// EnsureWorkspace creates the .safetydesk directory under the workspace if
// missing and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".safetydesk")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the workspace database, creating the directory on first use.
// Foreign key enforcement is switched on per connection; the account
// references in the schema rely on it.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", dbPath(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the database file path for a workspace without opening it.
func Path(workspace string) string {
	return dbPath(workspace)
}
