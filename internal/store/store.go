// Package store is the server's SQLite persistence layer. The server
// stores whatever reconciled state clients upload; it never merges.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/alexjbarnes/fittrack/internal/models"
)

const dbDirPerm = 0o755

// Store wraps the server database.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath, creating parent directories and
// running migrations. Pass ":memory:" for an ephemeral database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), dbDirPerm); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// entriesTable maps a synced day-keyed domain to its table. Favorites
// have their own shape and their own table.
func entriesTable(domain models.Domain) (string, error) {
	switch domain {
	case models.DomainMenu:
		return "menu_entries", nil
	case models.DomainWorkouts:
		return "workout_entries", nil
	default:
		return "", fmt.Errorf("no entries table for domain %q", domain)
	}
}
