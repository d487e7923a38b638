// Package sqlite provides the SQLite-backed implementation of the storage
// interfaces: indicator definitions, computed values, batch logs, and the
// read-only program and submission sources.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new SQLite store with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle. The aggregation engine executes
// descriptor-built queries against the same database.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
