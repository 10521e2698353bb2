// Package sqlite provides an embedded SQLite document store built on the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pantry/internal/docstore/core"
	"pantry/internal/infra/docstore/sqldoc"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "pantry.db"

// Dialect is the sqlite flavour of the documents table.
var Dialect = sqldoc.Dialect{
	Driver: core.DriverSQLite,
	CreateTable: `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		doc_key TEXT NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (collection, doc_key)
	)`,
	SelectAll: `SELECT doc_key, fields FROM documents WHERE collection = ? ORDER BY doc_key`,
	SelectOne: `SELECT doc_key, fields FROM documents WHERE collection = ? AND doc_key = ?`,
	Upsert:    `INSERT INTO documents(collection, doc_key, fields) VALUES(?, ?, ?) ON CONFLICT(collection, doc_key) DO UPDATE SET fields=excluded.fields`,
	Delete:    `DELETE FROM documents WHERE collection = ? AND doc_key = ?`,
}

// Store is a sqlite-backed document store.
type Store struct {
	*sqldoc.Store
	path string
}

// NewStore opens (creating if needed) the sqlite database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	inner, err := sqldoc.New(context.Background(), db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner, path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
