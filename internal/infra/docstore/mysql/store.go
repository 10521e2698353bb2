// Package mysql provides a MySQL-backed document store.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"pantry/internal/docstore/core"
	"pantry/internal/infra/docstore/sqldoc"

	_ "github.com/go-sql-driver/mysql" // register the mysql database/sql driver
)

const (
	defaultDriver = "mysql"
	defaultDSN    = "root@tcp(localhost:3306)/pantry"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the mysql flavour of the documents table. Keys use a binary
// collation so lookups stay case-sensitive.
var Dialect = sqldoc.Dialect{
	Driver: core.DriverMySQL,
	CreateTable: `CREATE TABLE IF NOT EXISTS documents (
		collection VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		doc_key VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
		fields JSON NOT NULL,
		PRIMARY KEY (collection, doc_key)
	)`,
	SelectAll: `SELECT doc_key, fields FROM documents WHERE collection = ? ORDER BY doc_key`,
	SelectOne: `SELECT doc_key, fields FROM documents WHERE collection = ? AND doc_key = ?`,
	Upsert:    `INSERT INTO documents(collection, doc_key, fields) VALUES(?, ?, ?) ON DUPLICATE KEY UPDATE fields=VALUES(fields)`,
	Delete:    `DELETE FROM documents WHERE collection = ? AND doc_key = ?`,
}

// Store is a MySQL-backed document store.
type Store struct {
	*sqldoc.Store
}

// NewStore connects with dsn (falls back to defaultDSN), pings the server and
// ensures the documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	inner, err := sqldoc.New(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: inner}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
