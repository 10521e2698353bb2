// Package postgres provides a Postgres-backed document store that keeps
// document fields in a JSONB column.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"pantry/internal/docstore/core"
	"pantry/internal/infra/docstore/sqldoc"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/pantry?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the postgres flavour of the documents table.
var Dialect = sqldoc.Dialect{
	Driver: core.DriverPostgres,
	CreateTable: `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		doc_key TEXT NOT NULL,
		fields JSONB NOT NULL,
		PRIMARY KEY (collection, doc_key)
	)`,
	SelectAll: `SELECT doc_key, fields FROM documents WHERE collection = $1 ORDER BY doc_key`,
	SelectOne: `SELECT doc_key, fields FROM documents WHERE collection = $1 AND doc_key = $2`,
	Upsert:    `INSERT INTO documents(collection, doc_key, fields) VALUES($1, $2, $3) ON CONFLICT(collection, doc_key) DO UPDATE SET fields=EXCLUDED.fields`,
	Delete:    `DELETE FROM documents WHERE collection = $1 AND doc_key = $2`,
}

// Store is a Postgres-backed document store.
type Store struct {
	*sqldoc.Store
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN),
// pings the server and ensures the documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
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
