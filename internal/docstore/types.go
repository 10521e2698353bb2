// Package docstore re-exports the document store contract and selects a
// concrete backend. It is the only package allowed to import the infra
// document store implementations.
package docstore

import "pantry/internal/docstore/core"

type (
	// Driver identifies a document store backend.
	Driver = core.Driver
	// Fields is a document's field set.
	Fields = core.Fields
	// Document is a stored record.
	Document = core.Document
	// Store is the document store collaborator contract.
	Store = core.Store
)

const (
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
	// DriverSQLite is the embedded sqlite driver.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres is the PostgreSQL driver.
	DriverPostgres = core.DriverPostgres
	// DriverMySQL is the MySQL driver.
	DriverMySQL = core.DriverMySQL
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
)

var (
	// ErrNotFound reports a missing document.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidKey reports an empty collection or key.
	ErrInvalidKey = core.ErrInvalidKey
)
