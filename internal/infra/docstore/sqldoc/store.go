// Package sqldoc implements the document store contract on a single SQL table
// of JSON payloads. The sqlite, postgres and mysql backends differ only in the
// Dialect they hand to New.
package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pantry/internal/docstore/core"
)

var _ core.Store = (*Store)(nil)

// Dialect holds the backend-specific statements for the documents table.
type Dialect struct {
	Driver      core.Driver
	CreateTable string
	SelectAll   string // args: collection
	SelectOne   string // args: collection, key
	Upsert      string // args: collection, key, fields
	Delete      string // args: collection, key
}

// Store persists documents as rows of (collection, doc_key, fields).
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New ensures the documents table exists and returns a store over db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqldoc: db is nil")
	}
	if _, err := db.ExecContext(ctx, dialect.CreateTable); err != nil {
		return nil, fmt.Errorf("ensure documents table: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Driver returns the dialect's driver identifier.
func (s *Store) Driver() core.Driver { return s.dialect.Driver }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// List returns all documents of collection.
func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectAll, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []core.Document
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := core.DecodeFields(payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		docs = append(docs, core.Document{Key: key, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Get returns the document stored under key.
func (s *Store) Get(ctx context.Context, collection, key string) (core.Document, error) {
	if err := core.ValidateKey(collection, key); err != nil {
		return core.Document{}, err
	}
	var storedKey string
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.dialect.SelectOne, collection, key).Scan(&storedKey, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, core.ErrNotFound)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	fields, err := core.DecodeFields(payload)
	if err != nil {
		return core.Document{}, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return core.Document{Key: storedKey, Fields: fields}, nil
}

// Set upserts the document, replacing any previous fields.
func (s *Store) Set(ctx context.Context, collection, key string, fields core.Fields) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	payload, err := core.EncodeFields(fields)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, collection, key, string(payload)); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes the document if it exists.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.Delete, collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
