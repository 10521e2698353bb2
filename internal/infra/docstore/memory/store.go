// Package memory implements an in-memory document Store for tests and
// ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pantry/internal/docstore/core"
)

var _ core.Store = (*Store)(nil)

// Store implements core.Store backed by process memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]core.Fields
}

// New returns an empty in-memory document store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]core.Fields)}
}

// Driver returns the memory driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// List returns the collection's documents ordered by key.
func (s *Store) List(ctx context.Context, collection string) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]core.Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, core.Document{Key: k, Fields: docs[k].Clone()})
	}
	return out, nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(ctx context.Context, collection, key string) (core.Document, error) {
	if err := core.ValidateKey(collection, key); err != nil {
		return core.Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[collection][key]
	if !ok {
		return core.Document{}, fmt.Errorf("get %s/%s: %w", collection, key, core.ErrNotFound)
	}
	return core.Document{Key: key, Fields: fields.Clone()}, nil
}

// Set replaces the document's fields.
func (s *Store) Set(ctx context.Context, collection, key string, fields core.Fields) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]core.Fields)
		s.collections[collection] = docs
	}
	stored := fields.Clone()
	if stored == nil {
		stored = core.Fields{}
	}
	docs[key] = stored
	return nil
}

// Delete removes the document if present.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := core.ValidateKey(collection, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }
