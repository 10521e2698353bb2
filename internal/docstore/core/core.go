// Package core defines the document store contract implemented by the infra
// backends and consumed through the docstore package.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Driver identifies a concrete document store backend implementation.
type Driver string

const (
	// DriverMemory keeps documents in process memory (tests / ephemeral).
	DriverMemory Driver = "memory"
	// DriverSQLite stores documents in an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores documents in a PostgreSQL table.
	DriverPostgres Driver = "postgres"
	// DriverMySQL stores documents in a MySQL table.
	DriverMySQL Driver = "mysql"
	// DriverS3 stores one JSON object per document in an S3 / MinIO bucket.
	DriverS3 Driver = "s3"
)

var (
	// ErrNotFound is returned by Get when no document exists for the key.
	ErrNotFound = errors.New("docstore: not found")
	// ErrInvalidKey is returned when a collection or key is empty.
	ErrInvalidKey = errors.New("docstore: collection and key are required")
)

// Fields is the flat field set of a document. Set replaces it wholesale.
type Fields map[string]any

// Document is a single stored record addressed by collection + key.
type Document struct {
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// Store is the document database collaborator.
type Store interface {
	// List returns every document of the collection. Ordering is backend defined.
	List(ctx context.Context, collection string) ([]Document, error)
	// Get returns the document for key or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set fully replaces the fields stored under key, creating it if needed.
	Set(ctx context.Context, collection, key string, fields Fields) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// Driver reports the backend identifier.
	Driver() Driver
	// Close releases backend resources.
	Close() error
}

// ValidateKey rejects empty collection or key values.
func ValidateKey(collection, key string) error {
	if strings.TrimSpace(collection) == "" || key == "" {
		return ErrInvalidKey
	}
	return nil
}

// Clone returns a shallow copy of the field map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Int decodes an integral numeric field regardless of how the backend
// represented the number after decoding.
func (f Fields) Int(name string) (int, error) {
	raw, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("field %q missing", name)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("field %q is not an integer: %v", name, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not an integer: %w", name, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", name, raw)
	}
}

// EncodeFields serializes fields for backends that store JSON payloads.
func EncodeFields(fields Fields) ([]byte, error) {
	if fields == nil {
		fields = Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// DecodeFields parses a JSON payload, keeping numbers as json.Number so
// integers survive without float rounding.
func DecodeFields(data []byte) (Fields, error) {
	fields := Fields{}
	if len(data) == 0 {
		return fields, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
