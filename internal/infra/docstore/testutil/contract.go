// Package testutil holds shared helpers for document store backend tests: a
// behavioural contract suite and a stub database/sql driver.
package testutil

import (
	"context"
	"errors"
	"sort"
	"testing"

	"pantry/internal/docstore/core"
)

// RunStoreContract exercises the behaviour every core.Store backend must honour.
// newStore must return an empty store; it is called once per subtest.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, "pantry", "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set then get round trips fields", func(t *testing.T) {
		store := newStore(t)
		if err := store.Set(ctx, "pantry", "apple", core.Fields{"quantity": 2}); err != nil {
			t.Fatalf("set: %v", err)
		}
		doc, err := store.Get(ctx, "pantry", "apple")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Key != "apple" {
			t.Fatalf("expected key apple, got %q", doc.Key)
		}
		if q, err := doc.Fields.Int("quantity"); err != nil || q != 2 {
			t.Fatalf("expected quantity 2, got %d (%v)", q, err)
		}
	})

	t.Run("set replaces all fields", func(t *testing.T) {
		store := newStore(t)
		if err := store.Set(ctx, "pantry", "apple", core.Fields{"quantity": 2, "note": "red"}); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := store.Set(ctx, "pantry", "apple", core.Fields{"quantity": 3}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		doc, err := store.Get(ctx, "pantry", "apple")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if _, ok := doc.Fields["note"]; ok {
			t.Fatalf("expected full replace to drop stale field, got %v", doc.Fields)
		}
		if q, _ := doc.Fields.Int("quantity"); q != 3 {
			t.Fatalf("expected quantity 3, got %v", doc.Fields)
		}
	})

	t.Run("keys are case sensitive", func(t *testing.T) {
		store := newStore(t)
		if err := store.Set(ctx, "pantry", "Apple", core.Fields{"quantity": 1}); err != nil {
			t.Fatalf("set: %v", err)
		}
		if _, err := store.Get(ctx, "pantry", "apple"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected lower-case key to be missing, got %v", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		if err := store.Set(ctx, "pantry", "apple", core.Fields{"quantity": 1}); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := store.Delete(ctx, "pantry", "apple"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := store.Delete(ctx, "pantry", "apple"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if _, err := store.Get(ctx, "pantry", "apple"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("list returns only the requested collection", func(t *testing.T) {
		store := newStore(t)
		seed := map[string]int{"apple": 2, "banana": 1, "olive oil": 4}
		for key, q := range seed {
			if err := store.Set(ctx, "pantry", key, core.Fields{"quantity": q}); err != nil {
				t.Fatalf("set %s: %v", key, err)
			}
		}
		if err := store.Set(ctx, "other", "apple", core.Fields{"quantity": 9}); err != nil {
			t.Fatalf("set other: %v", err)
		}
		docs, err := store.List(ctx, "pantry")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(docs) != len(seed) {
			t.Fatalf("expected %d documents, got %d", len(seed), len(docs))
		}
		keys := make([]string, 0, len(docs))
		for _, doc := range docs {
			keys = append(keys, doc.Key)
			q, err := doc.Fields.Int("quantity")
			if err != nil {
				t.Fatalf("quantity for %s: %v", doc.Key, err)
			}
			if q != seed[doc.Key] {
				t.Fatalf("expected %s=%d, got %d", doc.Key, seed[doc.Key], q)
			}
		}
		sort.Strings(keys)
		if keys[0] != "apple" || keys[1] != "banana" || keys[2] != "olive oil" {
			t.Fatalf("unexpected keys %v", keys)
		}
	})

	t.Run("list of empty collection", func(t *testing.T) {
		store := newStore(t)
		docs, err := store.List(ctx, "pantry")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("expected no documents, got %v", docs)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		store := newStore(t)
		if err := store.Set(ctx, "pantry", "", core.Fields{"quantity": 1}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
	})
}
