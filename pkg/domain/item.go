// Package domain defines the pantry item model shared by the sync layer,
// the search filter, and the presentation layer.
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Collection is the document-store collection holding pantry items.
const Collection = "pantry"

// QuantityField is the document field carrying an item's count.
const QuantityField = "quantity"

// Item is a named pantry entry. Name is the document key, stored verbatim.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// DisplayName capitalizes the first character of the name only.
func (i Item) DisplayName() string {
	return Capitalize(i.Name)
}

// Capitalize upper-cases the first rune of s and leaves the rest untouched.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// MatchesQuery reports whether the item name contains query, ignoring case.
func (i Item) MatchesQuery(query string) bool {
	return strings.Contains(strings.ToLower(i.Name), strings.ToLower(query))
}

// CloneItems returns a copy of items that shares no backing array.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// UpsertItem removes any entry with item's name and appends item at the end.
func UpsertItem(items []Item, item Item) []Item {
	out := RemoveItem(items, item.Name)
	return append(out, item)
}

// RemoveItem returns items without any entry named name.
func RemoveItem(items []Item, name string) []Item {
	out := make([]Item, 0, len(items))
	for _, existing := range items {
		if existing.Name == name {
			continue
		}
		out = append(out, existing)
	}
	return out
}
