package search

import (
	"testing"
	"time"

	"pantry/pkg/domain"
)

func TestFilter(t *testing.T) {
	items := []domain.Item{{Name: "Apple", Quantity: 2}, {Name: "Banana", Quantity: 1}}
	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"substring", "an", []string{"Banana"}},
		{"case insensitive", "APP", []string{"Apple"}},
		{"empty query", "", []string{"Apple", "Banana"}},
		{"no match", "kiwi", nil},
		{"shared letter keeps order", "a", []string{"Apple", "Banana"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(items, tc.query)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %+v", tc.want, got)
			}
			for i, name := range tc.want {
				if got[i].Name != name {
					t.Fatalf("expected %v, got %+v", tc.want, got)
				}
			}
		})
	}
}

func sameItems(a, b []domain.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilterIsIdempotent(t *testing.T) {
	items := []domain.Item{{Name: "Apple", Quantity: 2}, {Name: "Banana", Quantity: 1}, {Name: "mango", Quantity: 4}}
	first := Filter(items, "an")
	second := Filter(items, "an")
	if !sameItems(first, second) {
		t.Fatalf("expected repeated filtering to agree, got %+v then %+v", first, second)
	}
	if len(first) != 2 || first[0].Name != "Banana" || first[1].Name != "mango" {
		t.Fatalf("unexpected result %+v", first)
	}

	clock := &manualClock{}
	s := New(func() []domain.Item { return items }, WithClock(clock))
	s.SetQuery("an")
	clock.Advance(DefaultDelay)
	applied := s.Results()
	s.Refresh()
	clock.Advance(DefaultDelay)
	if s.Recomputations() != 2 {
		t.Fatalf("expected two recomputations, got %d", s.Recomputations())
	}
	if !sameItems(applied, s.Results()) || !sameItems(applied, first) {
		t.Fatalf("expected refresh on an unchanged source to keep %+v, got %+v", first, s.Results())
	}
}

func TestSearchDebouncesKeystrokes(t *testing.T) {
	clock := &manualClock{}
	items := []domain.Item{{Name: "Apple", Quantity: 2}, {Name: "Banana", Quantity: 1}}
	var applied []string
	s := New(func() []domain.Item { return items },
		WithClock(clock),
		WithOnChange(func(q string, _ []domain.Item) { applied = append(applied, q) }),
	)

	for _, q := range []string{"b", "ba", "ban", "bana", "an"} {
		s.SetQuery(q)
		if s.Query() != q {
			t.Fatalf("query must update synchronously, got %q", s.Query())
		}
		clock.Advance(50 * time.Millisecond)
	}
	if s.Recomputations() != 0 {
		t.Fatalf("expected no recomputation yet, got %d", s.Recomputations())
	}
	clock.Advance(DefaultDelay)
	if s.Recomputations() != 1 {
		t.Fatalf("expected exactly one recomputation, got %d", s.Recomputations())
	}
	if len(applied) != 1 || applied[0] != "an" {
		t.Fatalf("expected final query applied, got %v", applied)
	}
	got := s.Results()
	if len(got) != 1 || got[0] != (domain.Item{Name: "Banana", Quantity: 1}) {
		t.Fatalf("unexpected results %+v", got)
	}
	if clock.scheduled() != 5 {
		t.Fatalf("expected one timer per keystroke, got %d", clock.scheduled())
	}
}

func TestSearchRefreshPicksUpSourceChanges(t *testing.T) {
	clock := &manualClock{}
	items := []domain.Item{{Name: "rice", Quantity: 1}}
	s := New(func() []domain.Item { return items }, WithClock(clock), WithDelay(10*time.Millisecond))
	s.Flush()
	if len(s.Results()) != 1 {
		t.Fatalf("expected initial result, got %+v", s.Results())
	}

	items = append(items, domain.Item{Name: "rye", Quantity: 3})
	s.Refresh()
	if !s.Pending() {
		t.Fatalf("expected pending refresh")
	}
	clock.Advance(10 * time.Millisecond)
	if len(s.Results()) != 2 {
		t.Fatalf("expected refreshed result, got %+v", s.Results())
	}
}

func TestSearchImmediateMirroring(t *testing.T) {
	clock := &manualClock{}
	s := New(nil, WithClock(clock))
	s.SetResults([]domain.Item{{Name: "a", Quantity: 1}, {Name: "b", Quantity: 1}})
	s.Upsert(domain.Item{Name: "a", Quantity: 2})
	got := s.Results()
	if len(got) != 2 || got[1] != (domain.Item{Name: "a", Quantity: 2}) {
		t.Fatalf("expected upsert at end, got %+v", got)
	}
	s.Remove("b")
	got = s.Results()
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("expected removal, got %+v", got)
	}
}

func TestSearchClose(t *testing.T) {
	clock := &manualClock{}
	s := New(func() []domain.Item { return nil }, WithClock(clock))
	s.SetQuery("x")
	s.Close()
	clock.Advance(time.Second)
	if s.Recomputations() != 0 {
		t.Fatalf("expected closed search to stay idle")
	}
}
