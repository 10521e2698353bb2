package search

import (
	"sync"
	"time"

	"pantry/pkg/domain"
)

// DefaultDelay is the quiet period before a query change is applied.
const DefaultDelay = 300 * time.Millisecond

// Filter returns the items whose name contains query, ignoring case, in input
// order. An empty query matches everything.
func Filter(items []domain.Item, query string) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if item.MatchesQuery(query) {
			out = append(out, item)
		}
	}
	return out
}

// Option configures a Search.
type Option func(*Search)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(s *Search) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithClock injects the clock used for debouncing.
func WithClock(clock Clock) Option {
	return func(s *Search) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOnChange registers a callback invoked after each applied recomputation.
func WithOnChange(fn func(query string, results []domain.Item)) Option {
	return func(s *Search) {
		s.onChange = fn
	}
}

// Search keeps the current query and the filtered view of a source list.
// Query changes are applied synchronously; recomputation is debounced.
type Search struct {
	source   func() []domain.Item
	delay    time.Duration
	clock    Clock
	onChange func(string, []domain.Item)
	debounce *Debouncer

	mu             sync.RWMutex
	query          string
	results        []domain.Item
	recomputations int
}

// New creates a Search reading the full list from source.
func New(source func() []domain.Item, opts ...Option) *Search {
	s := &Search{
		source: source,
		delay:  DefaultDelay,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debounce = NewDebouncer(s.delay, s.clock)
	return s
}

// SetQuery records q immediately and reschedules the recomputation.
func (s *Search) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
	s.debounce.Schedule(s.recompute)
}

// Query returns the latest query, which may not be applied yet.
func (s *Search) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// Refresh reschedules the recomputation, typically after the source changed.
func (s *Search) Refresh() {
	s.debounce.Schedule(s.recompute)
}

// Flush cancels any pending recomputation and applies one now.
func (s *Search) Flush() {
	s.debounce.Cancel()
	s.recompute()
}

// Delay reports the debounce delay.
func (s *Search) Delay() time.Duration { return s.delay }

// Pending reports whether a recomputation is scheduled.
func (s *Search) Pending() bool { return s.debounce.Pending() }

// Close cancels any pending recomputation.
func (s *Search) Close() { s.debounce.Cancel() }

// Results returns a copy of the last applied result.
func (s *Search) Results() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneItems(s.results)
}

// Recomputations counts the recomputations applied so far.
func (s *Search) Recomputations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recomputations
}

// SetResults replaces the visible result without filtering.
func (s *Search) SetResults(items []domain.Item) {
	s.mu.Lock()
	s.results = domain.CloneItems(items)
	s.mu.Unlock()
}

// Upsert mirrors a write into the visible result ahead of the next recomputation.
func (s *Search) Upsert(item domain.Item) {
	s.mu.Lock()
	s.results = domain.UpsertItem(s.results, item)
	s.mu.Unlock()
}

// Remove drops name from the visible result ahead of the next recomputation.
func (s *Search) Remove(name string) {
	s.mu.Lock()
	s.results = domain.RemoveItem(s.results, name)
	s.mu.Unlock()
}

func (s *Search) recompute() {
	var items []domain.Item
	if s.source != nil {
		items = s.source()
	}
	s.mu.Lock()
	query := s.query
	s.results = Filter(items, query)
	s.recomputations++
	results := domain.CloneItems(s.results)
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(query, results)
	}
}
