// Package inventory keeps a local mirror of the pantry collection in step with
// the document store. Quantity updates are read-modify-write against single
// documents; the mirror is replaced on LoadAll and patched after each write
// with the value that was written.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pantry/internal/docstore"
	"pantry/pkg/domain"
)

// ErrStore is the single error kind surfaced by the syncer: a store
// operation failed (network, permission or unknown).
var ErrStore = errors.New("store operation failed")

const (
	opLoadAll   = "load_all"
	opIncrement = "increment"
	opDecrement = "decrement"
)

// Clock supplies the current time for operation timings.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger that receives operation outcomes.
func WithLogger(logger Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder observing store operations.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Syncer) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer wrapping store operations.
func WithTracer(tracer Tracer) Option {
	return func(s *Syncer) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the clock used for operation timings.
func WithClock(clock Clock) Option {
	return func(s *Syncer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCollection overrides the document collection (default domain.Collection).
func WithCollection(collection string) Option {
	return func(s *Syncer) {
		if collection != "" {
			s.collection = collection
		}
	}
}

// Change describes the outcome of a quantity update as mirrored locally.
type Change struct {
	Item    domain.Item
	Removed bool
	Noop    bool
}

// Syncer owns the local mirror of the pantry collection.
type Syncer struct {
	store      docstore.Store
	collection string
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	clock      Clock

	mu        sync.RWMutex
	items     []domain.Item
	listeners []func([]domain.Item)
}

// New constructs a Syncer over store with an empty mirror.
func New(store docstore.Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:      store,
		collection: domain.Collection,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the collection the syncer reads and writes.
func (s *Syncer) Collection() string { return s.collection }

// Items returns a copy of the local mirror in list order.
func (s *Syncer) Items() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneItems(s.items)
}

// Subscribe registers fn to be called with the new mirror after every change.
func (s *Syncer) Subscribe(fn func([]domain.Item)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// LoadAll lists the whole collection and replaces the mirror wholesale. On
// failure the previous mirror is kept.
func (s *Syncer) LoadAll(ctx context.Context) error {
	return s.run(ctx, opLoadAll, "", func(ctx context.Context) error {
		docs, err := s.store.List(ctx, s.collection)
		if err != nil {
			return err
		}
		items := make([]domain.Item, 0, len(docs))
		for _, doc := range docs {
			q, err := doc.Fields.Int(domain.QuantityField)
			if err != nil {
				s.logger.Warn("skipping document with unreadable quantity", "item", doc.Key, "error", err)
				continue
			}
			items = append(items, domain.Item{Name: doc.Key, Quantity: q})
		}
		s.mutate(func([]domain.Item) []domain.Item { return items })
		return nil
	})
}

// Increment creates name with quantity 1 or bumps the stored quantity by one.
// The read and the write are separate store calls, so a concurrent writer
// between them can be overwritten.
func (s *Syncer) Increment(ctx context.Context, name string) (Change, error) {
	var change Change
	err := s.run(ctx, opIncrement, name, func(ctx context.Context) error {
		next := 1
		doc, err := s.store.Get(ctx, s.collection, name)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
		case err != nil:
			return err
		default:
			current, err := doc.Fields.Int(domain.QuantityField)
			if err != nil {
				return err
			}
			next = current + 1
		}
		if err := s.store.Set(ctx, s.collection, name, docstore.Fields{domain.QuantityField: next}); err != nil {
			return err
		}
		change = Change{Item: domain.Item{Name: name, Quantity: next}}
		s.mutate(func(items []domain.Item) []domain.Item { return domain.UpsertItem(items, change.Item) })
		return nil
	})
	return change, err
}

// Decrement lowers the stored quantity by one, deleting the document instead
// of persisting zero. A missing document is a no-op.
func (s *Syncer) Decrement(ctx context.Context, name string) (Change, error) {
	var change Change
	err := s.run(ctx, opDecrement, name, func(ctx context.Context) error {
		doc, err := s.store.Get(ctx, s.collection, name)
		if errors.Is(err, docstore.ErrNotFound) {
			change = Change{Item: domain.Item{Name: name}, Noop: true}
			return nil
		}
		if err != nil {
			return err
		}
		current, err := doc.Fields.Int(domain.QuantityField)
		if err != nil {
			return err
		}
		if current <= 1 {
			if err := s.store.Delete(ctx, s.collection, name); err != nil {
				return err
			}
			change = Change{Item: domain.Item{Name: name}, Removed: true}
			s.mutate(func(items []domain.Item) []domain.Item { return domain.RemoveItem(items, name) })
			return nil
		}
		next := current - 1
		if err := s.store.Set(ctx, s.collection, name, docstore.Fields{domain.QuantityField: next}); err != nil {
			return err
		}
		change = Change{Item: domain.Item{Name: name, Quantity: next}}
		s.mutate(func(items []domain.Item) []domain.Item { return domain.UpsertItem(items, change.Item) })
		return nil
	})
	return change, err
}

func (s *Syncer) mutate(fn func([]domain.Item) []domain.Item) {
	s.mu.Lock()
	s.items = fn(s.items)
	snapshot := domain.CloneItems(s.items)
	listeners := make([]func([]domain.Item), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(domain.CloneItems(snapshot))
	}
}

// run wraps a store operation with tracing, metrics and logging. Failures are
// logged here and returned wrapped in ErrStore.
func (s *Syncer) run(ctx context.Context, op, name string, fn func(context.Context) error) error {
	started := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(started))
	if err != nil {
		s.logger.Error("inventory store operation failed", "operation", op, "item", name, "error", err)
		return fmt.Errorf("%s %q: %w: %w", op, name, ErrStore, err)
	}
	s.logger.Debug("inventory store operation", "operation", op, "item", name)
	return nil
}
