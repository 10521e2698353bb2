// Package ui holds the application state behind the pantry page: the synced
// inventory, the debounced search, and the add-item modal.
package ui

import (
	"context"
	"sync"
	"time"

	"pantry/internal/inventory"
	"pantry/internal/search"
	"pantry/pkg/domain"
)

// Row is one rendered inventory line.
type Row struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity"`
}

// View is a snapshot of everything the page renders.
type View struct {
	Query     string `json:"query"`
	ModalOpen bool   `json:"modal_open"`
	ItemName  string `json:"item_name"`
	Rows      []Row  `json:"rows"`
}

// Controller wires user intents to the syncer and keeps the visible list
// consistent with local writes.
type Controller struct {
	inventory *inventory.Syncer
	search    *search.Search

	mu        sync.Mutex
	modalOpen bool
	itemName  string
}

// New builds a Controller over syncer. Every mirror change reschedules
// filtering.
func New(syncer *inventory.Syncer, opts ...search.Option) *Controller {
	c := &Controller{
		inventory: syncer,
		search:    search.New(syncer.Items, opts...),
	}
	syncer.Subscribe(func([]domain.Item) { c.search.Refresh() })
	return c
}

// Load fetches the whole collection and shows it unfiltered until the
// pending filter settles. The previous view is kept on error.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.inventory.LoadAll(ctx); err != nil {
		return err
	}
	c.search.SetResults(c.inventory.Items())
	return nil
}

// SetQuery updates the search text.
func (c *Controller) SetQuery(q string) { c.search.SetQuery(q) }

// Query returns the current search text.
func (c *Controller) Query() string { return c.search.Query() }

// OpenAddModal shows the add-item dialog.
func (c *Controller) OpenAddModal() {
	c.mu.Lock()
	c.modalOpen = true
	c.mu.Unlock()
}

// CloseAddModal hides the add-item dialog without submitting.
func (c *Controller) CloseAddModal() {
	c.mu.Lock()
	c.modalOpen = false
	c.mu.Unlock()
}

// SetItemName records the pending name typed into the dialog.
func (c *Controller) SetItemName(name string) {
	c.mu.Lock()
	c.itemName = name
	c.mu.Unlock()
}

// SubmitAdd increments the pending name verbatim, then clears it and closes
// the dialog. An empty name only closes the dialog.
func (c *Controller) SubmitAdd(ctx context.Context) {
	c.mu.Lock()
	name := c.itemName
	c.itemName = ""
	c.modalOpen = false
	c.mu.Unlock()
	if name == "" {
		return
	}
	c.Increment(ctx, name)
}

// Increment adds one of name. Store failures leave the view unchanged; the
// syncer has already logged them.
func (c *Controller) Increment(ctx context.Context, name string) {
	change, err := c.inventory.Increment(ctx, name)
	if err != nil {
		return
	}
	c.apply(change)
}

// Decrement removes one of name, dropping the row at zero.
func (c *Controller) Decrement(ctx context.Context, name string) {
	change, err := c.inventory.Decrement(ctx, name)
	if err != nil {
		return
	}
	c.apply(change)
}

func (c *Controller) apply(change inventory.Change) {
	switch {
	case change.Noop:
	case change.Removed:
		c.search.Remove(change.Item.Name)
	default:
		c.search.Upsert(change.Item)
	}
}

// View returns the current render state.
func (c *Controller) View() View {
	results := c.search.Results()
	rows := make([]Row, 0, len(results))
	for _, item := range results {
		rows = append(rows, Row{Name: item.Name, DisplayName: item.DisplayName(), Quantity: item.Quantity})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Query:     c.search.Query(),
		ModalOpen: c.modalOpen,
		ItemName:  c.itemName,
		Rows:      rows,
	}
}

// FilterDelay reports the debounce delay applied to query changes.
func (c *Controller) FilterDelay() time.Duration { return c.search.Delay() }

// Close stops any pending filter recomputation.
func (c *Controller) Close() { c.search.Close() }
