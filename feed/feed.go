// Package feed stores pulse items as a single JSON collection, newest first.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrItemNotFound is returned when no item exists for an id.
var ErrItemNotFound = errors.New("pulse item not found")

const itemsFile = "items.json"

// Item is a notification produced by a pulse whose anchor changed.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	PulseID     string     `json:"pulse_id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	URL         string     `json:"url,omitempty"`
	Seen        bool       `json:"seen"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AnchorValue string     `json:"anchor_value"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	PulseID string
	Unseen  bool
	Limit   int
	Offset  int
}

// Feed is the item collection stored in a directory.
type Feed struct {
	mu         sync.Mutex
	storageDir string
}

// NewFeed creates a feed in storageDir, creating the directory if needed.
func NewFeed(storageDir string) (*Feed, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Feed{storageDir: storageDir}, nil
}

func (f *Feed) path() string {
	return filepath.Join(f.storageDir, itemsFile)
}

// load reads the whole collection. A missing file is an empty feed.
func (f *Feed) load() ([]Item, error) {
	data, err := os.ReadFile(f.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	return items, nil
}

// save rewrites the whole collection through a temp file and rename.
func (f *Feed) save(items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	tmp := f.path() + ".tmp"
	// 0600: owner-only read/write
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write items: %w", err)
	}
	if err := os.Rename(tmp, f.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace items: %w", err)
	}
	return nil
}

// List returns the items matching filter, newest first.
func (f *Feed) List(filter Filter) ([]Item, error) {
	f.mu.Lock()
	items, err := f.load()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if filter.PulseID != "" && item.PulseID != filter.PulseID {
			continue
		}
		if filter.Unseen && item.Seen {
			continue
		}
		out = append(out, item)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Item{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListByPulse returns every item produced by pulseID, newest first.
func (f *Feed) ListByPulse(pulseID string) ([]Item, error) {
	return f.List(Filter{PulseID: pulseID})
}

// Get retrieves an item by id.
func (f *Feed) Get(id uuid.UUID) (*Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, ErrItemNotFound
}

// Exists reports whether an item with the (pulseID, anchorValue) dedup key
// has ever been stored.
func (f *Feed) Exists(pulseID, anchorValue string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.PulseID == pulseID && item.AnchorValue == anchorValue {
			return true, nil
		}
	}
	return false, nil
}

// Add prepends item to the collection.
func (f *Feed) Add(item Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}

	items = append([]Item{item}, items...)
	return f.save(items)
}

// MarkSeen sets the seen flag of the item with id.
func (f *Feed) MarkSeen(id uuid.UUID) (*Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return nil, err
	}

	for i := range items {
		if items[i].ID != id {
			continue
		}
		if !items[i].Seen {
			items[i].Seen = true
			if err := f.save(items); err != nil {
				return nil, err
			}
		}
		item := items[i]
		return &item, nil
	}
	return nil, ErrItemNotFound
}
