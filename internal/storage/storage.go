package storage

import (
	"clipboard-history/pkg/types"
	"context"
)

// Storage defines the interface for clipboard history persistence
type Storage interface {
	// AddItem inserts the item and enforces retention in one transaction
	AddItem(ctx context.Context, item *types.Item) error

	// GetItems returns items newest first
	GetItems(ctx context.Context, limit, offset int) ([]*types.Item, error)

	// GetItem retrieves a single item, ErrNotFound if absent
	GetItem(ctx context.Context, id int64) (*types.Item, error)

	// DeleteItem removes one item; deleting a missing id is a no-op
	DeleteItem(ctx context.Context, id int64) error

	// ClearHistory removes every item, pinned or not
	ClearHistory(ctx context.Context) error

	// TogglePinItem sets the pin flag; a missing id is a no-op
	TogglePinItem(ctx context.Context, id int64, pinned bool) error

	// SetMaxItems persists a new retention cap and re-applies eviction
	SetMaxItems(ctx context.Context, n int) error

	// MaxItems returns the current retention cap
	MaxItems() int

	// GetStorageInfo returns aggregate statistics
	GetStorageInfo(ctx context.Context) (*Info, error)

	// Close releases the underlying database
	Close() error
}

// Info holds storage usage statistics
type Info struct {
	ItemCount        int64            `json:"item_count"`
	TotalSize        int64            `json:"total_size"`
	TypeDistribution map[string]int64 `json:"type_distribution"`
	DBSize           int64            `json:"db_size"`
}

// Config holds storage configuration
type Config struct {
	Dir      string // Directory holding the database and media files
	MaxItems int    // Retention cap; 0 keeps the persisted or default value
}

// EvictionHook is notified with the number of rows removed by retention
type EvictionHook func(n int64)
