package storage

import (
	"clipboard-history/pkg/types"
	"context"
	"time"
)

// SearchOptions defines criteria for searching items
type SearchOptions struct {
	// Case-insensitive substring of text content
	Query string

	// Filter by content type; zero means any
	Type types.ContentType

	// Only pinned items
	PinnedOnly bool

	// Time range, inclusive; zero values are open
	From time.Time
	To   time.Time

	// Pagination
	Limit  int
	Offset int
}

// SearchService is implemented by stores that can filter on the database side
type SearchService interface {
	// Search returns items matching opts, newest first
	Search(ctx context.Context, opts SearchOptions) ([]*types.Item, error)
}
