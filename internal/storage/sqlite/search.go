package sqlite

import (
	"clipboard-history/internal/storage"
	"clipboard-history/pkg/types"
	"context"
	"strings"
	"time"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search implements storage.SearchService interface
func (s *SQLiteStorage) Search(ctx context.Context, opts storage.SearchOptions) ([]*types.Item, error) {
	query := s.db.WithContext(ctx).Model(&storage.ItemModel{})

	// Only text content is searchable; other kinds hold paths or URLs
	if opts.Query != "" {
		term := "%" + likeEscaper.Replace(strings.ToLower(opts.Query)) + "%"
		query = query.Where("content_type = ? AND LOWER(content) LIKE ? ESCAPE '\\'", types.TypeText, term)
	}

	if opts.Type != 0 {
		query = query.Where("content_type = ?", opts.Type)
	}
	if opts.PinnedOnly {
		query = query.Where("pinned = ?", true)
	}

	if !opts.From.IsZero() {
		query = query.Where("timestamp >= ?", unixSeconds(opts.From))
	}
	if !opts.To.IsZero() {
		query = query.Where("timestamp <= ?", unixSeconds(opts.To))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	query = query.Order("timestamp DESC, id DESC").Limit(limit)
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var models []storage.ItemModel
	if err := query.Find(&models).Error; err != nil {
		return nil, &storage.StorageError{Op: "search", Err: err}
	}
	return toItems(models), nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
