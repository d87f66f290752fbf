package service

import (
	"clipboard-history/internal/clipboard"
	"clipboard-history/internal/logging"
	"clipboard-history/internal/metrics"
	"clipboard-history/internal/storage"
	"clipboard-history/pkg/types"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
)

const (
	// candidateLimit bounds how many rows a search or filter pulls from the store
	candidateLimit = 5000

	eventBuffer = 256
)

// ClipboardError describes a failed service operation
type ClipboardError struct {
	Op      string // Operation that failed
	ID      int64  // Item involved (if applicable)
	Message string // Error message
	Err     error  // Underlying error
}

func (e *ClipboardError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	if e.ID != 0 {
		msg = fmt.Sprintf("%s failed for item %d: %s", e.Op, e.ID, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}

// Monitor is the clipboard side of the service
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	OnItemAdded(handler clipboard.ItemHandler)
	WriteText(text string) error
}

// ClipboardService ties the clipboard monitor to the history store
type ClipboardService struct {
	monitor  Monitor
	store    storage.Storage
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	handlers []ItemAddedHandler
	events   chan *types.Item
	mu       sync.RWMutex
	started  bool
}

// New creates a new ClipboardService
func New(monitor Monitor, store storage.Storage) *ClipboardService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ClipboardService{
		monitor: monitor,
		store:   store,
		log:     logging.Named("service"),
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan *types.Item, eventBuffer),
	}
	s.wg.Add(1)
	go s.deliver()
	monitor.OnItemAdded(s.dispatch)
	return s
}

// RegisterHandler adds a new item-added handler
func (s *ClipboardService) RegisterHandler(handler ItemAddedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// dispatch queues item for the delivery goroutine so handlers see items in
// capture order.
func (s *ClipboardService) dispatch(item *types.Item) {
	select {
	case s.events <- item:
	case <-s.ctx.Done():
	}
}

func (s *ClipboardService) deliver() {
	defer s.wg.Done()
	for {
		select {
		case item := <-s.events:
			s.notify(item)
		case <-s.ctx.Done():
			// Flush what was queued before the stop
			for {
				select {
				case item := <-s.events:
					s.notify(item)
				default:
					return
				}
			}
		}
	}
}

func (s *ClipboardService) notify(item *types.Item) {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h.HandleItemAdded(item)
	}
}

// Start begins monitoring the clipboard
func (s *ClipboardService) Start() error {
	if err := s.monitor.Start(s.ctx); err != nil {
		return &ClipboardError{
			Op:      "Start",
			Message: "failed to start clipboard monitor",
			Err:     err,
		}
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Stop gracefully shuts down the service
func (s *ClipboardService) Stop() error {
	s.cancel()

	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if started {
		if err := s.monitor.Stop(); err != nil {
			return &ClipboardError{
				Op:      "Stop",
				Message: "failed to stop clipboard monitor",
				Err:     err,
			}
		}
	}

	s.wg.Wait()
	return nil
}

// Items returns a page of history, newest first
func (s *ClipboardService) Items(ctx context.Context, limit, offset int) ([]*types.Item, error) {
	items, err := s.store.GetItems(ctx, limit, offset)
	if err != nil {
		return nil, &ClipboardError{Op: "Items", Message: "failed to list items", Err: err}
	}
	return items, nil
}

// Item returns a single item
func (s *ClipboardService) Item(ctx context.Context, id int64) (*types.Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, &ClipboardError{Op: "Item", ID: id, Message: "failed to get item", Err: err}
	}
	return item, nil
}

// Delete removes one item
func (s *ClipboardService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return &ClipboardError{Op: "Delete", ID: id, Message: "failed to delete item", Err: err}
	}
	return nil
}

// Clear removes the whole history, pinned items included
func (s *ClipboardService) Clear(ctx context.Context) error {
	if err := s.store.ClearHistory(ctx); err != nil {
		return &ClipboardError{Op: "Clear", Message: "failed to clear history", Err: err}
	}
	s.log.Info("history cleared")
	return nil
}

// SetPinned pins or unpins an item
func (s *ClipboardService) SetPinned(ctx context.Context, id int64, pinned bool) error {
	if err := s.store.TogglePinItem(ctx, id, pinned); err != nil {
		return &ClipboardError{Op: "SetPinned", ID: id, Message: "failed to update pin", Err: err}
	}
	return nil
}

// MaxItems returns the retention cap
func (s *ClipboardService) MaxItems() int {
	return s.store.MaxItems()
}

// SetMaxItems changes the retention cap and evicts any excess
func (s *ClipboardService) SetMaxItems(ctx context.Context, n int) error {
	if err := s.store.SetMaxItems(ctx, n); err != nil {
		return &ClipboardError{Op: "SetMaxItems", Message: fmt.Sprintf("failed to set max items to %d", n), Err: err}
	}
	s.log.Info("retention cap updated", zap.Int("max_items", n))
	return nil
}

// StorageInfo returns storage statistics and publishes them as metrics
func (s *ClipboardService) StorageInfo(ctx context.Context) (*storage.Info, error) {
	info, err := s.store.GetStorageInfo(ctx)
	if err != nil {
		return nil, &ClipboardError{Op: "StorageInfo", Message: "failed to read storage info", Err: err}
	}
	metrics.SetStorageStats(info.ItemCount, info.DBSize)
	return info, nil
}

// Search ranks text items against query with fuzzy matching. An empty
// query returns the newest items.
func (s *ClipboardService) Search(ctx context.Context, query string, limit int) ([]*types.Item, error) {
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Items(ctx, limit, 0)
	}

	candidates, err := s.find(ctx, storage.SearchOptions{Type: types.TypeText, Limit: candidateLimit})
	if err != nil {
		return nil, &ClipboardError{Op: "Search", Message: "failed to load candidates", Err: err}
	}

	targets := make([]string, len(candidates))
	for i, item := range candidates {
		targets[i] = item.Content
	}

	matches := fuzzy.Find(query, targets)
	results := make([]*types.Item, 0, min(len(matches), limit))
	for _, m := range matches {
		if len(results) == limit {
			break
		}
		results = append(results, candidates[m.Index])
	}
	return results, nil
}

// FilterByDays returns items captured within the last days days
func (s *ClipboardService) FilterByDays(ctx context.Context, days int) ([]*types.Item, error) {
	if days < 1 {
		return nil, &ClipboardError{Op: "FilterByDays", Message: fmt.Sprintf("days must be at least 1, got %d", days)}
	}
	from := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	items, err := s.find(ctx, storage.SearchOptions{From: from, Limit: candidateLimit})
	if err != nil {
		return nil, &ClipboardError{Op: "FilterByDays", Message: "failed to filter items", Err: err}
	}
	return items, nil
}

// FilterByDate returns items captured on the calendar day of date, in date's location
func (s *ClipboardService) FilterByDate(ctx context.Context, date time.Time) ([]*types.Item, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	items, err := s.find(ctx, storage.SearchOptions{From: start, To: end, Limit: candidateLimit})
	if err != nil {
		return nil, &ClipboardError{Op: "FilterByDate", Message: "failed to filter items", Err: err}
	}
	return items, nil
}

func (s *ClipboardService) find(ctx context.Context, opts storage.SearchOptions) ([]*types.Item, error) {
	searcher, ok := s.store.(storage.SearchService)
	if !ok {
		return nil, errors.New("storage does not implement search")
	}
	return searcher.Search(ctx, opts)
}

// Copy puts an item's content back on the clipboard. The monitor ignores
// the resulting change so the item is not recorded twice.
func (s *ClipboardService) Copy(ctx context.Context, id int64) error {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return &ClipboardError{Op: "Copy", ID: id, Message: "failed to get item", Err: err}
	}
	if item.ContentType == types.TypeImage || item.ContentType == types.TypeVideo {
		return &ClipboardError{Op: "Copy", ID: id, Message: fmt.Sprintf("%s items cannot be copied as text", item.ContentType)}
	}

	if err := s.monitor.WriteText(item.Content); err != nil {
		return &ClipboardError{Op: "Copy", ID: id, Message: "failed to set clipboard content", Err: err}
	}
	s.log.Debug("copied item to clipboard", zap.Int64("id", id), zap.Stringer("kind", item.ContentType))
	return nil
}
