package sqlite

import (
	"clipboard-history/internal/storage"
	"clipboard-history/pkg/types"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T, maxItems int) (*SQLiteStorage, string, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "clipboard-history-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store, err := New(storage.Config{Dir: tempDir, MaxItems: maxItems})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create storage: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tempDir)
	}
	return store, tempDir, cleanup
}

func addText(t *testing.T, store *SQLiteStorage, content string, ts float64) *types.Item {
	t.Helper()
	item, err := types.NewItem(types.TypeText, content,
		types.WithTimestamp(ts),
		types.WithPreview(content),
		types.WithSize(int64(len(content))),
	)
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	if err := store.AddItem(context.Background(), item); err != nil {
		t.Fatalf("failed to add item %q: %v", content, err)
	}
	return item
}

func contents(items []*types.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Content
	}
	return out
}

func equalStrings(a, b []string) bool {
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

func TestStore_BasicOperations(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	if got := store.MaxItems(); got != storage.DefaultMaxItems {
		t.Errorf("default max items: got %d, want %d", got, storage.DefaultMaxItems)
	}

	item := addText(t, store, "test content", 10)

	retrieved, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if retrieved.Content != item.Content || retrieved.ID != item.ID || *retrieved.Size != *item.Size {
		t.Errorf("item mismatch: got %+v, want %+v", retrieved, item)
	}

	items, err := store.GetItems(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}

	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("failed to delete item: %v", err)
	}
	if _, err := store.GetItem(ctx, item.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Missing ids are a no-op
	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Errorf("deleting missing item should be a no-op, got %v", err)
	}
	if err := store.TogglePinItem(ctx, 424242, true); err != nil {
		t.Errorf("pinning missing item should be a no-op, got %v", err)
	}
}

func TestStore_DuplicateIDFails(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()

	item := addText(t, store, "once", 1)
	err := store.AddItem(context.Background(), item)
	var serr *storage.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if serr.Op != "add_item" {
		t.Errorf("op: got %q, want add_item", serr.Op)
	}
}

func TestStore_Ordering(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	addText(t, store, "b", 2)
	addText(t, store, "c", 3)
	addText(t, store, "a", 1)

	items, err := store.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"c", "b", "a"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	page, err := store.GetItems(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if got, want := contents(page), []string{"b"}; !equalStrings(got, want) {
		t.Errorf("page: got %v, want %v", got, want)
	}
}

func TestStore_Retention(t *testing.T) {
	const n = 10
	store, _, cleanup := setupTestDB(t, n)
	defer cleanup()

	var evicted int64
	store.onEvict = func(k int64) { evicted += k }

	for i := 1; i <= n+5; i++ {
		addText(t, store, fmt.Sprintf("item-%02d", i), float64(i))
	}

	items, err := store.GetItems(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != n {
		t.Fatalf("expected %d items, got %d", n, len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("item-%02d", n+5-i)
		if item.Content != want {
			t.Errorf("position %d: got %q, want %q", i, item.Content, want)
		}
	}
	if evicted != 5 {
		t.Errorf("eviction hook: got %d, want 5", evicted)
	}
}

func TestStore_PinExemption(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 3)
	defer cleanup()
	ctx := context.Background()

	oldest := addText(t, store, "oldest", 1)
	addText(t, store, "two", 2)
	addText(t, store, "three", 3)

	if err := store.TogglePinItem(ctx, oldest.ID, true); err != nil {
		t.Fatalf("failed to pin: %v", err)
	}

	for i := 4; i <= 8; i++ {
		addText(t, store, fmt.Sprintf("new-%d", i), float64(i))
	}

	pinned, err := store.GetItem(ctx, oldest.ID)
	if err != nil {
		t.Fatalf("pinned item was evicted: %v", err)
	}
	if !pinned.Pinned {
		t.Error("item should still be pinned")
	}

	items, err := store.GetItems(ctx, 100, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"new-8", "new-7", "oldest"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStore_PinnedMayExceedLimit(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 10)
	defer cleanup()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		item := addText(t, store, fmt.Sprintf("pinned-%d", i), float64(i))
		if err := store.TogglePinItem(ctx, item.ID, true); err != nil {
			t.Fatalf("failed to pin: %v", err)
		}
	}

	if err := store.SetMaxItems(ctx, 3); err != nil {
		t.Fatalf("failed to set max items: %v", err)
	}
	info, err := store.GetStorageInfo(ctx)
	if err != nil {
		t.Fatalf("failed to get info: %v", err)
	}
	if info.ItemCount != 5 {
		t.Errorf("pinned items must survive a lower cap: got %d items, want 5", info.ItemCount)
	}

	// A new unpinned item is itself the oldest evictable row
	addText(t, store, "fresh", 6)
	items, err := store.GetItems(ctx, 100, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("expected 5 items, got %v", contents(items))
	}
}

func TestStore_EndToEnd(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 3)
	defer cleanup()

	for i, text := range []string{"one", "two", "three", "four"} {
		addText(t, store, text, float64(i+1))
	}

	items, err := store.GetItems(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"four", "three", "two"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStore_SetMaxItems(t *testing.T) {
	store, dir, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		addText(t, store, fmt.Sprintf("%d", i), float64(i))
	}
	if err := store.SetMaxItems(ctx, 4); err != nil {
		t.Fatalf("failed to set max items: %v", err)
	}

	items, err := store.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"10", "9", "8", "7"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	var verr *types.ValidationError
	if err := store.SetMaxItems(ctx, 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for 0, got %v", err)
	}

	// The cap is persisted in the settings table
	store.Close()
	reopened, err := New(storage.Config{Dir: dir})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.MaxItems(); got != 4 {
		t.Errorf("persisted max items: got %d, want 4", got)
	}
}

func TestStore_ClearHistory(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	item := addText(t, store, "pinned", 1)
	addText(t, store, "plain", 2)
	if err := store.TogglePinItem(ctx, item.ID, true); err != nil {
		t.Fatalf("failed to pin: %v", err)
	}

	if err := store.ClearHistory(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	items, err := store.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty history, got %v", contents(items))
	}
}

func TestStore_TogglePinKeepsOrder(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	first := addText(t, store, "first", 1)
	addText(t, store, "second", 2)

	if err := store.TogglePinItem(ctx, first.ID, true); err != nil {
		t.Fatalf("failed to pin: %v", err)
	}
	items, err := store.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"second", "first"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if items[1].Timestamp != 1 || !items[1].Pinned {
		t.Errorf("pin changed timestamp or did not stick: %+v", items[1])
	}

	if err := store.TogglePinItem(ctx, first.ID, false); err != nil {
		t.Fatalf("failed to unpin: %v", err)
	}
	got, err := store.GetItem(ctx, first.ID)
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if got.Pinned {
		t.Error("item should be unpinned")
	}
}

func TestStore_StorageInfo(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	addText(t, store, "hello", 1) // 5 bytes
	addText(t, store, "world!", 2) // 6 bytes
	url, err := types.NewItem(types.TypeURL, "https://example.com", types.WithTimestamp(3))
	if err != nil {
		t.Fatalf("failed to create url item: %v", err)
	}
	if err := store.AddItem(ctx, url); err != nil {
		t.Fatalf("failed to add url item: %v", err)
	}

	info, err := store.GetStorageInfo(ctx)
	if err != nil {
		t.Fatalf("failed to get storage info: %v", err)
	}
	if info.ItemCount != 3 {
		t.Errorf("item count: got %d, want 3", info.ItemCount)
	}
	if info.TotalSize != 11 {
		t.Errorf("total size: got %d, want 11", info.TotalSize)
	}
	if info.TypeDistribution["text"] != 2 || info.TypeDistribution["url"] != 1 {
		t.Errorf("type distribution: got %v", info.TypeDistribution)
	}
	if info.DBSize <= 0 {
		t.Errorf("db size should be positive, got %d", info.DBSize)
	}
}

func TestStore_LegacySchema(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "clipboard-history-legacy-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Layout written by the first release: no pinned column
	legacy, err := gorm.Open(sqlite.Open(filepath.Join(tempDir, storage.DBFileName)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open legacy db: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE clipboard_items (
			id INTEGER PRIMARY KEY,
			content_type TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp REAL NOT NULL,
			preview TEXT,
			size INTEGER
		)`,
		`CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`INSERT INTO clipboard_items (id, content_type, content, timestamp, preview, size) VALUES (1000, 'text', 'legacy', 100.5, NULL, NULL)`,
		`INSERT INTO settings (key, value) VALUES ('max_items', '20')`,
	} {
		if err := legacy.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to prepare legacy db: %v", err)
		}
	}
	closeDB(legacy)

	store, err := New(storage.Config{Dir: tempDir})
	if err != nil {
		t.Fatalf("failed to open legacy store: %v", err)
	}
	defer store.Close()

	items, err := store.GetItems(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.Pinned || got.Size != nil || got.Preview != "" || got.Content != "legacy" || got.Timestamp != 100.5 {
		t.Errorf("unexpected legacy item: %+v", got)
	}
	if store.MaxItems() != 20 {
		t.Errorf("max items: got %d, want 20", store.MaxItems())
	}

	// New ids must not collide with legacy ones
	fresh := addText(t, store, "fresh", 200)
	if fresh.ID <= 1000 {
		t.Errorf("fresh id %d should be above legacy id", fresh.ID)
	}
}

func TestStore_SecondHandle(t *testing.T) {
	store, dir, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	second, err := New(storage.Config{Dir: dir})
	if err != nil {
		t.Fatalf("failed to open second handle: %v", err)
	}
	defer second.Close()

	addText(t, store, "from first", 1)
	item, err := types.NewItem(types.TypeText, "from second", types.WithTimestamp(2))
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	if err := second.AddItem(ctx, item); err != nil {
		t.Fatalf("second handle failed to write: %v", err)
	}

	items, err := store.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"from second", "from first"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A cap lowered through one handle governs writes through the other
	if err := second.SetMaxItems(ctx, 2); err != nil {
		t.Fatalf("failed to set max items: %v", err)
	}
	if got := store.MaxItems(); got != 2 {
		t.Errorf("first handle MaxItems: got %d, want 2", got)
	}
	for i := 3; i <= 7; i++ {
		addText(t, store, fmt.Sprintf("late %d", i), float64(i))
	}

	items, err = second.GetItems(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if got, want := contents(items), []string{"late 7", "late 6"}; !equalStrings(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStore_ReopenKeepsPersistedCap(t *testing.T) {
	store, dir, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetMaxItems(ctx, 200); err != nil {
		t.Fatalf("failed to set max items: %v", err)
	}
	for i := 1; i <= 150; i++ {
		addText(t, store, fmt.Sprintf("%d", i), float64(i))
	}
	store.Close()

	// No configured cap: the saved one must survive and nothing is evicted
	reopened, err := New(storage.Config{Dir: dir})
	if err != nil {
		t.Fatalf("failed to reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.MaxItems(); got != 200 {
		t.Errorf("MaxItems after reopen: got %d, want 200", got)
	}
	info, err := reopened.GetStorageInfo(ctx)
	if err != nil {
		t.Fatalf("failed to read info: %v", err)
	}
	if info.ItemCount != 150 {
		t.Errorf("item count after reopen: got %d, want 150", info.ItemCount)
	}
}

func TestStore_MediaCleanup(t *testing.T) {
	store, dir, cleanup := setupTestDB(t, 1)
	defer cleanup()
	ctx := context.Background()

	owned := filepath.Join(store.MediaDir(), "clip.png")
	outside := filepath.Join(dir, "user-file.txt")
	for _, p := range []string{owned, outside} {
		if err := os.WriteFile(p, []byte("data"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}

	image, err := types.NewItem(types.TypeImage, owned, types.WithTimestamp(1))
	if err != nil {
		t.Fatalf("failed to create image item: %v", err)
	}
	if err := store.AddItem(ctx, image); err != nil {
		t.Fatalf("failed to add image: %v", err)
	}
	addText(t, store, "evicts the image", 2)

	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Errorf("evicted media file should be removed, stat err: %v", err)
	}

	file, err := types.NewItem(types.TypeFile, outside, types.WithTimestamp(3))
	if err != nil {
		t.Fatalf("failed to create file item: %v", err)
	}
	if err := store.AddItem(ctx, file); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	if err := store.DeleteItem(ctx, file.ID); err != nil {
		t.Fatalf("failed to delete file item: %v", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("files outside the media directory must be kept: %v", err)
	}
}

func TestStore_Search(t *testing.T) {
	store, _, cleanup := setupTestDB(t, 0)
	defer cleanup()
	ctx := context.Background()

	addText(t, store, "Hello World", 100)
	pinned := addText(t, store, "hello again", 200)
	addText(t, store, "100% done", 300)
	addText(t, store, "unrelated", 400)
	if err := store.TogglePinItem(ctx, pinned.ID, true); err != nil {
		t.Fatalf("failed to pin: %v", err)
	}

	tests := []struct {
		name string
		opts storage.SearchOptions
		want []string
	}{
		{"case insensitive", storage.SearchOptions{Query: "HELLO"}, []string{"hello again", "Hello World"}},
		{"literal percent", storage.SearchOptions{Query: "0%"}, []string{"100% done"}},
		{"pinned only", storage.SearchOptions{PinnedOnly: true}, []string{"hello again"}},
		{"type filter", storage.SearchOptions{Type: types.TypeURL}, []string{}},
		{"time range", storage.SearchOptions{From: timeAt(150), To: timeAt(300)}, []string{"100% done", "hello again"}},
		{"limit", storage.SearchOptions{Limit: 1}, []string{"unrelated"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := store.Search(ctx, tt.opts)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if got := contents(items); !equalStrings(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
