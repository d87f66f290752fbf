package sqlite

import (
	"clipboard-history/internal/logging"
	"clipboard-history/internal/storage"
	"clipboard-history/pkg/types"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Connection parameters understood by go-sqlite3. WAL plus a busy timeout
// lets a second handle open the same file while this one writes.
const dsnParams = "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"

type SQLiteStorage struct {
	db       *gorm.DB
	dbPath   string
	mediaDir string
	log      *zap.Logger
	onEvict  storage.EvictionHook

	mu       sync.Mutex // serializes writers
	maxItems int
}

// Option customises New.
type Option func(*SQLiteStorage)

// WithEvictionHook registers a callback invoked after retention removed rows.
func WithEvictionHook(h storage.EvictionHook) Option {
	return func(s *SQLiteStorage) { s.onEvict = h }
}

// New opens (creating if needed) the history database inside config.Dir.
func New(config storage.Config, opts ...Option) (*SQLiteStorage, error) {
	if config.Dir == "" {
		return nil, &storage.StorageError{Op: "open", Err: errors.New("storage directory is required")}
	}

	mediaDir := filepath.Join(config.Dir, storage.MediaDirName)
	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return nil, &storage.StorageError{Op: "open", Err: fmt.Errorf("failed to create storage directory: %w", err)}
	}

	dbPath := filepath.Join(config.Dir, storage.DBFileName)
	db, err := gorm.Open(sqlite.Open(dbPath+dsnParams), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &storage.StorageError{Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}

	// Adds columns missing from databases written by older versions,
	// pinned included; existing rows take the column default.
	if err := db.AutoMigrate(&storage.ItemModel{}, &storage.SettingModel{}); err != nil {
		closeDB(db)
		return nil, &storage.StorageError{Op: "open", Err: fmt.Errorf("failed to migrate schema: %w", err)}
	}

	s := &SQLiteStorage{
		db:       db,
		dbPath:   dbPath,
		mediaDir: mediaDir,
		log:      logging.Named("storage"),
		maxItems: storage.DefaultMaxItems,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadSettings(); err != nil {
		closeDB(db)
		return nil, &storage.StorageError{Op: "open", Err: err}
	}

	var maxID int64
	if err := db.Model(&storage.ItemModel{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		closeDB(db)
		return nil, &storage.StorageError{Op: "open", Err: fmt.Errorf("failed to read max id: %w", err)}
	}
	types.SeedID(maxID)

	// A zero MaxItems keeps the persisted cap
	if config.MaxItems > 0 && config.MaxItems != s.maxItems {
		if err := s.SetMaxItems(context.Background(), config.MaxItems); err != nil {
			closeDB(db)
			return nil, err
		}
	}

	return s, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *SQLiteStorage) loadSettings() error {
	n, ok, err := readMaxItems(s.db)
	if err != nil {
		return err
	}
	if ok {
		s.maxItems = n
	}
	return nil
}

// readMaxItems returns the persisted retention cap. ok is false when no
// valid row exists.
func readMaxItems(db *gorm.DB) (int, bool, error) {
	var setting storage.SettingModel
	res := db.Where("key = ?", storage.SettingMaxItems).Limit(1).Find(&setting)
	if res.Error != nil {
		return 0, false, fmt.Errorf("failed to read settings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	n, err := strconv.Atoi(setting.Value)
	if err != nil || n < 1 {
		logging.Named("storage").Warn("ignoring invalid max_items setting", zap.String("value", setting.Value))
		return 0, false, nil
	}
	return n, true, nil
}

// currentLimit reads the cap inside tx so that a change made through
// another handle on the same file is honoured.
func (s *SQLiteStorage) currentLimit(tx *gorm.DB) (int, error) {
	n, ok, err := readMaxItems(tx)
	if err != nil {
		return 0, err
	}
	if ok {
		s.maxItems = n
	}
	return s.maxItems, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// MediaDir returns the directory owned by the store for captured payload files.
func (s *SQLiteStorage) MediaDir() string {
	return s.mediaDir
}

// AddItem implements storage.Storage interface
func (s *SQLiteStorage) AddItem(ctx context.Context, item *types.Item) error {
	if item == nil {
		return &types.ValidationError{Field: "item", Reason: "nil"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []storage.ItemModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(storage.FromItem(item)).Error; err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		limit, err := s.currentLimit(tx)
		if err != nil {
			return err
		}
		evicted, err = enforceLimit(tx, limit)
		return err
	})
	if err != nil {
		return &storage.StorageError{Op: "add_item", Err: err}
	}

	s.afterEvict(evicted)
	return nil
}

// enforceLimit removes the oldest non-pinned rows until the row count is
// within max or only pinned rows are left. It returns the removed rows.
func enforceLimit(tx *gorm.DB, max int) ([]storage.ItemModel, error) {
	var count int64
	if err := tx.Model(&storage.ItemModel{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	excess := count - int64(max)
	if excess <= 0 {
		return nil, nil
	}

	var victims []storage.ItemModel
	if err := tx.Where("pinned = ?", false).
		Order("timestamp ASC, id ASC").
		Limit(int(excess)).
		Find(&victims).Error; err != nil {
		return nil, fmt.Errorf("failed to select items to evict: %w", err)
	}
	if len(victims) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(victims))
	for i, v := range victims {
		ids[i] = v.ID
	}
	if err := tx.Delete(&storage.ItemModel{}, ids).Error; err != nil {
		return nil, fmt.Errorf("failed to evict items: %w", err)
	}
	return victims, nil
}

func (s *SQLiteStorage) afterEvict(evicted []storage.ItemModel) {
	if len(evicted) == 0 {
		return
	}
	s.removeMedia(evicted)
	s.log.Debug("evicted items", zap.Int("count", len(evicted)))
	if s.onEvict != nil {
		s.onEvict(int64(len(evicted)))
	}
}

// GetItems implements storage.Storage interface
func (s *SQLiteStorage) GetItems(ctx context.Context, limit, offset int) ([]*types.Item, error) {
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var models []storage.ItemModel
	if err := s.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, &storage.StorageError{Op: "get_items", Err: err}
	}
	return toItems(models), nil
}

// GetItem implements storage.Storage interface
func (s *SQLiteStorage) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	var model storage.ItemModel
	if err := s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, &storage.StorageError{Op: "get_item", Err: err}
	}
	return model.ToItem(), nil
}

// DeleteItem implements storage.Storage interface
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []storage.ItemModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Limit(1).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Delete(&storage.ItemModel{}, id).Error
	})
	if err != nil {
		return &storage.StorageError{Op: "delete_item", Err: err}
	}

	s.removeMedia(removed)
	return nil
}

// ClearHistory implements storage.Storage interface
func (s *SQLiteStorage) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var media []storage.ItemModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("content_type IN ?", []types.ContentType{types.TypeImage, types.TypeVideo}).
			Find(&media).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&storage.ItemModel{}).Error
	})
	if err != nil {
		return &storage.StorageError{Op: "clear_history", Err: err}
	}

	s.removeMedia(media)
	return nil
}

// TogglePinItem implements storage.Storage interface
func (s *SQLiteStorage) TogglePinItem(ctx context.Context, id int64, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).
		Model(&storage.ItemModel{}).
		Where("id = ?", id).
		Update("pinned", pinned).Error; err != nil {
		return &storage.StorageError{Op: "toggle_pin_item", Err: err}
	}
	return nil
}

// SetMaxItems implements storage.Storage interface
func (s *SQLiteStorage) SetMaxItems(ctx context.Context, n int) error {
	if n < 1 {
		return &types.ValidationError{Field: storage.SettingMaxItems, Reason: storage.ErrInvalidMaxItems.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []storage.ItemModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting := storage.SettingModel{Key: storage.SettingMaxItems, Value: strconv.Itoa(n)}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to save setting: %w", err)
		}
		var err error
		evicted, err = enforceLimit(tx, n)
		return err
	})
	if err != nil {
		return &storage.StorageError{Op: "set_max_items", Err: err}
	}

	s.maxItems = n
	s.afterEvict(evicted)
	return nil
}

// MaxItems implements storage.Storage interface
func (s *SQLiteStorage) MaxItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.currentLimit(s.db)
	if err != nil {
		s.log.Warn("failed to read max_items, using cached value", zap.Error(err))
		return s.maxItems
	}
	return n
}

// GetStorageInfo implements storage.Storage interface
func (s *SQLiteStorage) GetStorageInfo(ctx context.Context) (*storage.Info, error) {
	info := &storage.Info{TypeDistribution: make(map[string]int64)}
	db := s.db.WithContext(ctx)

	if err := db.Model(&storage.ItemModel{}).Count(&info.ItemCount).Error; err != nil {
		return nil, &storage.StorageError{Op: "get_storage_info", Err: err}
	}
	if err := db.Model(&storage.ItemModel{}).
		Select("COALESCE(SUM(size), 0)").
		Where("size IS NOT NULL").
		Scan(&info.TotalSize).Error; err != nil {
		return nil, &storage.StorageError{Op: "get_storage_info", Err: err}
	}

	var rows []struct {
		ContentType string
		Count       int64
	}
	if err := db.Model(&storage.ItemModel{}).
		Select("content_type, COUNT(*) AS count").
		Group("content_type").
		Scan(&rows).Error; err != nil {
		return nil, &storage.StorageError{Op: "get_storage_info", Err: err}
	}
	for _, r := range rows {
		info.TypeDistribution[r.ContentType] = r.Count
	}

	for _, p := range []string{s.dbPath, s.dbPath + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			info.DBSize += fi.Size()
		}
	}
	return info, nil
}

// Close implements storage.Storage interface
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// removeMedia deletes payload files of removed items, but only files that
// live inside the media directory.
func (s *SQLiteStorage) removeMedia(models []storage.ItemModel) {
	for _, m := range models {
		if !m.ContentType.IsPath() || !s.ownsPath(m.Content) {
			continue
		}
		if err := os.Remove(m.Content); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove media file", zap.String("path", m.Content), zap.Error(err))
		}
	}
}

func (s *SQLiteStorage) ownsPath(p string) bool {
	if !filepath.IsAbs(p) {
		return false
	}
	rel, err := filepath.Rel(s.mediaDir, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func toItems(models []storage.ItemModel) []*types.Item {
	items := make([]*types.Item, len(models))
	for i := range models {
		items[i] = models[i].ToItem()
	}
	return items
}
