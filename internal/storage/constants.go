package storage

import (
	"errors"
	"fmt"
)

const (
	// DBFileName is the SQLite file created inside the storage directory
	DBFileName = "clipboard_history.db"

	// MediaDirName holds payloads materialized by image/video capture
	MediaDirName = "media"

	// DefaultMaxItems is the retention cap used until one is configured
	DefaultMaxItems = 100

	// DefaultPageSize is the GetItems limit when the caller passes 0
	DefaultPageSize = 50

	// SettingMaxItems is the settings table key holding the retention cap
	SettingMaxItems = "max_items"
)

// Storage errors
var (
	ErrNotFound        = errors.New("item not found")
	ErrInvalidMaxItems = errors.New("max items must be at least 1")
)

// StorageError wraps a failure of the backing store. Callers see it
// unmodified; the engine never retries.
type StorageError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
