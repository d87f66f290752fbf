package types

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// ContentType is the closed set of clipboard payload kinds.
type ContentType uint8

const (
	TypeText ContentType = iota + 1
	TypeImage
	TypeFile
	TypeURL
	TypeVideo
)

// ContentTypes lists every supported kind in declaration order.
var ContentTypes = []ContentType{TypeText, TypeImage, TypeFile, TypeURL, TypeVideo}

var contentTypeNames = map[ContentType]string{
	TypeText:  "text",
	TypeImage: "image",
	TypeFile:  "file",
	TypeURL:   "url",
	TypeVideo: "video",
}

// ParseContentType maps the storage name of a content type back to its value.
func ParseContentType(s string) (ContentType, error) {
	for ct, name := range contentTypeNames {
		if name == s {
			return ct, nil
		}
	}
	return 0, &ValidationError{Field: "content_type", Reason: fmt.Sprintf("unsupported content type %q", s)}
}

func (ct ContentType) String() string {
	if name, ok := contentTypeNames[ct]; ok {
		return name
	}
	return fmt.Sprintf("ContentType(%d)", uint8(ct))
}

// Valid reports whether ct is one of the supported kinds.
func (ct ContentType) Valid() bool {
	_, ok := contentTypeNames[ct]
	return ok
}

// IsPath reports whether the content of this kind is a filesystem path.
func (ct ContentType) IsPath() bool {
	switch ct {
	case TypeImage, TypeFile, TypeVideo:
		return true
	case TypeText, TypeURL:
		return false
	}
	return false
}

func (ct ContentType) MarshalText() ([]byte, error) {
	if !ct.Valid() {
		return nil, &ValidationError{Field: "content_type", Reason: "unsupported content type"}
	}
	return []byte(ct.String()), nil
}

func (ct *ContentType) UnmarshalText(b []byte) error {
	parsed, err := ParseContentType(string(b))
	if err != nil {
		return err
	}
	*ct = parsed
	return nil
}

// Value stores the content type as its name.
func (ct ContentType) Value() (driver.Value, error) {
	if !ct.Valid() {
		return nil, &ValidationError{Field: "content_type", Reason: "unsupported content type"}
	}
	return ct.String(), nil
}

// Scan reads a content type stored by Value.
func (ct *ContentType) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return ct.UnmarshalText([]byte(v))
	case []byte:
		return ct.UnmarshalText(v)
	case nil:
		return &ValidationError{Field: "content_type", Reason: "missing"}
	default:
		return fmt.Errorf("cannot scan %T into ContentType", src)
	}
}

// ValidationError reports a malformed item.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Item is one captured clipboard snapshot. Everything except Pinned is
// fixed once the item has been created.
type Item struct {
	ID          int64       `json:"id"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
	Timestamp   float64     `json:"timestamp"`
	Preview     string      `json:"preview"`
	Size        *int64      `json:"size"`
	Pinned      bool        `json:"pinned"`
}

// ItemOption customises NewItem.
type ItemOption func(*Item)

// WithTimestamp overrides the capture time (seconds since epoch).
func WithTimestamp(ts float64) ItemOption { return func(i *Item) { i.Timestamp = ts } }

// WithPreview sets the list preview.
func WithPreview(p string) ItemOption { return func(i *Item) { i.Preview = p } }

// WithSize sets the payload size in bytes.
func WithSize(n int64) ItemOption { return func(i *Item) { i.Size = &n } }

// WithPinned sets the initial pin flag.
func WithPinned(p bool) ItemOption { return func(i *Item) { i.Pinned = p } }

// NewItem creates an item with a fresh id.
func NewItem(ct ContentType, content string, opts ...ItemOption) (*Item, error) {
	if !ct.Valid() {
		return nil, &ValidationError{Field: "content_type", Reason: fmt.Sprintf("unsupported content type %d", uint8(ct))}
	}
	if content == "" || (ct == TypeText && strings.TrimSpace(content) == "") {
		return nil, &ValidationError{Field: "content", Reason: "empty content"}
	}

	now := time.Now()
	item := &Item{
		ID:          NextID(now),
		ContentType: ct,
		Content:     content,
		Timestamp:   float64(now.UnixNano()) / float64(time.Second),
	}
	for _, opt := range opts {
		opt(item)
	}
	return item, nil
}

var lastID atomic.Int64

// NextID returns a millisecond-resolution id derived from now that is
// strictly greater than every id issued or seeded before it.
func NextID(now time.Time) int64 {
	ms := now.UnixMilli()
	for {
		prev := lastID.Load()
		id := ms
		if id <= prev {
			id = prev + 1
		}
		if lastID.CompareAndSwap(prev, id) {
			return id
		}
	}
}

// SeedID makes sure future ids are greater than id. Stores call it with
// their largest persisted id when opened.
func SeedID(id int64) {
	for {
		prev := lastID.Load()
		if id <= prev || lastID.CompareAndSwap(prev, id) {
			return
		}
	}
}

// Time returns the capture time.
func (i *Item) Time() time.Time {
	sec := int64(i.Timestamp)
	nsec := int64((i.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
