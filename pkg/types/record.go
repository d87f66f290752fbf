package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Record is the flat key-value form of an Item. Field names are part of the
// storage contract.
type Record map[string]any

const (
	FieldID          = "id"
	FieldContentType = "content_type"
	FieldContent     = "content"
	FieldTimestamp   = "timestamp"
	FieldPreview     = "preview"
	FieldSize        = "size"
	FieldPinned      = "pinned"
)

// ToRecord converts the item into primitives. A nil size is kept as a nil value.
func (i *Item) ToRecord() Record {
	r := Record{
		FieldID:          i.ID,
		FieldContentType: i.ContentType.String(),
		FieldContent:     i.Content,
		FieldTimestamp:   i.Timestamp,
		FieldPreview:     i.Preview,
		FieldSize:        nil,
		FieldPinned:      i.Pinned,
	}
	if i.Size != nil {
		r[FieldSize] = *i.Size
	}
	return r
}

// FromRecord rebuilds an item. Records written before size or pinned existed
// decode with a nil size and pinned=false.
func FromRecord(r Record) (*Item, error) {
	id, err := requireInt(r, FieldID)
	if err != nil {
		return nil, err
	}
	rawType, ok := r[FieldContentType].(string)
	if !ok {
		return nil, &ValidationError{Field: FieldContentType, Reason: "missing or not a string"}
	}
	ct, err := ParseContentType(rawType)
	if err != nil {
		return nil, err
	}
	content, ok := r[FieldContent].(string)
	if !ok {
		return nil, &ValidationError{Field: FieldContent, Reason: "missing or not a string"}
	}
	tsRaw, ok := r[FieldTimestamp]
	if !ok || tsRaw == nil {
		return nil, &ValidationError{Field: FieldTimestamp, Reason: "missing"}
	}
	ts, err := toFloat64(tsRaw)
	if err != nil {
		return nil, &ValidationError{Field: FieldTimestamp, Reason: err.Error()}
	}

	item := &Item{
		ID:          id,
		ContentType: ct,
		Content:     content,
		Timestamp:   ts,
	}
	if p, ok := r[FieldPreview].(string); ok {
		item.Preview = p
	}
	if raw, ok := r[FieldSize]; ok && raw != nil {
		n, err := toInt64(raw)
		if err != nil {
			return nil, &ValidationError{Field: FieldSize, Reason: err.Error()}
		}
		item.Size = &n
	}
	if raw, ok := r[FieldPinned]; ok && raw != nil {
		pinned, err := toBool(raw)
		if err != nil {
			return nil, &ValidationError{Field: FieldPinned, Reason: err.Error()}
		}
		item.Pinned = pinned
	}
	return item, nil
}

func requireInt(r Record, field string) (int64, error) {
	raw, ok := r[field]
	if !ok || raw == nil {
		return 0, &ValidationError{Field: field, Reason: "missing"}
	}
	n, err := toInt64(raw)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: err.Error()}
	}
	return n, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not integral", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}
