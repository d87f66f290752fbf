package storage

import (
	"clipboard-history/pkg/types"
)

// ItemModel is the clipboard_items row
type ItemModel struct {
	ID          int64             `gorm:"primaryKey;autoIncrement:false"`
	ContentType types.ContentType `gorm:"type:text;not null;index"`
	Content     string            `gorm:"type:text;not null"`
	Timestamp   float64           `gorm:"not null;index"`
	Preview     *string           `gorm:"type:text"`
	Size        *int64
	Pinned      bool `gorm:"not null;default:false"`
}

func (ItemModel) TableName() string {
	return "clipboard_items"
}

// SettingModel is one row of the settings key-value table
type SettingModel struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (SettingModel) TableName() string {
	return "settings"
}

func (m *ItemModel) ToItem() *types.Item {
	item := &types.Item{
		ID:          m.ID,
		ContentType: m.ContentType,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
		Pinned:      m.Pinned,
	}
	if m.Preview != nil {
		item.Preview = *m.Preview
	}
	if m.Size != nil {
		size := *m.Size
		item.Size = &size
	}
	return item
}

func FromItem(item *types.Item) *ItemModel {
	preview := item.Preview
	m := &ItemModel{
		ID:          item.ID,
		ContentType: item.ContentType,
		Content:     item.Content,
		Timestamp:   item.Timestamp,
		Preview:     &preview,
		Pinned:      item.Pinned,
	}
	if item.Size != nil {
		size := *item.Size
		m.Size = &size
	}
	return m
}
