package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ImageKindPhoto = "photo"
	ImageKindMenu  = "menu"
)

// BusinessImage is one entry of a business gallery.
type BusinessImage struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	BusinessID  uint           `gorm:"not null;index:idx_business_images_gallery,priority:1" json:"business_id"`
	Kind        string         `gorm:"type:varchar(10);not null;index:idx_business_images_gallery,priority:2" json:"kind"`
	SortOrder   int            `gorm:"not null;default:0" json:"sort_order"`
	Description string         `gorm:"type:text" json:"description"`
	ObjectKey   string         `gorm:"type:varchar(512);not null" json:"-"`
	WebpKey     string         `gorm:"type:varchar(512);default:''" json:"-"`
	URL         string         `gorm:"type:varchar(512);not null" json:"url"`
	WebpURL     string         `gorm:"type:varchar(512);default:''" json:"webp_url"`
	Width       int            `gorm:"type:int" json:"width"`
	Height      int            `gorm:"type:int" json:"height"`
	FileSize    int64          `gorm:"type:bigint" json:"file_size"`
	TakenAt     *time.Time     `gorm:"type:datetime" json:"taken_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// ObjectKeys lists every stored rendition.
func (i *BusinessImage) ObjectKeys() []string {
	keys := []string{i.ObjectKey}
	if i.WebpKey != "" {
		keys = append(keys, i.WebpKey)
	}
	return keys
}
