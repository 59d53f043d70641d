package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/internal/pkg/shortener"
)

const (
	BusinessStatusActive         = "active"
	BusinessStatusPendingPayment = "pending_payment"
)

// Business is one listing row. A listing with several categories is stored as
// one row per category, each with its own plan.
type Business struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	OwnerRef    string   `gorm:"type:varchar(191);not null;index" json:"owner_ref" validate:"required,max=191"`
	Slug        string   `gorm:"type:varchar(32) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex" json:"slug"`
	Name        string   `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Tagline     string   `gorm:"type:varchar(255)" json:"tagline" validate:"max=255"`
	Address     string   `gorm:"type:varchar(255);not null" json:"address" validate:"required,max=255"`
	Latitude    *float64 `gorm:"type:decimal(10,8)" json:"latitude" validate:"required,min=-90,max=90"`
	Longitude   *float64 `gorm:"type:decimal(11,8)" json:"longitude" validate:"required,min=-180,max=180"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone" validate:"max=50"`
	Email       string   `gorm:"type:varchar(200)" json:"email" validate:"omitempty,email,max=200"`
	Website     string   `gorm:"type:varchar(255)" json:"website" validate:"omitempty,url,max=255"`
	Category    string   `gorm:"type:varchar(50);not null;index" json:"category" validate:"required,max=50"`
	Tier        string   `gorm:"type:varchar(20);default:''" json:"tier"`
	PriceID     string   `gorm:"type:varchar(191);default:''" json:"price_id"`
	Status      string   `gorm:"type:varchar(32);not null;default:'active';index" json:"status" validate:"oneof=active pending_payment"`
	LogoURL     string   `gorm:"type:varchar(512);default:''" json:"logo_url"`
	LogoKey     string   `gorm:"type:varchar(512);default:''" json:"-"`
	LogoWebpKey string   `gorm:"type:varchar(512);default:''" json:"-"`
	// relations
	Discounts []BusinessDiscount `gorm:"foreignKey:BusinessID" json:"discounts,omitempty"`
	Images    []BusinessImage    `gorm:"foreignKey:BusinessID" json:"images,omitempty"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt     `gorm:"index" json:"-"`
}

func (b *Business) Validate() error {
	v := validator.New()

	return v.Struct(b)
}

// AfterCreate derives the public slug from the new id.
func (b *Business) AfterCreate(tx *gorm.DB) error {
	if b.Slug != "" {
		return nil
	}
	b.Slug = shortener.EncodeID(b.ID)
	return tx.Model(b).Update("slug", b.Slug).Error
}
