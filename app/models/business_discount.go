package models

import "time"

type BusinessDiscount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BusinessID  uint      `gorm:"not null;index" json:"business_id"`
	Title       string    `gorm:"type:varchar(150);not null" json:"title" validate:"required,max=150"`
	Description string    `gorm:"type:text" json:"description" validate:"max=2000"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
