package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	BillingStatusActive     = "active"
	BillingStatusTrialing   = "trialing"
	BillingStatusPastDue    = "past_due"
	BillingStatusCanceled   = "canceled"
	BillingStatusIncomplete = "incomplete"
)

// BillingSubscription mirrors the provider subscription paying for one business row.
type BillingSubscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	BusinessID             uint      `gorm:"not null;index" json:"business_id"`
	OwnerRef               string    `gorm:"type:varchar(191);not null;index" json:"owner_ref"`
	Provider               string    `gorm:"type:varchar(20);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	PriceID                string    `gorm:"type:varchar(191);not null;index" json:"price_id"`
	Category               string    `gorm:"type:varchar(50);not null" json:"category"`
	BillingInterval        string    `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string    `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
