package models

import "time"

const (
	BillingProviderStripe = "stripe"
)

// BillingAccount links an owner to the provider-side customer.
type BillingAccount struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	OwnerRef          string    `gorm:"type:varchar(191);not null;index:ux_billing_accounts_owner_provider,unique" json:"owner_ref"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_billing_accounts_owner_provider,unique;index:ux_billing_accounts_provider_account,unique,priority:1" json:"provider"`
	ProviderAccountID string    `gorm:"type:varchar(191);not null;index:ux_billing_accounts_provider_account,unique,priority:2" json:"provider_account_id"`
	Email             string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
