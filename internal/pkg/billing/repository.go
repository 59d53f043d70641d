package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ListingHub/app/models"
)

// Repository is the persistence the billing Service needs.
type Repository interface {
	GetBillingAccountByOwner(ownerRef, provider string) (*models.BillingAccount, error)
	UpsertBillingAccount(account *models.BillingAccount) error
	UpsertSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByBusiness(businessID uint) ([]models.BillingSubscription, error)
	// CreateWebhookEventIfNotExists reports whether the event was new and
	// returns the stored row either way.
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// upsert inserts row or updates the listed columns when the unique key in
// match conflicts, then reloads row so its primary key is set on both paths.
func (r *gormRepository) upsert(row interface{}, match map[string]interface{}, updates ...string) error {
	cols := make([]clause.Column, 0, len(match))
	for name := range match {
		cols = append(cols, clause.Column{Name: name})
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(append(updates, "updated_at")),
	}).Create(row).Error; err != nil {
		return err
	}
	return r.db.Where(match).First(row).Error
}

func (r *gormRepository) GetBillingAccountByOwner(ownerRef, provider string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.Where("owner_ref = ? AND provider = ?", ownerRef, provider).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) UpsertBillingAccount(account *models.BillingAccount) error {
	return r.upsert(account,
		map[string]interface{}{"owner_ref": account.OwnerRef, "provider": account.Provider},
		"provider_account_id", "email")
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	return r.upsert(sub,
		map[string]interface{}{"provider": sub.Provider, "provider_subscription_id": sub.ProviderSubscriptionID},
		"business_id", "owner_ref", "price_id", "category", "billing_interval", "status")
}

func (r *gormRepository) ListSubscriptionsByBusiness(businessID uint) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("business_id = ?", businessID).Order("id").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, nil, res.Error
	}

	var stored models.BillingWebhookEvent
	err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).First(&stored).Error
	if err != nil {
		return false, nil, err
	}
	return res.RowsAffected > 0, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     time.Now(),
		"processing_error": processingError,
	}).Error
}
