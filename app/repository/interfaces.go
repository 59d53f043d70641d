package repository

import (
	"time"

	"github.com/ManuelReschke/ListingHub/app/models"
)

// BusinessRepository defines the interface for business-related database operations
type BusinessRepository interface {
	// CreateMany inserts all rows of one listing in a single transaction.
	CreateMany(rows []*models.Business) error
	GetByID(id uint) (*models.Business, error)
	// UpdateColumns patches columns and, when discounts is non-nil, replaces the discount list.
	UpdateColumns(id uint, columns map[string]interface{}, discounts []models.BusinessDiscount) error
	UpdatePlan(id uint, tier, priceID string) error
	SetStatus(ids []uint, status string) error
	SetLogo(id uint, url, key, webpKey string) error
	CountByStatus(status string) (int64, error)
}

// BusinessImageRepository defines the interface for gallery operations
type BusinessImageRepository interface {
	Create(image *models.BusinessImage) error
	ListByBusiness(businessID uint, kind string) ([]models.BusinessImage, error)
	UpdateMeta(businessID, imageID uint, sortOrder int, description string) error
	// DeleteByIDs removes the given images of a business and returns the removed rows.
	DeleteByIDs(businessID uint, ids []uint) ([]models.BusinessImage, error)
	CountByKind(businessID uint, kind string) (int64, error)
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories groups the repositories handed to services and controllers.
type Repositories struct {
	Business      BusinessRepository
	BusinessImage BusinessImageRepository
	Queue         QueueRepository
}
