package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
)

// businessRepository implements the BusinessRepository interface
type businessRepository struct {
	db *gorm.DB
}

// NewBusinessRepository creates a new business repository instance
func NewBusinessRepository(db *gorm.DB) BusinessRepository {
	return &businessRepository{db: db}
}

func (r *businessRepository) CreateMany(rows []*models.Business) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range rows {
			if err := tx.Create(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a business with discounts and gallery
func (r *businessRepository) GetByID(id uint) (*models.Business, error) {
	var b models.Business
	err := r.db.Preload("Discounts").
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("kind ASC, sort_order ASC, id ASC") }).
		First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *businessRepository) UpdateColumns(id uint, columns map[string]interface{}, discounts []models.BusinessDiscount) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(columns) > 0 {
			res := tx.Model(&models.Business{}).Where("id = ?", id).Updates(columns)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var n int64
				if err := tx.Model(&models.Business{}).Where("id = ?", id).Count(&n).Error; err != nil {
					return err
				}
				if n == 0 {
					return gorm.ErrRecordNotFound
				}
			}
		}
		if discounts == nil {
			return nil
		}
		if err := tx.Where("business_id = ?", id).Delete(&models.BusinessDiscount{}).Error; err != nil {
			return err
		}
		for i := range discounts {
			discounts[i].ID = 0
			discounts[i].BusinessID = id
		}
		if len(discounts) == 0 {
			return nil
		}
		return tx.Create(&discounts).Error
	})
}

func (r *businessRepository) UpdatePlan(id uint, tier, priceID string) error {
	res := r.db.Model(&models.Business{}).Where("id = ?", id).
		Updates(map[string]interface{}{"tier": tier, "price_id": priceID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *businessRepository) SetStatus(ids []uint, status string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Business{}).Where("id IN ?", ids).Update("status", status).Error
}

func (r *businessRepository) SetLogo(id uint, url, key, webpKey string) error {
	return r.db.Model(&models.Business{}).Where("id = ?", id).Updates(map[string]interface{}{
		"logo_url":      url,
		"logo_key":      key,
		"logo_webp_key": webpKey,
	}).Error
}

func (r *businessRepository) CountByStatus(status string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Business{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
