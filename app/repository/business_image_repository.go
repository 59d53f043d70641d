package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
)

type businessImageRepository struct {
	db *gorm.DB
}

// NewBusinessImageRepository creates a new gallery repository instance
func NewBusinessImageRepository(db *gorm.DB) BusinessImageRepository {
	return &businessImageRepository{db: db}
}

func (r *businessImageRepository) Create(image *models.BusinessImage) error {
	return r.db.Create(image).Error
}

// ListByBusiness returns one gallery ordered for display
func (r *businessImageRepository) ListByBusiness(businessID uint, kind string) ([]models.BusinessImage, error) {
	var out []models.BusinessImage
	q := r.db.Where("business_id = ?", businessID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Order("sort_order ASC, id ASC").Find(&out).Error
	return out, err
}

// UpdateMeta only touches images that belong to the business
func (r *businessImageRepository) UpdateMeta(businessID, imageID uint, sortOrder int, description string) error {
	res := r.db.Model(&models.BusinessImage{}).
		Where("id = ? AND business_id = ?", imageID, businessID).
		Updates(map[string]interface{}{"sort_order": sortOrder, "description": description})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.Model(&models.BusinessImage{}).Where("id = ? AND business_id = ?", imageID, businessID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

func (r *businessImageRepository) DeleteByIDs(businessID uint, ids []uint) ([]models.BusinessImage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.BusinessImage
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND id IN ?", businessID, ids).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Where("business_id = ? AND id IN ?", businessID, ids).Delete(&models.BusinessImage{}).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *businessImageRepository) CountByKind(businessID uint, kind string) (int64, error) {
	var n int64
	err := r.db.Model(&models.BusinessImage{}).Where("business_id = ? AND kind = ?", businessID, kind).Count(&n).Error
	return n, err
}
