package submission

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/app/repository"
	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

// SubscriptionSyncer stores provider subscriptions next to their business rows.
type SubscriptionSyncer interface {
	SyncSubscription(ctx context.Context, ownerRef string, sub billing.Subscription) (*models.BillingSubscription, error)
	ActiveSubscriptionID(ctx context.Context, businessID uint) (string, error)
}

// GormRecordStore is the RecordStore backed by the business repositories.
type GormRecordStore struct {
	businesses repository.BusinessRepository
	images     repository.BusinessImageRepository
	subs       SubscriptionSyncer
}

func NewGormRecordStore(businesses repository.BusinessRepository, images repository.BusinessImageRepository, subs SubscriptionSyncer) *GormRecordStore {
	return &GormRecordStore{businesses: businesses, images: images, subs: subs}
}

func (s *GormRecordStore) Load(_ context.Context, recordID uint) (*Record, error) {
	b, err := s.businesses.GetByID(recordID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordFromModel(b), nil
}

func (s *GormRecordStore) Create(_ context.Context, ownerRef string, fields Fields, lines []plans.Line) ([]CreatedRecord, error) {
	rows := make([]*models.Business, 0, len(lines))
	for _, l := range lines {
		b := modelFromFields(fields)
		b.OwnerRef = ownerRef
		b.Category = l.Category
		b.Tier = string(l.Tier)
		b.PriceID = l.PriceID
		b.Status = models.BusinessStatusPendingPayment
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("business %q: %w", l.Category, err)
		}
		rows = append(rows, b)
	}
	if err := s.businesses.CreateMany(rows); err != nil {
		return nil, err
	}

	out := make([]CreatedRecord, 0, len(rows))
	for i, b := range rows {
		out = append(out, CreatedRecord{RecordID: b.ID, Category: b.Category, PriceID: lines[i].PriceID})
	}
	return out, nil
}

func (s *GormRecordStore) Update(_ context.Context, recordID uint, patch Patch) error {
	columns := make(map[string]interface{}, len(patch))
	var discounts []models.BusinessDiscount
	for col, v := range patch {
		if col == "discounts" {
			list, _ := v.([]Discount)
			discounts = discountModels(list)
			continue
		}
		columns[col] = v
	}
	err := s.businesses.UpdateColumns(recordID, columns, discounts)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (s *GormRecordStore) UpdatePlan(_ context.Context, recordID uint, line plans.Line) error {
	err := s.businesses.UpdatePlan(recordID, string(line.Tier), line.PriceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (s *GormRecordStore) MarkPendingPayment(_ context.Context, recordIDs []uint) error {
	return s.businesses.SetStatus(recordIDs, models.BusinessStatusPendingPayment)
}

func (s *GormRecordStore) ActiveSubscription(ctx context.Context, recordID uint) (string, error) {
	if s.subs == nil {
		return "", nil
	}
	return s.subs.ActiveSubscriptionID(ctx, recordID)
}

// AttachSubscriptions syncs every subscription and activates rows whose
// subscription is live. It keeps going after a failed sync.
func (s *GormRecordStore) AttachSubscriptions(ctx context.Context, ownerRef string, subs []billing.Subscription) error {
	var errs []error
	var live []uint
	for _, sub := range subs {
		if s.subs != nil {
			if _, err := s.subs.SyncSubscription(ctx, ownerRef, sub); err != nil {
				errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
				continue
			}
		}
		if billing.IsActiveStatus(sub.Status) {
			live = append(live, sub.RecordID)
		}
	}
	if err := s.businesses.SetStatus(live, models.BusinessStatusActive); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func modelFromFields(f Fields) *models.Business {
	return &models.Business{
		Name:      f.Name,
		Tagline:   f.Tagline,
		Address:   f.Address,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Phone:     f.Phone,
		Email:     f.Email,
		Website:   f.Website,
		Category:  f.Category,
		Discounts: discountModels(f.Discounts),
	}
}

func discountModels(in []Discount) []models.BusinessDiscount {
	out := make([]models.BusinessDiscount, 0, len(in))
	for _, d := range in {
		out = append(out, models.BusinessDiscount{Title: d.Title, Description: d.Description})
	}
	return out
}

func recordFromModel(b *models.Business) *Record {
	rec := &Record{
		ID:       b.ID,
		OwnerRef: b.OwnerRef,
		Status:   b.Status,
		Tier:     b.Tier,
		PriceID:  b.PriceID,
		Fields: Fields{
			Name:      b.Name,
			Tagline:   b.Tagline,
			Address:   b.Address,
			Latitude:  b.Latitude,
			Longitude: b.Longitude,
			Phone:     b.Phone,
			Email:     b.Email,
			Website:   b.Website,
			Category:  b.Category,
		},
	}
	for _, d := range b.Discounts {
		rec.Fields.Discounts = append(rec.Fields.Discounts, Discount{Title: d.Title, Description: d.Description})
	}
	if b.LogoURL != "" {
		rec.Media.Logo = &media.Asset{ID: b.ID, URL: b.LogoURL}
	}
	for _, img := range b.Images {
		a := media.Asset{ID: img.ID, URL: img.URL, SortOrder: img.SortOrder, Description: img.Description}
		switch img.Kind {
		case models.ImageKindMenu:
			rec.Media.Menu = append(rec.Media.Menu, a)
		default:
			rec.Media.Photos = append(rec.Media.Photos, a)
		}
	}
	return rec
}
