package mediastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/ListingHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/objectstore"
	"github.com/ManuelReschke/ListingHub/internal/pkg/upload"
)

var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrGalleryFull      = errors.New("gallery is full")
)

type Config struct {
	MaxUploadBytes int64
	MaxGallery     int
}

func LoadConfig() Config {
	return Config{
		MaxUploadBytes: int64(env.GetInt("MEDIA_MAX_UPLOAD_MB", 10)) << 20,
		MaxGallery:     env.GetInt("MEDIA_MAX_GALLERY", 20),
	}
}

// BusinessStore is the part of the business repository the service needs.
type BusinessStore interface {
	GetByID(id uint) (*models.Business, error)
	SetLogo(id uint, url, key, webpKey string) error
}

// ImageStore is the part of the gallery repository the service needs.
type ImageStore interface {
	Create(image *models.BusinessImage) error
	UpdateMeta(businessID, imageID uint, sortOrder int, description string) error
	DeleteByIDs(businessID uint, ids []uint) ([]models.BusinessImage, error)
	CountByKind(businessID uint, kind string) (int64, error)
}

// DeleteScheduler removes stored objects after their rows are gone.
type DeleteScheduler interface {
	EnqueueObjectDelete(ctx context.Context, businessID uint, keys []string) (*jobqueue.Job, error)
}

// Service applies media pushes to the gallery tables and the object store.
type Service struct {
	businesses BusinessStore
	images     ImageStore
	objects    objectstore.Store
	deletes    DeleteScheduler
	cfg        Config
}

func NewService(businesses BusinessStore, images ImageStore, objects objectstore.Store, deletes DeleteScheduler, cfg Config) *Service {
	if cfg.MaxGallery <= 0 {
		cfg.MaxGallery = 20
	}
	return &Service{businesses: businesses, images: images, objects: objects, deletes: deletes, cfg: cfg}
}

// Authorize loads the business and checks it belongs to ownerRef.
func (s *Service) Authorize(businessID uint, ownerRef string) (*models.Business, error) {
	b, err := s.businesses.GetByID(businessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	if ownerRef == "" || b.OwnerRef != ownerRef {
		return nil, ErrBusinessNotFound
	}
	return b, nil
}

// Apply processes deletes first, then updates, then new images and the logo.
// Every item is attempted; failures are returned per item.
func (s *Service) Apply(ctx context.Context, b *models.Business, req Request) []media.ItemError {
	var errs []media.ItemError

	if len(req.Deleted) > 0 {
		rows, err := s.images.DeleteByIDs(b.ID, req.Deleted)
		if err != nil {
			errs = append(errs, media.ItemError{Field: "deleted_image_ids", Message: err.Error()})
		} else {
			found := map[uint]bool{}
			var keys []string
			for i := range rows {
				found[rows[i].ID] = true
				keys = append(keys, rows[i].ObjectKeys()...)
			}
			for i, id := range req.Deleted {
				if !found[id] {
					errs = append(errs, media.ItemError{Field: fmt.Sprintf("deleted_image_ids[%d]", i), ID: id, Message: "image not found"})
				}
			}
			s.scheduleDelete(ctx, b.ID, keys)
		}
	}

	for _, u := range req.Updates {
		if err := s.images.UpdateMeta(b.ID, u.ID, u.SortOrder, u.Description); err != nil {
			msg := err.Error()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				msg = "image not found"
			}
			errs = append(errs, media.ItemError{Field: fmt.Sprintf("image_updates[%d]", u.Index), ID: u.ID, Message: msg})
		}
	}

	counts := map[media.Kind]int64{}
	for _, n := range req.New {
		field := fmt.Sprintf("new_images[%d]", n.Index)
		if _, ok := counts[n.Kind]; !ok {
			c, err := s.images.CountByKind(b.ID, string(n.Kind))
			if err != nil {
				errs = append(errs, media.ItemError{Field: field, Message: err.Error()})
				continue
			}
			counts[n.Kind] = c
		}
		if counts[n.Kind] >= int64(s.cfg.MaxGallery) {
			errs = append(errs, media.ItemError{Field: field, Message: ErrGalleryFull.Error()})
			continue
		}
		img, err := s.storeGalleryImage(ctx, b.ID, n)
		if err != nil {
			errs = append(errs, media.ItemError{Field: field, Message: err.Error()})
			continue
		}
		counts[n.Kind]++
		log.Debugf("[MediaStore] Stored %s image %d for business %d", n.Kind, img.ID, b.ID)
	}

	if req.Logo != nil {
		if err := s.replaceLogo(ctx, b, req.Logo); err != nil {
			errs = append(errs, media.ItemError{Field: "logo", Message: err.Error()})
		}
	}
	return errs
}

type stored struct {
	key, webpKey string
	url, webpURL string
	size         int64
	width        int
	height       int
	takenAt      *time.Time
}

func (s *Service) store(ctx context.Context, businessID uint, kind string, fh *multipart.FileHeader) (*stored, error) {
	if _, err := upload.ValidateFileHeader(fh, s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := imageprocessor.Normalize(f, kind)
	if err != nil {
		return nil, err
	}

	name := uuid.NewString()
	out := &stored{
		key:     objectstore.BusinessKey(businessID, kind, name, res.Primary.Ext),
		size:    int64(len(res.Primary.Data)),
		width:   res.Width,
		height:  res.Height,
		takenAt: res.TakenAt,
	}
	if err := s.objects.Put(ctx, out.key, bytes.NewReader(res.Primary.Data), out.size, res.Primary.ContentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	out.url = s.objects.URL(out.key)

	if res.WebP != nil {
		webpKey := objectstore.BusinessKey(businessID, kind, name, res.WebP.Ext)
		if err := s.objects.Put(ctx, webpKey, bytes.NewReader(res.WebP.Data), int64(len(res.WebP.Data)), res.WebP.ContentType); err != nil {
			log.Warnf("[MediaStore] WebP rendition for %s not stored: %v", out.key, err)
		} else {
			out.webpKey = webpKey
			out.webpURL = s.objects.URL(webpKey)
		}
	}
	return out, nil
}

func (st *stored) keys() []string {
	keys := []string{st.key}
	if st.webpKey != "" {
		keys = append(keys, st.webpKey)
	}
	return keys
}

func (s *Service) storeGalleryImage(ctx context.Context, businessID uint, n NewImage) (*models.BusinessImage, error) {
	st, err := s.store(ctx, businessID, string(n.Kind), n.File)
	if err != nil {
		return nil, err
	}
	img := &models.BusinessImage{
		UUID:        uuid.NewString(),
		BusinessID:  businessID,
		Kind:        string(n.Kind),
		SortOrder:   n.SortOrder,
		Description: n.Description,
		ObjectKey:   st.key,
		WebpKey:     st.webpKey,
		URL:         st.url,
		WebpURL:     st.webpURL,
		Width:       st.width,
		Height:      st.height,
		FileSize:    st.size,
		TakenAt:     st.takenAt,
	}
	if err := s.images.Create(img); err != nil {
		s.scheduleDelete(ctx, businessID, st.keys())
		return nil, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

func (s *Service) replaceLogo(ctx context.Context, b *models.Business, fh *multipart.FileHeader) error {
	st, err := s.store(ctx, b.ID, string(media.KindLogo), fh)
	if err != nil {
		return err
	}
	if err := s.businesses.SetLogo(b.ID, st.url, st.key, st.webpKey); err != nil {
		s.scheduleDelete(ctx, b.ID, st.keys())
		return fmt.Errorf("save logo: %w", err)
	}
	var old []string
	if b.LogoKey != "" {
		old = append(old, b.LogoKey)
	}
	if b.LogoWebpKey != "" {
		old = append(old, b.LogoWebpKey)
	}
	s.scheduleDelete(ctx, b.ID, old)
	b.LogoURL, b.LogoKey, b.LogoWebpKey = st.url, st.key, st.webpKey
	return nil
}

func (s *Service) scheduleDelete(ctx context.Context, businessID uint, keys []string) {
	if len(keys) == 0 || s.deletes == nil {
		return
	}
	if _, err := s.deletes.EnqueueObjectDelete(ctx, businessID, keys); err != nil {
		log.Errorf("[MediaStore] Could not schedule deletion of %v: %v", keys, err)
	}
}
