package mediastore

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
)

func pngFile(t *testing.T, name string, w, h int) media.LocalFile {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return media.LocalFile{Path: p, Filename: name, ContentType: "image/png"}
}

// formOf encodes diff the way the media client does and reads it back.
func formOf(t *testing.T, diff media.Diff) *multipart.Form {
	t.Helper()
	body, ct, err := media.EncodeMultipart(diff)
	require.NoError(t, err)
	_, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form
}

type fakeBusinesses struct {
	rows map[uint]*models.Business
}

func (f *fakeBusinesses) GetByID(id uint) (*models.Business, error) {
	b, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBusinesses) SetLogo(id uint, url, key, webpKey string) error {
	b := f.rows[id]
	b.LogoURL, b.LogoKey, b.LogoWebpKey = url, key, webpKey
	return nil
}

type fakeImages struct {
	nextID uint
	rows   map[uint]*models.BusinessImage
}

func newFakeImages(existing ...models.BusinessImage) *fakeImages {
	f := &fakeImages{nextID: 100, rows: map[uint]*models.BusinessImage{}}
	for i := range existing {
		img := existing[i]
		f.rows[img.ID] = &img
	}
	return f
}

func (f *fakeImages) Create(img *models.BusinessImage) error {
	f.nextID++
	img.ID = f.nextID
	cp := *img
	f.rows[img.ID] = &cp
	return nil
}

func (f *fakeImages) UpdateMeta(businessID, imageID uint, sortOrder int, description string) error {
	img, ok := f.rows[imageID]
	if !ok || img.BusinessID != businessID {
		return gorm.ErrRecordNotFound
	}
	img.SortOrder, img.Description = sortOrder, description
	return nil
}

func (f *fakeImages) DeleteByIDs(businessID uint, ids []uint) ([]models.BusinessImage, error) {
	var out []models.BusinessImage
	for _, id := range ids {
		if img, ok := f.rows[id]; ok && img.BusinessID == businessID {
			out = append(out, *img)
			delete(f.rows, id)
		}
	}
	return out, nil
}

func (f *fakeImages) CountByKind(businessID uint, kind string) (int64, error) {
	var n int64
	for _, img := range f.rows {
		if img.BusinessID == businessID && img.Kind == kind {
			n++
		}
	}
	return n, nil
}

type fakeDeletes struct {
	keys []string
}

func (f *fakeDeletes) EnqueueObjectDelete(_ context.Context, _ uint, keys []string) (*jobqueue.Job, error) {
	f.keys = append(f.keys, keys...)
	return &jobqueue.Job{ID: "job"}, nil
}
