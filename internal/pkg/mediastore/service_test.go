package mediastore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/objectstore"
)

type fixture struct {
	svc     *Service
	biz     *fakeBusinesses
	images  *fakeImages
	deletes *fakeDeletes
	root    string
}

func newFixture(t *testing.T, existing ...models.BusinessImage) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := objectstore.NewLocalStore(root, "/media")
	require.NoError(t, err)
	f := &fixture{
		biz: &fakeBusinesses{rows: map[uint]*models.Business{
			5: {ID: 5, OwnerRef: "owner-1", LogoKey: "businesses/5/logo/old.png", LogoWebpKey: "businesses/5/logo/old.webp"},
		}},
		images:  newFakeImages(existing...),
		deletes: &fakeDeletes{},
		root:    root,
	}
	f.svc = NewService(f.biz, f.images, store, f.deletes, Config{MaxUploadBytes: 1 << 20, MaxGallery: 2})
	return f
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Authorize(5, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, uint(5), b.ID)

	_, err = f.svc.Authorize(5, "owner-2")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
	_, err = f.svc.Authorize(6, "owner-1")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
	_, err = f.svc.Authorize(5, "")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}

func TestApplyStoresNewImagesAndLogo(t *testing.T) {
	f := newFixture(t)
	photo := pngFile(t, "patio.png", 40, 20)
	logo := pngFile(t, "logo.png", 10, 10)

	req, errs := ParseForm(formOf(t, media.Diff{
		Photos: media.KindDiff{ToAdd: []media.Upload{{File: photo, SortOrder: 1, Description: "patio"}}},
		Logo:   &logo,
	}))
	require.Empty(t, errs)

	b, err := f.svc.Authorize(5, "owner-1")
	require.NoError(t, err)
	require.Empty(t, f.svc.Apply(context.Background(), b, req))

	require.Len(t, f.images.rows, 1)
	img := f.images.rows[101]
	assert.Equal(t, "photo", img.Kind)
	assert.Equal(t, "patio", img.Description)
	assert.Equal(t, 40, img.Width)
	assert.True(t, strings.HasPrefix(img.ObjectKey, "businesses/5/photo/"))
	assert.True(t, strings.HasSuffix(img.ObjectKey, ".jpg"))
	assert.Equal(t, "/media/"+img.ObjectKey, img.URL)
	_, err = os.Stat(filepath.Join(f.root, filepath.FromSlash(img.ObjectKey)))
	assert.NoError(t, err)

	stored := f.biz.rows[5]
	assert.True(t, strings.HasPrefix(stored.LogoKey, "businesses/5/logo/"))
	assert.True(t, strings.HasSuffix(stored.LogoKey, ".png"))
	assert.Equal(t, []string{"businesses/5/logo/old.png", "businesses/5/logo/old.webp"}, f.deletes.keys)
}

func TestApplyUpdatesAndDeletes(t *testing.T) {
	f := newFixture(t,
		models.BusinessImage{ID: 1, BusinessID: 5, Kind: "photo", ObjectKey: "k1.jpg", WebpKey: "k1.webp"},
		models.BusinessImage{ID: 2, BusinessID: 5, Kind: "photo", ObjectKey: "k2.jpg"},
		models.BusinessImage{ID: 3, BusinessID: 8, Kind: "photo", ObjectKey: "other.jpg"},
	)
	b, err := f.svc.Authorize(5, "owner-1")
	require.NoError(t, err)

	errs := f.svc.Apply(context.Background(), b, Request{
		Updates: []ImageUpdate{{Index: 0, ID: 2, SortOrder: 1, Description: "new"}, {Index: 1, ID: 3, SortOrder: 2}},
		Deleted: []uint{1, 3},
	})

	require.Len(t, errs, 2)
	assert.Equal(t, media.ItemError{Field: "deleted_image_ids[1]", ID: 3, Message: "image not found"}, errs[0])
	assert.Equal(t, media.ItemError{Field: "image_updates[1]", ID: 3, Message: "image not found"}, errs[1])

	assert.NotContains(t, f.images.rows, uint(1))
	assert.Contains(t, f.images.rows, uint(3), "other business untouched")
	assert.Equal(t, "new", f.images.rows[2].Description)
	assert.Equal(t, []string{"k1.jpg", "k1.webp"}, f.deletes.keys)
}

func TestApplyEnforcesGalleryLimitAndValidatesFiles(t *testing.T) {
	f := newFixture(t, models.BusinessImage{ID: 1, BusinessID: 5, Kind: "menu"})
	good := pngFile(t, "a.png", 4, 4)
	fake := media.LocalFile{Path: filepath.Join(t.TempDir(), "fake.png"), Filename: "fake.png"}
	require.NoError(t, os.WriteFile(fake.Path, []byte("<html>nope</html>"), 0o644))

	req, errs := ParseForm(formOf(t, media.Diff{
		Menu: media.KindDiff{ToAdd: []media.Upload{{File: fake}, {File: good}, {File: good}}},
	}))
	require.Empty(t, errs)

	b, err := f.svc.Authorize(5, "owner-1")
	require.NoError(t, err)
	errs = f.svc.Apply(context.Background(), b, req)

	require.Len(t, errs, 2)
	assert.Equal(t, "new_images[0]", errs[0].Field)
	assert.Equal(t, "new_images[2]", errs[1].Field)
	assert.Equal(t, ErrGalleryFull.Error(), errs[1].Message)
	count, _ := f.images.CountByKind(5, "menu")
	assert.Equal(t, int64(2), count)
}
