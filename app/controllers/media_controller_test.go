package controllers

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/mediastore"
	"github.com/ManuelReschke/ListingHub/internal/pkg/middleware"
)

type fakeMediaService struct {
	owners   map[uint]string
	authErr  error
	applied  []mediastore.Request
	itemErrs []media.ItemError
}

func (f *fakeMediaService) Authorize(id uint, owner string) (*models.Business, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	if o, ok := f.owners[id]; !ok || o != owner {
		return nil, mediastore.ErrBusinessNotFound
	}
	return &models.Business{ID: id, OwnerRef: owner}, nil
}

func (f *fakeMediaService) Apply(_ context.Context, _ *models.Business, req mediastore.Request) []media.ItemError {
	f.applied = append(f.applied, req)
	return f.itemErrs
}

func newMediaApp(svc MediaService) *fiber.App {
	mc := NewMediaController(svc)
	app := fiber.New()
	app.Use(middleware.OwnerContextMiddleware)
	g := app.Group("/businesses", middleware.RequireOwner)
	g.Post("/:id/images", mc.HandleImages)
	g.Patch("/:id/images", mc.HandleImages)
	return app
}

func TestMediaImagesAppliesPush(t *testing.T) {
	svc := &fakeMediaService{owners: map[uint]string{7: "owner-1"}}
	app := newMediaApp(svc)

	body, ct := multipartBody(t, map[string]string{
		"new_images[0][kind]":        "photo",
		"new_images[0][description]": "Front",
		"new_images[0][sort_order]":  "0",
		"deleted_image_ids[0]":       "12",
	}, formFile{field: "new_images[0][file]", name: "front.png", data: pngBytes(t, 4, 4)})
	req := httptest.NewRequest("PATCH", "/businesses/7/images", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(media.OwnerHeader, "owner-1")

	status, resp := doRequest(t, app, req)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, resp["success"])
	assert.Empty(t, resp["errors"])
	require.Len(t, svc.applied, 1)
	assert.Len(t, svc.applied[0].New, 1)
	assert.Equal(t, []uint{12}, svc.applied[0].Deleted)
}

func TestMediaImagesReportsItemErrors(t *testing.T) {
	svc := &fakeMediaService{
		owners:   map[uint]string{7: "owner-1"},
		itemErrs: []media.ItemError{{Field: "image_updates[0]", ID: 3, Message: "image not found"}},
	}
	app := newMediaApp(svc)

	body, ct := multipartBody(t, map[string]string{
		"image_updates[0][id]":          "3",
		"image_updates[0][description]": "Bar",
		"new_images[1][kind]":           "poster",
	})
	req := httptest.NewRequest("POST", "/businesses/7/images", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(media.OwnerHeader, "owner-1")

	status, resp := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, false, resp["success"])
	errs, ok := resp["errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, errs, 2)
	require.Len(t, svc.applied, 1)
	assert.Len(t, svc.applied[0].Updates, 1)
}

func TestMediaImagesChecksOwnership(t *testing.T) {
	svc := &fakeMediaService{owners: map[uint]string{7: "owner-1"}}
	app := newMediaApp(svc)

	body, ct := multipartBody(t, map[string]string{"deleted_image_ids[0]": "1"})
	req := httptest.NewRequest("PATCH", "/businesses/7/images", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(media.OwnerHeader, "intruder")
	status, _ := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusNotFound, status)

	req = httptest.NewRequest("PATCH", "/businesses/abc/images", nil)
	req.Header.Set(media.OwnerHeader, "owner-1")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusBadRequest, status)

	svc.authErr = errors.New("db down")
	req = httptest.NewRequest("PATCH", "/businesses/7/images", nil)
	req.Header.Set(media.OwnerHeader, "owner-1")
	status, _ = doRequest(t, app, req)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Empty(t, svc.applied)
}
