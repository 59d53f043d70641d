package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/app/models"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/mediastore"
	"github.com/ManuelReschke/ListingHub/internal/pkg/usercontext"
)

// MediaService stores gallery pushes for a business.
type MediaService interface {
	Authorize(businessID uint, ownerRef string) (*models.Business, error)
	Apply(ctx context.Context, b *models.Business, req mediastore.Request) []media.ItemError
}

// MediaController serves the business image endpoints used by the media client.
type MediaController struct {
	media MediaService
}

func NewMediaController(svc MediaService) *MediaController {
	return &MediaController{media: svc}
}

// HandleImages handles both POST (initial upload) and PATCH (reconcile).
// Valid items are applied even when others fail; every failure is listed.
func (mc *MediaController) HandleImages(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid business id")
	}
	b, err := mc.media.Authorize(id, usercontext.GetOwnerRef(c))
	if err != nil {
		if errors.Is(err, mediastore.ErrBusinessNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(media.Response{
				Errors: []media.ItemError{{Field: "id", ID: id, Message: err.Error()}},
			})
		}
		log.Errorf("[MediaStore] Load business %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(media.Response{
			Errors: []media.ItemError{{Field: "id", ID: id, Message: "internal error"}},
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(media.Response{
			Errors: []media.ItemError{{Field: "body", Message: "multipart form expected"}},
		})
	}
	req, errs := mediastore.ParseForm(form)
	if !req.Empty() {
		errs = append(errs, mc.media.Apply(c.UserContext(), b, req)...)
	}

	if len(errs) > 0 {
		log.Warnf("[MediaStore] %s images for business %d: %d item errors", c.Method(), id, len(errs))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(media.Response{Success: false, Errors: errs})
	}
	return c.JSON(media.Response{Success: true, Errors: []media.ItemError{}})
}
