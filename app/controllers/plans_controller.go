package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
)

// CatalogLoader yields the current plan catalog.
type CatalogLoader interface {
	Load(ctx context.Context) (plans.Catalog, error)
	Invalidate(ctx context.Context) error
}

type PlansController struct {
	catalog CatalogLoader
}

func NewPlansController(catalog CatalogLoader) *PlansController {
	return &PlansController{catalog: catalog}
}

// HandleList returns the catalog grouped by tier with yearly savings.
func (pc *PlansController) HandleList(c *fiber.Ctx) error {
	catalog, err := pc.catalog.Load(c.UserContext())
	if err != nil {
		log.Errorf("[Plans] Load catalog failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "catalog_unavailable",
			"message": "plan catalog could not be loaded",
		})
	}
	return c.JSON(fiber.Map{
		"offers":  catalog.Offers(),
		"entries": catalog.Entries(),
	})
}

// HandleRefresh drops the cached price list so the next load hits the provider.
func (pc *PlansController) HandleRefresh(c *fiber.Ctx) error {
	if err := pc.catalog.Invalidate(c.UserContext()); err != nil {
		log.Errorf("[Plans] Invalidate catalog failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"success": true})
}
