package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ListingHub/app/controllers"
	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/middleware"
)

// Handlers bundles the controllers served under /api.
type Handlers struct {
	Workflows *controllers.WorkflowController
	Media     *controllers.MediaController
	Plans     *controllers.PlansController
	Billing   *controllers.BillingController
	Queue     *controllers.QueueController
	// ServiceKey guards /api/v1 when set.
	ServiceKey string
}

type ApiRouter struct {
	handlers Handlers
	limit    limiter.Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// provider callbacks bypass the limiter and the service key
	app.Post("/api/webhooks/stripe", h.handlers.Billing.HandleStripeWebhook)

	api := app.Group("/api", limiter.New(h.limit))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.ServiceKeyMiddleware(h.handlers.ServiceKey), middleware.OwnerContextMiddleware)
	v1.Get("/plans", h.handlers.Plans.HandleList)

	workflows := v1.Group("/workflows", middleware.RequireOwner)
	workflows.Post("/", h.handlers.Workflows.HandleOpen)
	workflows.Get("/:id", h.handlers.Workflows.HandleGet)
	workflows.Post("/:id/commands", h.handlers.Workflows.HandleCommand)
	workflows.Post("/:id/media", h.handlers.Workflows.HandleMedia)
	workflows.Delete("/:id", h.handlers.Workflows.HandleCancel)

	businesses := v1.Group("/businesses", middleware.RequireOwner)
	businesses.Post("/:id/images", h.handlers.Media.HandleImages)
	businesses.Patch("/:id/images", h.handlers.Media.HandleImages)

	ops := v1.Group("/ops")
	ops.Get("/queue", h.handlers.Queue.HandleSummary)
	ops.Get("/jobs", h.handlers.Queue.HandleJobs)
	ops.Delete("/jobs/:id", h.handlers.Queue.HandleJobDelete)
	ops.Post("/jobs/purge", h.handlers.Queue.HandlePurge)
	ops.Post("/plans/refresh", h.handlers.Plans.HandleRefresh)
}

func NewApiRouter(handlers Handlers) *ApiRouter {
	return &ApiRouter{
		handlers: handlers,
		limit: limiter.Config{
			Max:        env.GetInt("API_RATE_LIMIT", 120),
			Expiration: env.GetDuration("API_RATE_WINDOW", time.Minute),
		},
	}
}
