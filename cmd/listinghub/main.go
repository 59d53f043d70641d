package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/ListingHub/app/controllers"
	"github.com/ManuelReschke/ListingHub/app/repository"
	"github.com/ManuelReschke/ListingHub/internal/pkg/billing"
	"github.com/ManuelReschke/ListingHub/internal/pkg/cache"
	"github.com/ManuelReschke/ListingHub/internal/pkg/database"
	"github.com/ManuelReschke/ListingHub/internal/pkg/env"
	"github.com/ManuelReschke/ListingHub/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ListingHub/internal/pkg/media"
	"github.com/ManuelReschke/ListingHub/internal/pkg/mediastore"
	"github.com/ManuelReschke/ListingHub/internal/pkg/objectstore"
	"github.com/ManuelReschke/ListingHub/internal/pkg/plans"
	"github.com/ManuelReschke/ListingHub/internal/pkg/router"
	"github.com/ManuelReschke/ListingHub/internal/pkg/submission"
	"github.com/ManuelReschke/ListingHub/internal/pkg/workflow"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[Server] Shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown: %v", err)
	}
	shutdown()
}

// NewApplication wires every component and returns the app plus a function
// releasing background workers and connections.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	ctx := context.Background()
	redisClient := cache.GetClient()
	repos := repository.NewFactory(database.DB, redisClient).Repositories()

	provider, err := billing.NewStripeProvider(billing.LoadStripeConfig())
	if err != nil {
		log.Fatalf("[Billing] %v", err)
	}
	billingSvc := billing.NewServiceFromDB(database.DB)

	storeCfg, err := objectstore.LoadConfig()
	if err != nil {
		log.Fatalf("[ObjectStore] %v", err)
	}
	objects, err := objectstore.New(ctx, storeCfg)
	if err != nil {
		log.Fatalf("[ObjectStore] %v", err)
	}

	records := submission.NewGormRecordStore(repos.Business, repos.BusinessImage, billingSvc)
	jobs := jobqueue.NewManager(redisClient, jobqueue.LoadConfig(), jobqueue.Processors{
		Subscriptions: provider,
		Records:       records,
		Objects:       objects,
	})
	jobs.Start()

	orchestrator := submission.NewOrchestrator(records, media.NewClient(media.LoadConfig()), provider, jobs.GetQueue())
	catalog := plans.NewLoader(provider, redisClient)

	wfCfg := workflow.LoadConfig()
	drafts := workflow.NewRedisStore(redisClient, wfCfg.RedisDB)
	workflows := workflow.NewManager(drafts, catalog, records, workflow.Deps{
		Provider:  provider,
		Accounts:  billingSvc,
		Submitter: orchestrator,
	}, wfCfg)

	mediaCfg := mediastore.LoadConfig()
	app := fiber.New(fiber.Config{
		// multipart pushes carry a full gallery
		BodyLimit: int(mediaCfg.MaxUploadBytes) * (2*mediaCfg.MaxGallery + 1),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: env.GetEnv("OPENAPI_FILE", "./docs/openapi.yml"),
		Path:     "v1",
	}))

	// locally stored media
	if local, ok := objects.(*objectstore.LocalStore); ok && storeCfg.PublicPath() != "" {
		app.Static(storeCfg.PublicPath(), local.Root(), fiber.Static{MaxAge: 604800})
	}

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(router.Handlers{
		Workflows:  controllers.NewWorkflowController(workflows, controllers.LoadWorkflowControllerConfig()),
		Media:      controllers.NewMediaController(mediastore.NewService(repos.Business, repos.BusinessImage, objects, jobs.GetQueue(), mediaCfg)),
		Plans:      controllers.NewPlansController(catalog),
		Billing:    controllers.NewBillingController(billingSvc, repos.Business, billing.LoadStripeConfig().WebhookSecret),
		Queue:      controllers.NewQueueController(repos.Queue, jobs.GetQueue(), repos.Business),
		ServiceKey: env.GetEnv("SERVICE_API_KEY", ""),
	}))

	shutdown := func() {
		jobs.Stop()
		if err := drafts.Close(); err != nil {
			log.Warnf("[Workflow] Closing draft store: %v", err)
		}
		if err := redisClient.Close(); err != nil {
			log.Warnf("[Cache] Closing client: %v", err)
		}
	}
	return app, shutdown
}
