package main

import (
	"context"
	"errors"
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

	"github.com/ManuelReschke/CourseFox/app/controllers"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/aggregate"
	"github.com/ManuelReschke/CourseFox/internal/pkg/apperror"
	"github.com/ManuelReschke/CourseFox/internal/pkg/assets"
	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/courses"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CourseFox/internal/pkg/mail"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CourseFox/internal/pkg/router"
	"github.com/ManuelReschke/CourseFox/internal/pkg/security"
	"github.com/ManuelReschke/CourseFox/internal/pkg/statistics"
)

func main() {
	app, jobs := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("[Server] Shutting down...")
		jobs.Stop()
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Errorf("[Server] Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	jobs := jobqueue.NewManager(db, cache.GetClient(), mail.NewSMTPMailerFromEnv())
	if err := jobs.Start(); err != nil {
		log.Fatalf("[Server] Job queue failed to start: %v", err)
	}

	courseOpts := []courses.Option{courses.WithReconciler(jobs.Notifier())}
	store, err := assets.NewStoreFromEnv(context.Background())
	switch {
	case err == nil:
		courseOpts = append(courseOpts, courses.WithAssets(store))
	case errors.Is(err, assets.ErrNotConfigured):
		log.Warn("[Server] ASSET_STORE not set, uploads are disabled")
	default:
		log.Fatalf("[Server] Asset store setup failed: %v", err)
	}

	billingOpts := []billing.Option{
		billing.WithProvider(billing.NewStripeClientFromEnv()),
		billing.WithCurrency(env.GetEnv("PAYMENT_CURRENCY", "usd")),
		billing.WithNotifier(jobs.Notifier()),
		billing.WithReconciler(jobs.Notifier()),
	}

	tokens := security.NewTokenManagerFromEnv()
	controllers.Setup(controllers.Dependencies{
		Repos:            repository.GetGlobalFactory(),
		Courses:          courses.NewService(db, courseOpts...),
		Billing:          billing.NewServiceFromDB(db, billingOpts...),
		Aggregates:       aggregate.NewUpdater(db),
		Tokens:           tokens,
		Stats:            statistics.NewService(db),
		Scheduler:        jobs,
		WebhookSecret:    env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		WebhookTolerance: env.GetEnvDuration("STRIPE_WEBHOOK_TOLERANCE", billing.DefaultSignatureTolerance),
	})

	app := fiber.New(fiber.Config{
		AppName:      "CourseFox",
		ErrorHandler: apperror.ErrorHandler,
		BodyLimit:    600 << 20, // lecture videos up to 500 MiB plus multipart overhead
	})

	app.Use(recover.New(), logger.New(), metrics.Middleware())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app, router.NewApiRouterFromCache(tokens, repository.GetGlobalFactory().GetUserRepository()))

	return app, jobs
}
