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

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/archive"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
	"github.com/ManuelReschke/SubFox/internal/pkg/database"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
	"github.com/ManuelReschke/SubFox/internal/pkg/mail"
	"github.com/ManuelReschke/SubFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/SubFox/internal/pkg/router"
	"github.com/ManuelReschke/SubFox/internal/pkg/scheduler"
	"github.com/ManuelReschke/SubFox/internal/pkg/statistics"
)

func main() {
	app, manager := NewApplication()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("[Server] Shutting down")
	manager.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("[Server] Shutdown failed: %v", err)
	}
}

func NewApplication() (*fiber.App, *scheduler.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	settings := models.NewSettingsStore(db)
	if err := settings.Load(); err != nil {
		log.Warnf("[Settings] Using defaults: %v", err)
	}
	repository.InitializeFactory(db, settings)
	repos := repository.GetGlobalRepositories()

	svc := billing.NewServiceFromDB(db,
		billing.WithClock(clock.SystemClock{}),
		billing.WithSettings(settings),
		billing.WithNotifier(mail.NewNotifierFromEnv()),
	)

	manager := newScheduler(svc, settings, repos)
	manager.Start()
	scheduler.SetManager(manager)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:      "SubFox",
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        svc,
		Repos:          repos,
		Sweeps:         manager,
		CatalogCache:   controllers.RedisCatalogCache(),
		LimiterStorage: ratelimit.NewStorage(),
		MetricsUsers:   metricsUsers(),
		Statistics:     statistics.NewService(db, controllers.RedisCatalogCache(), clock.SystemClock{}),
	})

	return app, manager
}

func newScheduler(svc *billing.Service, settings *models.SettingsStore, repos *repository.Repositories) *scheduler.Manager {
	var locker scheduler.Locker
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cache.Available(ctx) {
		locker = scheduler.NewRedisLocker(cache.GetClient())
	} else {
		log.Warn("[Scheduler] Cache unavailable, sweep locks are local to this process")
		locker = scheduler.NewLocalLocker()
	}
	manager := scheduler.NewManager(svc, settings, locker)

	cfg, err := archive.LoadConfig()
	if err != nil {
		log.Errorf("[Archive] Invalid configuration, archive disabled: %v", err)
		return manager
	}
	if !cfg.IsEnabled() {
		return manager
	}
	client, err := archive.NewClient(context.Background(), cfg)
	if err != nil {
		log.Errorf("[Archive] Object storage unavailable, archive disabled: %v", err)
		return manager
	}
	exporter := archive.NewExporter(repos.UsageRecord, client, settings, cfg, clock.SystemClock{})
	manager.Register(scheduler.JobUsageArchive, func(s models.BillingSettings) time.Duration {
		return time.Duration(s.UsageArchiveSweepMinutes) * time.Minute
	}, exporter.Run)
	return manager
}

// metricsUsers returns the /metrics credentials, or nil to disable the endpoint.
func metricsUsers() map[string]string {
	user := env.GetEnv("METRICS_USER", "")
	password := env.GetEnv("METRICS_PASSWORD", "")
	if user == "" || password == "" {
		return nil
	}
	return map[string]string{user: password}
}
