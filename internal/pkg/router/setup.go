package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/statistics"
)

// Router registers a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are wired to
type Dependencies struct {
	Billing *billing.Service
	Repos   *repository.Repositories
	Sweeps  controllers.SweepRunner
	// CatalogCache caches the public plan catalog; nil disables caching.
	CatalogCache controllers.CatalogCache
	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// MetricsUsers are the basic auth credentials of /metrics; empty disables the endpoint.
	MetricsUsers map[string]string
	// Statistics serves the admin dashboard; nil hides the route.
	Statistics *statistics.Service
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
