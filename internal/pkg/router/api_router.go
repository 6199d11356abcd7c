package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/controllers"
	"github.com/ManuelReschke/SubFox/internal/pkg/middleware"
	"github.com/ManuelReschke/SubFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	api := app.Group("/api", ratelimit.New(d.LimiterStorage))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"ping": "pong"})
	})

	plans := controllers.NewPlanController(d.Billing, d.Repos.MembershipPlan, d.CatalogCache)
	v1.Get("/plans", plans.HandlePublicCatalog)

	auth := middleware.APIKeyAuthMiddleware(d.Repos.APIKey)

	// Own account
	billingGroup := v1.Group("/billing", auth, middleware.RequireAuth)
	bc := controllers.NewBillingController(d.Billing, d.Repos)
	billingGroup.Get("/account", bc.HandleGetAccount)
	billingGroup.Post("/payment-methods", bc.HandleAttachPaymentMethod)
	billingGroup.Post("/subscribe", bc.HandleSubscribe)
	billingGroup.Post("/cancel", bc.HandleCancel)
	billingGroup.Get("/usage", bc.HandleListUsage)
	billingGroup.Get("/usage/summary", bc.HandleUsageSummary)
	billingGroup.Post("/usage", bc.HandleRecordUsage)
	billingGroup.Get("/usage/limits/:metric", bc.HandleUsageLimit)
	billingGroup.Get("/access", bc.HandleAccess)
	billingGroup.Get("/features/:feature", bc.HandleFeature)

	userGroup := v1.Group("/user", auth, middleware.RequireAuth)
	kc := controllers.NewAPIKeyController(d.Repos.APIKey)
	userGroup.Get("/api-keys", kc.HandleListAPIKeys)
	userGroup.Post("/api-keys", kc.HandleCreateAPIKey)
	userGroup.Delete("/api-keys/:id", kc.HandleRevokeAPIKey)

	h.registerAdminRoutes(v1.Group("/admin", auth, middleware.RequireAdmin), plans)
}

func (h ApiRouter) registerAdminRoutes(admin fiber.Router, plans *controllers.PlanController) {
	d := h.deps

	ac := controllers.NewAdminBillingController(d.Billing, d.Repos)
	admin.Get("/accounts", ac.HandleListAccounts)
	admin.Get("/accounts/:id", ac.HandleGetAccount)
	admin.Post("/accounts/:id/plan", ac.HandleAssignPlan)
	admin.Post("/accounts/:id/cancel", ac.HandleCancel)
	admin.Post("/accounts/:id/renew", ac.HandleRenew)
	admin.Post("/accounts/:id/free-access", ac.HandleGrantFreeAccess)
	admin.Delete("/accounts/:id/free-access", ac.HandleRevokeFreeAccess)
	admin.Post("/accounts/:id/billing", ac.HandleToggleBilling)
	admin.Post("/accounts/:id/status", ac.HandleOverrideStatus)
	admin.Get("/accounts/:id/usage", ac.HandleUsageStatistics)
	admin.Get("/accounts/:id/audit", ac.HandleAuditTrail)
	admin.Get("/users/:userId/account", ac.HandleGetUserAccount)

	admin.Get("/plans", plans.HandleListPlans)
	admin.Get("/plans/:id", plans.HandleGetPlan)
	admin.Post("/plans", plans.HandleCreatePlan)
	admin.Put("/plans/:id", plans.HandleUpdatePlan)
	admin.Delete("/plans/:id", plans.HandleDeactivatePlan)

	sc := controllers.NewAdminSettingsController(d.Repos.Setting)
	admin.Get("/settings", sc.HandleGetSettings)
	admin.Put("/settings", sc.HandleUpdateSettings)

	if d.Statistics != nil {
		st := controllers.NewAdminStatisticsController(d.Statistics)
		admin.Get("/statistics", st.HandleDashboard)
	}

	if d.Sweeps != nil {
		wc := controllers.NewAdminSweepController(d.Sweeps, d.Repos.Lock)
		admin.Get("/sweeps", wc.HandleListSweeps)
		admin.Post("/sweeps/:name/run", wc.HandleRunSweep)
		admin.Get("/sweeps/locks", wc.HandleListLocks)
		admin.Delete("/sweeps/locks/:name", wc.HandleReleaseLock)
	}
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
