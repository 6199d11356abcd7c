package controllers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

const (
	planCatalogCacheKey = "subfox:plans:active"
	planCatalogCacheTTL = 5 * time.Minute
)

// CatalogCache stores the rendered public plan catalog.
type CatalogCache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
	Delete(key string) error
}

type redisCatalogCache struct{}

func (redisCatalogCache) Get(key string) (string, error) { return cache.Get(key) }
func (redisCatalogCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}
func (redisCatalogCache) Delete(key string) error { return cache.Delete(key) }

// RedisCatalogCache caches the catalog in the shared cache server.
func RedisCatalogCache() CatalogCache {
	return redisCatalogCache{}
}

// PlanController serves the plan catalog to admins and the public
type PlanController struct {
	svc   *billing.Service
	plans repository.MembershipPlanRepository
	cache CatalogCache
}

// NewPlanController creates a new plan controller. A nil cache disables catalog caching.
func NewPlanController(svc *billing.Service, plans repository.MembershipPlanRepository, c CatalogCache) *PlanController {
	return &PlanController{svc: svc, plans: plans, cache: c}
}

type planRequest struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	PlanType        string               `json:"plan_type"`
	BillingInterval string               `json:"billing_interval"`
	IntervalCount   int                  `json:"interval_count"`
	UsageLimits     []models.UsageLimit  `json:"usage_limits"`
	Features        []models.PlanFeature `json:"features"`
	Price           decimal.Decimal      `json:"price"`
	Currency        string               `json:"currency"`
	TrialEnabled    bool                 `json:"trial_enabled"`
	TrialDays       int                  `json:"trial_days"`
	AutoRenew       *bool                `json:"auto_renew"`
	GracePeriodDays *int                 `json:"grace_period_days"`
	Active          *bool                `json:"active"`
	DisplayOrder    int                  `json:"display_order"`
}

// apply copies the request onto p. Optional fields left out keep p's values.
func (r planRequest) apply(p *models.MembershipPlan) {
	p.Name = r.Name
	p.Description = r.Description
	p.PlanType = r.PlanType
	p.BillingInterval = r.BillingInterval
	p.IntervalCount = r.IntervalCount
	p.UsageLimits = r.UsageLimits
	p.Features = r.Features
	p.Price = r.Price
	p.Currency = r.Currency
	p.TrialEnabled = r.TrialEnabled
	p.TrialDays = r.TrialDays
	p.DisplayOrder = r.DisplayOrder
	if r.AutoRenew != nil {
		p.AutoRenew = *r.AutoRenew
	}
	if r.GracePeriodDays != nil {
		p.GracePeriodDays = *r.GracePeriodDays
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
}

// HandleListPlans lists every plan including inactive ones
func (pc *PlanController) HandleListPlans(c *fiber.Ctx) error {
	plans, err := pc.plans.GetAll()
	if err != nil {
		return handleServiceError(c, "list plans", err)
	}
	return c.JSON(fiber.Map{"data": plans})
}

// HandleGetPlan returns one plan
func (pc *PlanController) HandleGetPlan(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	plan, err := pc.plans.GetByID(id)
	if err != nil {
		return handleServiceError(c, "load plan", err)
	}
	return c.JSON(plan)
}

// HandleCreatePlan adds a plan to the catalog
func (pc *PlanController) HandleCreatePlan(c *fiber.Ctx) error {
	var req planRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	adminID := usercontext.GetUserID(c)
	plan := &models.MembershipPlan{
		AutoRenew:       true,
		GracePeriodDays: models.DefaultPlanGracePeriodDays,
		Active:          true,
		CreatedBy:       &adminID,
	}
	req.apply(plan)
	if err := pc.svc.CreatePlan(c.UserContext(), plan); err != nil {
		return handleServiceError(c, "create plan", err)
	}
	pc.invalidateCatalog()
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleUpdatePlan replaces the definition of a plan
func (pc *PlanController) HandleUpdatePlan(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	plan, err := pc.svc.GetPlan(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, "load plan", err)
	}
	var req planRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	adminID := usercontext.GetUserID(c)
	req.apply(plan)
	plan.UpdatedBy = &adminID
	if err := pc.svc.UpdatePlan(c.UserContext(), plan); err != nil {
		return handleServiceError(c, "update plan", err)
	}
	pc.invalidateCatalog()
	return c.JSON(plan)
}

// HandleDeactivatePlan hides a plan from new subscriptions
func (pc *PlanController) HandleDeactivatePlan(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	plan, err := pc.svc.DeactivatePlan(c.UserContext(), id, usercontext.GetUserID(c))
	if err != nil {
		return handleServiceError(c, "deactivate plan", err)
	}
	pc.invalidateCatalog()
	return c.JSON(plan)
}

// HandlePublicCatalog returns the active plans ordered for display
func (pc *PlanController) HandlePublicCatalog(c *fiber.Ctx) error {
	if pc.cache != nil {
		if cached, err := pc.cache.Get(planCatalogCacheKey); err == nil && cached != "" {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			c.Set("X-Cache", "HIT")
			return c.SendString(cached)
		}
	}

	plans, err := pc.plans.GetActive()
	if err != nil {
		return handleServiceError(c, "list plans", err)
	}
	body, err := json.Marshal(fiber.Map{"data": plans})
	if err != nil {
		return err
	}
	if pc.cache != nil {
		if err := pc.cache.Set(planCatalogCacheKey, string(body), planCatalogCacheTTL); err != nil {
			log.Debugf("[API] Plan catalog not cached: %v", err)
		}
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set("X-Cache", "MISS")
	return c.Send(body)
}

func (pc *PlanController) invalidateCatalog() {
	if pc.cache == nil {
		return
	}
	if err := pc.cache.Delete(planCatalogCacheKey); err != nil {
		log.Warnf("[API] Failed to invalidate plan catalog cache: %v", err)
	}
}
