package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// AdminBillingController handles admin overrides of billing accounts
type AdminBillingController struct {
	svc   *billing.Service
	repos *repository.Repositories
}

// NewAdminBillingController creates a new admin billing controller
func NewAdminBillingController(svc *billing.Service, repos *repository.Repositories) *AdminBillingController {
	return &AdminBillingController{svc: svc, repos: repos}
}

type assignPlanRequest struct {
	PlanID           uint  `json:"plan_id" validate:"required"`
	StartImmediately *bool `json:"start_immediately"`
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

type freeAccessRequest struct {
	Reason    string     `json:"reason" validate:"max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type billingToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type statusOverrideRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

// withAdmin tags the request context with the calling admin so lifecycle operations are audited.
func withAdmin(c *fiber.Ctx) uint {
	adminID := usercontext.GetUserID(c)
	c.SetUserContext(billing.WithActor(c.UserContext(), adminID))
	return adminID
}

// HandleListAccounts lists billing accounts with optional status and free access filters
func (ac *AdminBillingController) HandleListAccounts(c *fiber.Ctx) error {
	filter := repository.AccountFilter{Status: strings.TrimSpace(c.Query("status"))}
	if filter.Status != "" && !models.IsValidSubscriptionStatus(filter.Status) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
	}
	if raw := c.Query("free_access"); raw != "" {
		v := c.QueryBool("free_access")
		filter.FreeAccessGranted = &v
	}

	page, perPage, offset := pagination(c)
	accounts, err := ac.repos.BillingAccount.List(filter, offset, perPage)
	if err != nil {
		return handleServiceError(c, "list billing accounts", err)
	}
	total, err := ac.repos.BillingAccount.Count(filter)
	if err != nil {
		return handleServiceError(c, "count billing accounts", err)
	}
	byStatus, err := ac.repos.BillingAccount.CountByStatus()
	if err != nil {
		return handleServiceError(c, "count billing accounts", err)
	}

	return c.JSON(fiber.Map{
		"data":       accounts,
		"pagination": paginationMeta(page, perPage, total),
		"by_status":  byStatus,
	})
}

// HandleGetAccount returns one billing account together with its current access decision
func (ac *AdminBillingController) HandleGetAccount(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	account, err := ac.svc.GetAccount(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	return c.JSON(fiber.Map{
		"account": account,
		"access":  billing.EvaluateAccess(account, ac.svc.Now()),
	})
}

// HandleGetUserAccount returns the billing account of a user, creating it when missing
func (ac *AdminBillingController) HandleGetUserAccount(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return err
	}
	account, err := ac.svc.GetOrCreateAccount(c.UserContext(), userID)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	return c.JSON(account)
}

// HandleAssignPlan subscribes the account to a plan
func (ac *AdminBillingController) HandleAssignPlan(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req assignPlanRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	startImmediately := req.StartImmediately == nil || *req.StartImmediately

	withAdmin(c)
	account, err := ac.svc.CreateSubscription(c.UserContext(), id, req.PlanID, startImmediately)
	if err != nil {
		return handleServiceError(c, "assign plan", err)
	}
	return c.JSON(account)
}

// HandleCancel cancels the subscription, at period end unless immediate is set
func (ac *AdminBillingController) HandleCancel(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	withAdmin(c)
	account, err := ac.svc.CancelSubscription(c.UserContext(), id, req.Immediate)
	if err != nil {
		return handleServiceError(c, "cancel subscription", err)
	}
	return c.JSON(account)
}

// HandleRenew renews the subscription for one more period
func (ac *AdminBillingController) HandleRenew(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	withAdmin(c)
	account, err := ac.svc.RenewSubscription(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, "renew subscription", err)
	}
	return c.JSON(account)
}

// HandleGrantFreeAccess grants free access, optionally until expires_at
func (ac *AdminBillingController) HandleGrantFreeAccess(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req freeAccessRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	adminID := withAdmin(c)
	account, err := ac.svc.GrantFreeAccess(c.UserContext(), id, adminID, req.Reason, req.ExpiresAt)
	if err != nil {
		return handleServiceError(c, "grant free access", err)
	}
	return c.JSON(account)
}

// HandleRevokeFreeAccess removes a free access grant
func (ac *AdminBillingController) HandleRevokeFreeAccess(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	adminID := withAdmin(c)
	account, err := ac.svc.RevokeFreeAccess(c.UserContext(), id, adminID)
	if err != nil {
		return handleServiceError(c, "revoke free access", err)
	}
	return c.JSON(account)
}

// HandleToggleBilling enables or disables billing for the account
func (ac *AdminBillingController) HandleToggleBilling(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req billingToggleRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	adminID := withAdmin(c)
	account, err := ac.svc.SetBillingEnabled(c.UserContext(), id, adminID, *req.Enabled)
	if err != nil {
		return handleServiceError(c, "toggle billing", err)
	}
	return c.JSON(account)
}

// HandleOverrideStatus forces a subscription status
func (ac *AdminBillingController) HandleOverrideStatus(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusOverrideRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	adminID := withAdmin(c)
	account, err := ac.svc.OverrideStatus(c.UserContext(), id, adminID, req.Status, req.Reason)
	if err != nil {
		return handleServiceError(c, "override status", err)
	}
	return c.JSON(account)
}

// HandleUsageStatistics returns the current period usage against the plan limits
func (ac *AdminBillingController) HandleUsageStatistics(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	stats, err := ac.svc.UsageStatistics(c.UserContext(), id)
	if err != nil {
		return handleServiceError(c, "load usage statistics", err)
	}
	return c.JSON(stats)
}

// HandleAuditTrail lists the admin actions recorded for the account, newest first
func (ac *AdminBillingController) HandleAuditTrail(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := ac.repos.BillingAccount.GetByID(id); err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	page, perPage, offset := pagination(c)
	entries, err := ac.repos.Audit.ListByAccount(id, offset, perPage)
	if err != nil {
		return handleServiceError(c, "load audit trail", err)
	}
	total, err := ac.repos.Audit.CountByAccount(id)
	if err != nil {
		return handleServiceError(c, "count audit entries", err)
	}
	return c.JSON(fiber.Map{
		"data":       entries,
		"pagination": paginationMeta(page, perPage, total),
	})
}
