package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/SubFox/internal/pkg/usercontext"
)

// BillingController serves the authenticated user's own billing account
type BillingController struct {
	svc   *billing.Service
	repos *repository.Repositories
}

// NewBillingController creates a new billing controller
func NewBillingController(svc *billing.Service, repos *repository.Repositories) *BillingController {
	return &BillingController{svc: svc, repos: repos}
}

type paymentMethodRequest struct {
	ID        string `json:"id" validate:"required,max=191"`
	Type      string `json:"type" validate:"required,max=30"`
	Last4     string `json:"last4" validate:"omitempty,len=4,numeric"`
	IsDefault bool   `json:"is_default"`
}

type subscribeRequest struct {
	PlanID uint `json:"plan_id" validate:"required"`
}

type recordUsageRequest struct {
	Metric   string                 `json:"metric" validate:"required,max=100"`
	Amount   float64                `json:"amount" validate:"gte=0"`
	Unit     string                 `json:"unit" validate:"required,max=30"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (bc *BillingController) account(c *fiber.Ctx) (*models.BillingAccount, error) {
	return bc.svc.GetOrCreateAccount(c.UserContext(), usercontext.GetUserID(c))
}

// HandleGetAccount returns the caller's billing account, creating it on first use
func (bc *BillingController) HandleGetAccount(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	plan := bc.plan(account)
	return c.JSON(fiber.Map{
		"account": account,
		"plan":    plan,
		"access":  billing.EvaluateAccess(account, bc.svc.Now()),
	})
}

// plan returns the account's plan, or nil when none is assigned or it cannot be loaded.
func (bc *BillingController) plan(account *models.BillingAccount) *models.MembershipPlan {
	if !account.HasPlan() {
		return nil
	}
	p, err := bc.repos.MembershipPlan.GetByID(*account.MembershipPlanID)
	if err != nil {
		return nil
	}
	return p
}

// HandleAttachPaymentMethod stores a payment method reference on the caller's account
func (bc *BillingController) HandleAttachPaymentMethod(c *fiber.Ctx) error {
	var req paymentMethodRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	account, err := bc.svc.AttachPaymentMethod(c.UserContext(), usercontext.GetUserID(c), models.PaymentMethod{
		ID:        req.ID,
		Type:      req.Type,
		Last4:     req.Last4,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return handleServiceError(c, "attach payment method", err)
	}
	return c.JSON(account)
}

// HandleSubscribe subscribes the caller to an active plan. Paid plans need a payment method first.
func (bc *BillingController) HandleSubscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	account, err = bc.svc.Subscribe(c.UserContext(), account.ID, req.PlanID)
	if err != nil {
		return handleServiceError(c, "subscribe", err)
	}
	return c.JSON(account)
}

// HandleCancel cancels the caller's subscription at the end of the current period
func (bc *BillingController) HandleCancel(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	account, err = bc.svc.CancelSubscription(c.UserContext(), account.ID, false)
	if err != nil {
		return handleServiceError(c, "cancel subscription", err)
	}
	return c.JSON(account)
}

func (bc *BillingController) usageFilter(c *fiber.Ctx, accountID uint) (repository.UsageFilter, error) {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return repository.UsageFilter{}, err
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return repository.UsageFilter{}, err
	}
	return repository.UsageFilter{
		BillingAccountID: accountID,
		Metric:           strings.TrimSpace(c.Query("metric")),
		From:             from,
		To:               to,
	}, nil
}

// HandleListUsage pages through the caller's usage ledger, newest first
func (bc *BillingController) HandleListUsage(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	filter, err := bc.usageFilter(c, account.ID)
	if err != nil {
		return err
	}
	page, perPage, offset := pagination(c)
	records, err := bc.repos.UsageRecord.List(filter, offset, perPage)
	if err != nil {
		return handleServiceError(c, "list usage", err)
	}
	total, err := bc.repos.UsageRecord.Count(filter)
	if err != nil {
		return handleServiceError(c, "count usage", err)
	}
	return c.JSON(fiber.Map{
		"data":       records,
		"pagination": paginationMeta(page, perPage, total),
	})
}

// HandleUsageSummary returns per-metric totals of the caller's usage ledger
func (bc *BillingController) HandleUsageSummary(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	filter, err := bc.usageFilter(c, account.ID)
	if err != nil {
		return err
	}
	summary, err := bc.repos.UsageRecord.Summarize(filter)
	if err != nil {
		return handleServiceError(c, "summarize usage", err)
	}
	return c.JSON(fiber.Map{
		"data":                 summary,
		"current_period_usage": account.CurrentPeriodUsage,
	})
}

// HandleRecordUsage records a metered action. Hard limits reject the increment.
func (bc *BillingController) HandleRecordUsage(c *fiber.Ctx) error {
	var req recordUsageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	record, err := bc.svc.RecordUsage(c.UserContext(), account.ID, billing.UsageInput{
		Metric:   req.Metric,
		Amount:   req.Amount,
		Unit:     req.Unit,
		Metadata: req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, "record usage", err)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// HandleUsageLimit reports how the caller's usage of a metric compares to the plan limit
func (bc *BillingController) HandleUsageLimit(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	status, err := bc.svc.CheckUsageLimit(c.UserContext(), account.ID, c.Params("metric"))
	if err != nil {
		return handleServiceError(c, "check usage limit", err)
	}
	return c.JSON(status)
}

// HandleAccess reports whether the caller may use paid features
func (bc *BillingController) HandleAccess(c *fiber.Ctx) error {
	decision, err := bc.svc.CheckAccess(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return handleServiceError(c, "check access", err)
	}
	return c.JSON(decision)
}

// HandleFeature reports whether the caller's plan unlocks a feature
func (bc *BillingController) HandleFeature(c *fiber.Ctx) error {
	account, err := bc.account(c)
	if err != nil {
		return handleServiceError(c, "load billing account", err)
	}
	return c.JSON(entitlements.Check(account, bc.plan(account), c.Params("feature"), bc.svc.Now()))
}
