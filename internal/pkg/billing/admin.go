package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
)

const (
	defaultFreeAccessReason = "Granted by administrator"
	defaultSuspendReason    = "Manually suspended by administrator"
)

// GrantFreeAccess gives the account access regardless of its subscription.
// A nil expiresAt grants access indefinitely. Suspended accounts are reactivated.
func (s *Service) GrantFreeAccess(ctx context.Context, accountID, adminID uint, reason string, expiresAt *time.Time) (*models.BillingAccount, error) {
	now := s.clock.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: free access expiry must be in the future", ErrValidation)
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFreeAccessReason
	}
	fromStatus := account.SubscriptionStatus
	admin := adminID
	granted := now
	account.FreeAccessGranted = true
	account.FreeAccessReason = reason
	account.FreeAccessGrantedBy = &admin
	account.FreeAccessGrantedAt = &granted
	if expiresAt != nil {
		exp := expiresAt.UTC()
		account.FreeAccessExpiresAt = &exp
	} else {
		account.FreeAccessExpiresAt = nil
	}
	if account.SubscriptionStatus == statusSuspended {
		account.SubscriptionStatus = statusActive
		account.ClearSuspension()
	}

	entry := &models.AuditEntry{ActorID: &admin, Action: models.AuditActionGrantFreeAccess, Reason: reason}
	if expiresAt != nil {
		entry.Details = map[string]interface{}{"expires_at": account.FreeAccessExpiresAt.Format(time.RFC3339)}
	}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	return account, nil
}

// RevokeFreeAccess removes a free access grant. The subscription status is left as is.
func (s *Service) RevokeFreeAccess(ctx context.Context, accountID, adminID uint) (*models.BillingAccount, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	fromStatus := account.SubscriptionStatus
	account.ClearFreeAccess()

	admin := adminID
	entry := &models.AuditEntry{ActorID: &admin, Action: models.AuditActionRevokeFreeAccess}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	return account, nil
}

// SetBillingEnabled toggles billing for the account. Disabling billing
// reactivates a suspended account; enabling it leaves the status untouched.
func (s *Service) SetBillingEnabled(ctx context.Context, accountID, adminID uint, enabled bool) (*models.BillingAccount, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	fromStatus := account.SubscriptionStatus
	account.BillingEnabled = enabled
	if !enabled && account.SubscriptionStatus == statusSuspended {
		account.SubscriptionStatus = statusActive
		account.ClearSuspension()
	}

	admin := adminID
	entry := &models.AuditEntry{
		ActorID: &admin,
		Action:  models.AuditActionToggleBilling,
		Details: map[string]interface{}{"billing_enabled": enabled},
	}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	return account, nil
}

// OverrideStatus forces the account into status, bypassing the lifecycle rules.
func (s *Service) OverrideStatus(ctx context.Context, accountID, adminID uint, status, reason string) (*models.BillingAccount, error) {
	status = strings.TrimSpace(status)
	if !models.IsValidSubscriptionStatus(status) {
		return nil, fmt.Errorf("%w: invalid subscription status %q", ErrValidation, status)
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reason = strings.TrimSpace(reason)
	fromStatus := account.SubscriptionStatus
	account.SubscriptionStatus = status

	switch status {
	case statusSuspended:
		if reason == "" {
			reason = defaultSuspendReason
		}
		suspendedAt := now
		account.SuspendedAt = &suspendedAt
		account.SuspensionReason = reason
	case statusActive, statusTrial:
		account.ClearSuspension()
		account.GracePeriodEndDate = nil
	case statusGrace:
		account.ClearSuspension()
		if account.GracePeriodEndDate == nil || !account.GracePeriodEndDate.After(now) {
			end := addDays(now, s.gracePeriodDaysFor(ctx, account))
			account.GracePeriodEndDate = &end
		}
	default:
		account.ClearSuspension()
	}

	admin := adminID
	entry := &models.AuditEntry{ActorID: &admin, Action: models.AuditActionOverrideStatus, Reason: reason}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	return account, nil
}

// gracePeriodDaysFor returns the grace period of the account's plan, or the configured default.
func (s *Service) gracePeriodDaysFor(ctx context.Context, account *models.BillingAccount) int {
	if account.HasPlan() {
		if plan, err := s.repo.GetPlan(ctx, *account.MembershipPlanID); err == nil {
			return plan.GracePeriodDays
		}
	}
	return s.settings.Get().DefaultGracePeriodDays
}

// UsageStatistics is the usage view of an account for administrators.
type UsageStatistics struct {
	AccountID          uint                   `json:"account_id"`
	Status             string                 `json:"status"`
	CurrentPeriodUsage models.UsageMap        `json:"current_period_usage"`
	PeriodStart        *time.Time             `json:"period_start"`
	PeriodEnd          *time.Time             `json:"period_end"`
	Plan               *models.MembershipPlan `json:"plan,omitempty"`
	Limits             []UsageLimitStatus     `json:"limits"`
}

// UsageStatistics returns the current period usage of the account and how it compares to the plan limits.
func (s *Service) UsageStatistics(ctx context.Context, accountID uint) (*UsageStatistics, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	stats := &UsageStatistics{
		AccountID:          account.ID,
		Status:             account.SubscriptionStatus,
		CurrentPeriodUsage: account.CurrentPeriodUsage,
		PeriodStart:        account.SubscriptionStartDate,
		PeriodEnd:          account.SubscriptionEndDate,
		Limits:             []UsageLimitStatus{},
	}
	if stats.CurrentPeriodUsage == nil {
		stats.CurrentPeriodUsage = models.UsageMap{}
	}
	if account.HasPlan() {
		plan, err := s.repo.GetPlan(ctx, *account.MembershipPlanID)
		if err == nil {
			stats.Plan = plan
			for _, l := range plan.UsageLimits {
				stats.Limits = append(stats.Limits, EvaluateUsageLimit(account, plan, l.Metric))
			}
		}
	}
	return stats, nil
}
