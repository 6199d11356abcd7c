package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// loadAssignablePlan returns planID if it exists, is active and is well formed.
func (s *Service) loadAssignablePlan(ctx context.Context, planID uint) (*models.MembershipPlan, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, fmt.Errorf("%w: membership plan %q is inactive", ErrInvalidPlan, plan.Name)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: membership plan %q: %v", ErrInvalidPlan, plan.Name, err)
	}
	return plan, nil
}

// CreateSubscription assigns planID to the account and starts a new billing period.
//
// When startImmediately is false and the account is still inside a paid or
// trial period, the new period starts where the current one ends.
func (s *Service) CreateSubscription(ctx context.Context, accountID, planID uint, startImmediately bool) (*models.BillingAccount, error) {
	return s.createSubscription(ctx, accountID, planID, startImmediately, false)
}

// Subscribe is the self-service way onto a plan. Paid plans need a payment
// method on file and their first period is charged before the account is
// activated. A trial is charged when it renews.
func (s *Service) Subscribe(ctx context.Context, accountID, planID uint) (*models.BillingAccount, error) {
	return s.createSubscription(ctx, accountID, planID, true, true)
}

func (s *Service) createSubscription(ctx context.Context, accountID, planID uint, startImmediately, charge bool) (*models.BillingAccount, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	plan, err := s.loadAssignablePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := now
	if !startImmediately && account.SubscriptionEndDate != nil && account.SubscriptionEndDate.After(now) &&
		(account.SubscriptionStatus == statusActive || account.SubscriptionStatus == statusTrial) {
		start = *account.SubscriptionEndDate
	}

	fromStatus := account.SubscriptionStatus
	target := statusActive
	var end time.Time
	var trialEnd, nextBilling *time.Time

	if plan.TrialEnabled && plan.TrialDays > 0 {
		target = statusTrial
		t := addDays(start, plan.TrialDays)
		trialEnd = &t
		end = t
		nextBilling = nextBillingFor(plan, end)
	} else {
		end, err = periodEnd(plan, start)
		if err != nil {
			return nil, err
		}
		nextBilling = nextBillingFor(plan, end)
	}
	if err := checkTransition(fromStatus, target); err != nil {
		return nil, err
	}

	if charge && plan.IsPaid() {
		if account.ProcessorCustomerID == "" || len(account.PaymentMethods) == 0 {
			return nil, fmt.Errorf("%w: add a payment method before subscribing to %q", ErrValidation, plan.Name)
		}
		if target == statusActive {
			if err := s.processor.Charge(ctx, account, plan, ChargeKey(account.ID, start)); err != nil {
				return nil, fmt.Errorf("%w: first charge for account %d: %v", ErrPaymentFailed, account.ID, err)
			}
		}
	}

	planRef := plan.ID
	account.MembershipPlanID = &planRef
	account.SubscriptionStatus = target
	account.SubscriptionStartDate = &start
	account.SubscriptionEndDate = &end
	account.NextBillingDate = nextBilling
	account.TrialEndDate = trialEnd
	account.GracePeriodEndDate = nil
	account.CancelledAt = nil
	account.ClearSuspension()
	account.CurrentPeriodUsage = models.UsageMap{}

	entry := auditEntry(ctx, models.AuditActionAssignPlan, "")
	if entry != nil {
		entry.Details = map[string]interface{}{"membership_plan_id": plan.ID, "start_immediately": startImmediately}
	}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Account %d subscribed to plan %d (%s until %s)", account.ID, plan.ID, target, end.Format(time.RFC3339))
	return account, nil
}

// nextBillingFor returns the date plan bills again after a period ending at end.
// Only auto-renewing plans with a billing interval have one.
func nextBillingFor(plan *models.MembershipPlan, end time.Time) *time.Time {
	if !plan.AutoRenew || !plan.RequiresInterval() {
		return nil
	}
	return &end
}

// RenewSubscription starts the next period where the previous one ended and reactivates the account.
func (s *Service) RenewSubscription(ctx context.Context, accountID uint) (*models.BillingAccount, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.HasPlan() {
		return nil, fmt.Errorf("%w: billing account %d has no membership plan", ErrNotFound, account.ID)
	}
	plan, err := s.repo.GetPlan(ctx, *account.MembershipPlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, fmt.Errorf("%w: membership plan %q is inactive", ErrNotFound, plan.Name)
	}
	if err := checkTransition(account.SubscriptionStatus, statusActive); err != nil {
		return nil, err
	}

	start := s.clock.Now()
	if account.SubscriptionEndDate != nil {
		start = *account.SubscriptionEndDate
	}
	end, err := periodEnd(plan, start)
	if err != nil {
		return nil, fmt.Errorf("%w: membership plan %q: %v", ErrInvalidPlan, plan.Name, err)
	}

	if plan.IsPaid() {
		if err := s.processor.Charge(ctx, account, plan, ChargeKey(account.ID, start)); err != nil {
			return nil, fmt.Errorf("%w: renewal charge for account %d: %v", ErrPaymentFailed, account.ID, err)
		}
	}

	fromStatus := account.SubscriptionStatus
	account.SubscriptionStatus = statusActive
	account.SubscriptionStartDate = &start
	account.SubscriptionEndDate = &end
	account.NextBillingDate = nextBillingFor(plan, end)
	account.GracePeriodEndDate = nil
	account.CancelledAt = nil
	account.ClearSuspension()
	account.CurrentPeriodUsage = models.UsageMap{}

	if err := s.persist(ctx, account, fromStatus, auditEntry(ctx, models.AuditActionRenew, "")); err != nil {
		return nil, err
	}
	s.notify(ctx, EventRenewed, account, plan)
	return account, nil
}

// CancelSubscription cancels the account. Without immediate the account keeps
// access until the current period ends but is never renewed again.
func (s *Service) CancelSubscription(ctx context.Context, accountID uint, immediate bool) (*models.BillingAccount, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(account.SubscriptionStatus, statusCancelled); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	fromStatus := account.SubscriptionStatus
	account.SubscriptionStatus = statusCancelled
	account.CancelledAt = &now
	account.NextBillingDate = nil
	if immediate {
		end := now
		account.SubscriptionEndDate = &end
	}

	entry := auditEntry(ctx, models.AuditActionCancel, "")
	if entry != nil {
		entry.Details = map[string]interface{}{"immediate": immediate}
	}
	if err := s.persist(ctx, account, fromStatus, entry); err != nil {
		return nil, err
	}
	s.notify(ctx, EventCancelled, account, nil)
	return account, nil
}

// EnterGracePeriod moves the account into the grace period for the given number of days.
func (s *Service) EnterGracePeriod(ctx context.Context, accountID uint, gracePeriodDays int) (*models.BillingAccount, error) {
	if gracePeriodDays < 0 {
		return nil, fmt.Errorf("%w: grace period days must not be negative", ErrValidation)
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(account.SubscriptionStatus, statusGrace); err != nil {
		return nil, err
	}

	fromStatus := account.SubscriptionStatus
	end := addDays(s.clock.Now(), gracePeriodDays)
	account.SubscriptionStatus = statusGrace
	account.GracePeriodEndDate = &end

	if err := s.persist(ctx, account, fromStatus, nil); err != nil {
		return nil, err
	}
	log.Infof("[Billing] Account %d entered grace period until %s", account.ID, end.Format(time.RFC3339))
	s.notify(ctx, EventGracePeriod, account, nil)
	return account, nil
}

// HasActiveSubscription loads the account and evaluates its access.
func (s *Service) HasActiveSubscription(ctx context.Context, accountID uint) (bool, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return HasActiveSubscription(account, s.clock.Now()), nil
}

// CheckAccess returns the access decision for the account of userID.
func (s *Service) CheckAccess(ctx context.Context, userID uint) (AccessDecision, error) {
	account, err := s.repo.GetAccountByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccessDecision{Allowed: false, Reason: AccessReasonNoAccount}, nil
		}
		return AccessDecision{}, err
	}
	return EvaluateAccess(account, s.clock.Now()), nil
}
