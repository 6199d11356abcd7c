package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
)

// Sweep names.
const (
	SweepSubscriptions = "subscriptions"
	SweepGracePeriods  = "grace_periods"
	SweepFreeAccess    = "free_access"
)

// Suspension reasons set by sweeps.
const (
	ReasonNoActivePlan       = "Subscription expired - no active plan"
	ReasonGracePeriodExpired = "Grace period expired"
	ReasonFreeAccessExpired  = "Free access expired"
)

// Sweep outcomes per account.
const (
	OutcomeRenewed           = "renewed"
	OutcomeGracePeriod       = "grace_period"
	OutcomeSuspended         = "suspended"
	OutcomeFreeAccessCleared = "free_access_cleared"
	OutcomeFailed            = "failed"
)

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Sweep     string         `json:"sweep"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Outcomes  map[string]int `json:"outcomes"`
}

type listFunc func(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error)
type handleFunc func(ctx context.Context, account *models.BillingAccount, now time.Time) (string, error)

// sweep pages through the accounts selected by list in id order and applies
// handle to each. A failing account is logged and skipped.
func (s *Service) sweep(ctx context.Context, name string, list listFunc, handle handleFunc) (res SweepResult, err error) {
	now := s.clock.Now()
	res = SweepResult{Sweep: name, StartedAt: now, Outcomes: map[string]int{}}
	started := time.Now()
	defer func() {
		res.Duration = time.Since(started)
		metrics.ObserveSweepDuration(name, res.Duration)
	}()

	batchSize := s.settings.Get().SweepBatchSize
	var lastID uint
	for {
		if err = ctx.Err(); err != nil {
			return res, err
		}
		var batch []models.BillingAccount
		batch, err = list(ctx, now, lastID, batchSize)
		if err != nil {
			log.Errorf("[Billing] %s sweep: failed to list accounts after id %d: %v", name, lastID, err)
			return res, err
		}
		if len(batch) == 0 {
			break
		}
		log.Debugf("[Billing] %s sweep: %d accounts in batch after id %d", name, len(batch), lastID)

		for i := range batch {
			account := &batch[i]
			lastID = account.ID
			outcome, handleErr := handle(ctx, account, now)
			if handleErr != nil {
				res.Failed++
				metrics.ObserveSweepAccount(name, OutcomeFailed)
				log.Errorf("[Billing] %s sweep: account %d failed: %v", name, account.ID, handleErr)
				continue
			}
			res.Processed++
			res.Outcomes[outcome]++
			metrics.ObserveSweepAccount(name, outcome)
		}
		if len(batch) < batchSize {
			break
		}
	}

	if res.Processed > 0 || res.Failed > 0 {
		log.Infof("[Billing] %s sweep: processed %d accounts, %d failed", name, res.Processed, res.Failed)
	}
	return res, nil
}

// ProcessExpiredSubscriptions renews, moves into grace or suspends every
// billable active or trial account whose period has ended.
func (s *Service) ProcessExpiredSubscriptions(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepSubscriptions, s.repo.ListExpiredSubscriptions, s.handleExpiredSubscription)
}

func (s *Service) handleExpiredSubscription(ctx context.Context, account *models.BillingAccount, now time.Time) (string, error) {
	var plan *models.MembershipPlan
	if account.HasPlan() {
		p, err := s.repo.GetPlan(ctx, *account.MembershipPlanID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
		plan = p
	}

	if plan == nil {
		if err := s.suspend(ctx, account, now, ReasonNoActivePlan); err != nil {
			return "", err
		}
		return OutcomeSuspended, nil
	}

	if plan.AutoRenew && account.NextBillingDate != nil {
		_, err := s.RenewSubscription(ctx, account.ID)
		if err == nil {
			log.Infof("[Billing] Auto-renewed subscription for account %d", account.ID)
			return OutcomeRenewed, nil
		}
		if errors.Is(err, ErrConcurrentUpdate) {
			return "", err
		}
		log.Warnf("[Billing] Auto-renewal failed for account %d, entering grace period: %v", account.ID, err)
	}

	if _, err := s.EnterGracePeriod(ctx, account.ID, plan.GracePeriodDays); err != nil {
		return "", err
	}
	return OutcomeGracePeriod, nil
}

// ProcessExpiredGracePeriods suspends every account whose grace period has ended.
func (s *Service) ProcessExpiredGracePeriods(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepGracePeriods, s.repo.ListExpiredGracePeriods, func(ctx context.Context, account *models.BillingAccount, now time.Time) (string, error) {
		if err := s.suspend(ctx, account, now, ReasonGracePeriodExpired); err != nil {
			return "", err
		}
		return OutcomeSuspended, nil
	})
}

// ProcessExpiredFreeAccess clears lapsed free access grants. Accounts that are
// not paying on their own are suspended at the same time.
func (s *Service) ProcessExpiredFreeAccess(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepFreeAccess, s.repo.ListExpiredFreeAccess, s.handleExpiredFreeAccess)
}

func (s *Service) handleExpiredFreeAccess(ctx context.Context, account *models.BillingAccount, now time.Time) (string, error) {
	fromStatus := account.SubscriptionStatus
	account.ClearFreeAccess()

	outcome := OutcomeFreeAccessCleared
	if fromStatus != statusActive && fromStatus != statusTrial {
		if err := checkTransition(fromStatus, statusSuspended); err != nil {
			return "", err
		}
		account.Suspend(now, ReasonFreeAccessExpired)
		outcome = OutcomeSuspended
	}
	if err := s.persist(ctx, account, fromStatus, nil); err != nil {
		return "", err
	}
	if outcome == OutcomeSuspended {
		s.notify(ctx, EventSuspended, account, nil)
	} else {
		s.notify(ctx, EventFreeAccessExpired, account, nil)
	}
	return outcome, nil
}

func (s *Service) suspend(ctx context.Context, account *models.BillingAccount, now time.Time, reason string) error {
	fromStatus := account.SubscriptionStatus
	if err := checkTransition(fromStatus, statusSuspended); err != nil {
		return err
	}
	account.Suspend(now, reason)
	if err := s.persist(ctx, account, fromStatus, nil); err != nil {
		return err
	}
	log.Infof("[Billing] Suspended account %d: %s", account.ID, reason)
	s.notify(ctx, EventSuspended, account, nil)
	return nil
}
