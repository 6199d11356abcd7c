package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// trackAttempts is how often a usage increment is retried after losing a version race.
const trackAttempts = 3

// UsageInput is one metered action.
type UsageInput struct {
	Metric   string
	Amount   float64
	Unit     string
	Metadata map[string]interface{}
}

func (in *UsageInput) normalize() error {
	in.Metric = strings.TrimSpace(in.Metric)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Metric == "" {
		return fmt.Errorf("%w: metric is required", ErrValidation)
	}
	if in.Unit == "" {
		return fmt.Errorf("%w: unit is required", ErrValidation)
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount < 0 {
		return fmt.Errorf("%w: amount must be a non-negative number", ErrValidation)
	}
	return nil
}

// UsageLimitStatus compares current period usage of a metric with its plan limit.
type UsageLimitStatus struct {
	Metric    string   `json:"metric"`
	Exceeded  bool     `json:"exceeded"`
	Current   float64  `json:"current"`
	Limit     *float64 `json:"limit,omitempty"`
	HardLimit bool     `json:"hard_limit"`
}

// EvaluateUsageLimit checks metric against the plan. A metric without a limit is unlimited.
func EvaluateUsageLimit(account *models.BillingAccount, plan *models.MembershipPlan, metric string) UsageLimitStatus {
	status := UsageLimitStatus{Metric: metric}
	if account == nil || plan == nil {
		return status
	}
	limit, ok := plan.UsageLimitFor(metric)
	if !ok {
		return status
	}
	current := account.CurrentPeriodUsage.Get(metric)
	l := limit.Limit
	status.Current = current
	status.Limit = &l
	status.HardLimit = limit.HardLimit
	status.Exceeded = current >= limit.Limit
	return status
}

// overageCost prices the part of an increment from before to after that lies above the limit.
func overageCost(plan *models.MembershipPlan, metric string, before, after float64) decimal.Decimal {
	if plan == nil {
		return decimal.Zero
	}
	limit, ok := plan.UsageLimitFor(metric)
	if !ok || limit.OverageRate == nil {
		return decimal.Zero
	}
	over := after - math.Max(before, limit.Limit)
	if over <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(over).Mul(*limit.OverageRate).Round(4)
}

// CheckUsageLimit reports how the account's usage of metric compares to its plan limit.
func (s *Service) CheckUsageLimit(ctx context.Context, accountID uint, metric string) (UsageLimitStatus, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return UsageLimitStatus{}, err
	}
	if !account.HasPlan() {
		return UsageLimitStatus{Metric: metric}, nil
	}
	plan, err := s.repo.GetPlan(ctx, *account.MembershipPlanID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UsageLimitStatus{Metric: metric}, nil
		}
		return UsageLimitStatus{}, err
	}
	return EvaluateUsageLimit(account, plan, metric), nil
}

// TrackUsage adds the input to the account's period usage, debits any overage
// cost from the balance and appends a ledger record, all in one transaction.
func (s *Service) TrackUsage(ctx context.Context, accountID uint, in UsageInput) (*models.UsageRecord, error) {
	return s.trackUsage(ctx, accountID, in, false)
}

// RecordUsage is TrackUsage that refuses increments which would push a hard-limited metric past its limit.
func (s *Service) RecordUsage(ctx context.Context, accountID uint, in UsageInput) (*models.UsageRecord, error) {
	return s.trackUsage(ctx, accountID, in, true)
}

func (s *Service) trackUsage(ctx context.Context, accountID uint, in UsageInput, enforceHardLimit bool) (*models.UsageRecord, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var record *models.UsageRecord
	var err error
	for attempt := 1; attempt <= trackAttempts; attempt++ {
		record, err = s.trackUsageOnce(ctx, accountID, in, enforceHardLimit)
		if !errors.Is(err, ErrConcurrentUpdate) {
			break
		}
	}
	switch {
	case err == nil:
		metrics.ObserveUsage(in.Metric, in.Amount)
		return record, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUsageLimitExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: account %d metric %q: %v", ErrUsageTracking, accountID, in.Metric, err)
	}
}

func (s *Service) trackUsageOnce(ctx context.Context, accountID uint, in UsageInput, enforceHardLimit bool) (*models.UsageRecord, error) {
	var record *models.UsageRecord
	err := s.repo.WithinTx(ctx, func(repo Repository) error {
		account, err := repo.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		var plan *models.MembershipPlan
		if account.HasPlan() {
			plan, err = repo.GetPlan(ctx, *account.MembershipPlanID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		usage := account.CurrentPeriodUsage.Clone()
		before := usage.Get(in.Metric)
		after := before + in.Amount

		if enforceHardLimit && plan != nil {
			if limit, ok := plan.UsageLimitFor(in.Metric); ok && limit.HardLimit && after > limit.Limit {
				metrics.ObserveUsageRejected(in.Metric)
				return fmt.Errorf("%w: %s would reach %g of %g %s", ErrUsageLimitExceeded, in.Metric, after, limit.Limit, limit.Unit)
			}
		}

		cost := overageCost(plan, in.Metric, before, after)
		usage[in.Metric] = after
		account.CurrentPeriodUsage = usage
		account.Balance = account.Balance.Sub(cost)
		if err := repo.SaveAccount(ctx, account); err != nil {
			return err
		}

		record = &models.UsageRecord{
			UserID:           account.UserID,
			BillingAccountID: account.ID,
			Metric:           in.Metric,
			Amount:           in.Amount,
			Unit:             in.Unit,
			Cost:             cost,
			Metadata:         in.Metadata,
			Timestamp:        s.clock.Now(),
		}
		return repo.CreateUsageRecord(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
