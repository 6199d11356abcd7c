package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubFox/app/models"
)

func TestCreateSubscription_TimeBased(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.CurrentPeriodUsage = models.UsageMap{"api_calls": 12}
	})

	got, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, true)
	require.NoError(t, err)
	assert.Equal(t, statusActive, got.SubscriptionStatus)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	require.NotNil(t, stored.MembershipPlanID)
	assert.Equal(t, plan.ID, *stored.MembershipPlanID)
	requireTime(t, jan1, stored.SubscriptionStartDate)
	requireTime(t, date(2024, 2, 1), stored.SubscriptionEndDate)
	requireTime(t, date(2024, 2, 1), stored.NextBillingDate)
	assert.Nil(t, stored.TrialEndDate)
	assert.Empty(t, stored.CurrentPeriodUsage)
	assert.Equal(t, uint(2), stored.Version)
}

func TestCreateSubscription_Trial(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, func(p *models.MembershipPlan) {
		p.TrialEnabled = true
		p.TrialDays = 14
	})
	acc := f.account(t, 1, nil)

	_, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, true)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusTrial, stored.SubscriptionStatus)
	requireTime(t, date(2024, 1, 15), stored.TrialEndDate)
	requireTime(t, date(2024, 1, 15), stored.SubscriptionEndDate)
	requireTime(t, date(2024, 1, 15), stored.NextBillingDate)
}

func TestCreateSubscription_NoAutoRenew(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, func(p *models.MembershipPlan) { p.AutoRenew = false })
	acc := f.account(t, 1, nil)

	_, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, true)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.Nil(t, stored.NextBillingDate)
	requireTime(t, date(2024, 2, 1), stored.SubscriptionEndDate)
}

func TestCreateSubscription_UsageBasedPlanHasNoFixedEnd(t *testing.T) {
	f := newFixture(t)
	rate := decimal.RequireFromString("0.01")
	plan := f.plan(t, func(p *models.MembershipPlan) {
		p.PlanType = models.PlanTypeUsageBased
		p.BillingInterval = ""
		p.UsageLimits = []models.UsageLimit{{Metric: "api_calls", Limit: 1000, Unit: "calls", OverageRate: &rate}}
	})
	acc := f.account(t, 1, nil)

	_, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, true)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	requireTime(t, jan1.Add(365*24*time.Hour), stored.SubscriptionEndDate)
	assert.Nil(t, stored.NextBillingDate, "usage based plans are not renewed on a date")
}

func TestCreateSubscription_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 1, nil)

	inactive := f.plan(t, func(p *models.MembershipPlan) { p.Active = false })
	_, err := f.svc.CreateSubscription(ctx, acc.ID, inactive.ID, true)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	// Stored behind the validator's back.
	broken := &models.MembershipPlan{Name: "broken", PlanType: models.PlanTypeTimeBased, IntervalCount: 1, Currency: "USD", Active: true}
	require.NoError(t, f.db.Create(broken).Error)
	_, err = f.svc.CreateSubscription(ctx, acc.ID, broken.ID, true)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = f.svc.CreateSubscription(ctx, acc.ID, 9999, true)
	assert.ErrorIs(t, err, ErrNotFound)

	valid := f.plan(t, nil)
	_, err = f.svc.CreateSubscription(ctx, 9999, valid.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, models.SubscriptionStatusInactive, stored.SubscriptionStatus)
	assert.Nil(t, stored.MembershipPlanID)
}

func TestCreateSubscription_ReactivatesSuspended(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.Suspend(jan1.Add(-time.Hour), ReasonGracePeriodExpired)
	})

	_, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, true)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	assert.Nil(t, stored.SuspendedAt)
	assert.Empty(t, stored.SuspensionReason)
}

func TestCreateSubscription_DeferredStart(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	currentEnd := date(2024, 1, 20)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusActive
		a.SubscriptionEndDate = &currentEnd
	})

	_, err := f.svc.CreateSubscription(context.Background(), acc.ID, plan.ID, false)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	requireTime(t, currentEnd, stored.SubscriptionStartDate)
	requireTime(t, date(2024, 2, 20), stored.SubscriptionEndDate)
}

func TestCreateSubscription_AuditedWithActor(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	acc := f.account(t, 1, nil)

	_, err := f.svc.CreateSubscription(WithActor(context.Background(), 7), acc.ID, plan.ID, true)
	require.NoError(t, err)

	var entries []models.AuditEntry
	require.NoError(t, f.db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionAssignPlan, entries[0].Action)
	assert.Equal(t, acc.ID, entries[0].BillingAccountID)
	assert.Equal(t, models.SubscriptionStatusInactive, entries[0].FromStatus)
	assert.Equal(t, statusActive, entries[0].ToStatus)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, uint(7), *entries[0].ActorID)
}

func TestRenewSubscription_ContinuesFromPreviousEnd(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	end := date(2024, 1, 1)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusGrace
		a.MembershipPlanID = &plan.ID
		a.SubscriptionEndDate = &end
		a.GracePeriodEndDate = timePtr(date(2024, 1, 8))
		a.CurrentPeriodUsage = models.UsageMap{"storage_gb": 3}
	})
	f.clock.Set(date(2024, 1, 15))

	_, err := f.svc.RenewSubscription(context.Background(), acc.ID)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	requireTime(t, date(2024, 1, 1), stored.SubscriptionStartDate)
	requireTime(t, date(2024, 2, 1), stored.SubscriptionEndDate)
	requireTime(t, date(2024, 2, 1), stored.NextBillingDate)
	assert.Nil(t, stored.GracePeriodEndDate)
	assert.Empty(t, stored.CurrentPeriodUsage)
}

func TestRenewSubscription_ChainsFromPreviousEnd(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, nil)
	end := date(2024, 1, 1)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusSuspended
		a.MembershipPlanID = &plan.ID
		a.SubscriptionEndDate = &end
	})
	f.clock.Set(date(2024, 3, 15))

	_, err := f.svc.RenewSubscription(context.Background(), acc.ID)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	requireTime(t, date(2024, 1, 1), stored.SubscriptionStartDate)
	requireTime(t, date(2024, 2, 1), stored.SubscriptionEndDate)
	requireTime(t, date(2024, 2, 1), stored.NextBillingDate)
}

func TestRenewSubscription_ChargeKeyIsStablePerPeriod(t *testing.T) {
	f := newFixture(t)
	plan := f.plan(t, func(p *models.MembershipPlan) { p.Price = decimal.RequireFromString("19.99") })
	end := date(2024, 1, 1)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusActive
		a.MembershipPlanID = &plan.ID
		a.SubscriptionEndDate = &end
	})
	f.clock.Set(date(2024, 1, 1).Add(time.Hour))
	proc := &recordingProcessor{}

	broken := NewService(failingSaveRepo{Repository: f.repo, failID: acc.ID},
		WithClock(f.clock), WithSettings(f.settings), WithNotifier(nil), WithPaymentProcessor(proc))
	_, err := broken.RenewSubscription(context.Background(), acc.ID)
	require.Error(t, err)

	svc := NewService(f.repo, WithClock(f.clock), WithSettings(f.settings), WithNotifier(nil), WithPaymentProcessor(proc))
	_, err = svc.RenewSubscription(context.Background(), acc.ID)
	require.NoError(t, err)

	require.Len(t, proc.keys, 2)
	assert.Equal(t, ChargeKey(acc.ID, end), proc.keys[0])
	assert.Equal(t, proc.keys[0], proc.keys[1], "a retried renewal must reuse the charge key")
}

func TestRenewSubscription_RequiresActivePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noPlan := f.account(t, 1, func(a *models.BillingAccount) { a.SubscriptionStatus = statusActive })
	_, err := f.svc.RenewSubscription(ctx, noPlan.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	plan := f.plan(t, nil)
	acc := f.account(t, 2, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusActive
		a.MembershipPlanID = &plan.ID
	})
	_, err = f.svc.DeactivatePlan(ctx, plan.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.RenewSubscription(ctx, acc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenewSubscription_ChargeFailureLeavesAccountUntouched(t *testing.T) {
	f := newFixture(t, WithPaymentProcessor(failingProcessor{}))
	plan := f.plan(t, func(p *models.MembershipPlan) { p.Price = decimal.RequireFromString("9.99") })
	end := date(2024, 1, 1)
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusActive
		a.MembershipPlanID = &plan.ID
		a.SubscriptionEndDate = &end
	})
	f.clock.Set(date(2024, 1, 2))

	_, err := f.svc.RenewSubscription(context.Background(), acc.ID)
	assert.ErrorIs(t, err, ErrPaymentFailed)

	stored := f.reload(t, acc.ID)
	requireTime(t, end, stored.SubscriptionEndDate)
	assert.Equal(t, uint(1), stored.Version)
}

func TestCancelSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.plan(t, nil)

	acc := f.account(t, 1, nil)
	_, err := f.svc.CreateSubscription(ctx, acc.ID, plan.ID, true)
	require.NoError(t, err)

	_, err = f.svc.CancelSubscription(ctx, acc.ID, false)
	require.NoError(t, err)
	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusCancelled, stored.SubscriptionStatus)
	assert.Nil(t, stored.NextBillingDate)
	requireTime(t, jan1, stored.CancelledAt)
	requireTime(t, date(2024, 2, 1), stored.SubscriptionEndDate)

	ok, err := f.svc.HasActiveSubscription(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, ok, "cancelled account keeps access until the period ends")

	f.clock.Set(date(2024, 2, 2))
	ok, err = f.svc.HasActiveSubscription(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelSubscription_Immediate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.plan(t, nil)
	acc := f.account(t, 1, nil)
	_, err := f.svc.CreateSubscription(ctx, acc.ID, plan.ID, true)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.CancelSubscription(ctx, acc.ID, true)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	requireTime(t, jan1.Add(time.Hour), stored.SubscriptionEndDate)
	ok, err := f.svc.HasActiveSubscription(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnterGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 1, func(a *models.BillingAccount) { a.SubscriptionStatus = statusActive })

	_, err := f.svc.EnterGracePeriod(ctx, acc.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.EnterGracePeriod(ctx, acc.ID, 7)
	require.NoError(t, err)
	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusGrace, stored.SubscriptionStatus)
	requireTime(t, date(2024, 1, 8), stored.GracePeriodEndDate)

	suspended := f.account(t, 2, func(a *models.BillingAccount) { a.Suspend(jan1, "test") })
	_, err = f.svc.EnterGracePeriod(ctx, suspended.ID, 7)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSaveAccount_RejectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 1, nil)

	first := f.reload(t, acc.ID)
	second := f.reload(t, acc.ID)

	first.ContactEmail = "first@example.com"
	require.NoError(t, f.repo.SaveAccount(ctx, first))

	second.ContactEmail = "second@example.com"
	err := f.repo.SaveAccount(ctx, second)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, uint(1), second.Version)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, "first@example.com", stored.ContactEmail)
	assert.Equal(t, uint(2), stored.Version)
}

func TestSubscribe_PaidPlanNeedsPaymentMethod(t *testing.T) {
	proc := &recordingProcessor{}
	f := newFixture(t, WithPaymentProcessor(proc))
	ctx := context.Background()
	plan := f.plan(t, func(p *models.MembershipPlan) { p.Price = decimal.RequireFromString("19.99") })
	acc := f.account(t, 1, nil)

	_, err := f.svc.Subscribe(ctx, acc.ID, plan.ID)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, statusInactive, f.reload(t, acc.ID).SubscriptionStatus)
	assert.Empty(t, proc.keys)

	_, err = f.svc.AttachPaymentMethod(ctx, 1, models.PaymentMethod{ID: "pm_1", Type: "card"})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, acc.ID, plan.ID)
	require.NoError(t, err)
	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	assert.Equal(t, []string{ChargeKey(acc.ID, jan1)}, proc.keys)
}

func TestSubscribe_DeclinedChargeLeavesAccountInactive(t *testing.T) {
	f := newFixture(t, WithPaymentProcessor(failingProcessor{}))
	ctx := context.Background()
	plan := f.plan(t, func(p *models.MembershipPlan) { p.Price = decimal.RequireFromString("19.99") })
	acc := f.account(t, 1, nil)
	_, err := f.svc.AttachPaymentMethod(ctx, 1, models.PaymentMethod{ID: "pm_1", Type: "card"})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, acc.ID, plan.ID)
	assert.ErrorIs(t, err, ErrPaymentFailed)

	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusInactive, stored.SubscriptionStatus)
	assert.Nil(t, stored.MembershipPlanID)
}

func TestSubscribe_TrialIsNotChargedUpFront(t *testing.T) {
	proc := &recordingProcessor{}
	f := newFixture(t, WithPaymentProcessor(proc))
	ctx := context.Background()
	plan := f.plan(t, func(p *models.MembershipPlan) {
		p.Price = decimal.RequireFromString("19.99")
		p.TrialEnabled = true
		p.TrialDays = 14
	})
	acc := f.account(t, 1, nil)
	_, err := f.svc.AttachPaymentMethod(ctx, 1, models.PaymentMethod{ID: "pm_1", Type: "card"})
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, acc.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, statusTrial, f.reload(t, acc.ID).SubscriptionStatus)
	assert.Empty(t, proc.keys)
}

func TestSubscribe_FreePlanNeedsNoPaymentMethod(t *testing.T) {
	f := newFixture(t, WithPaymentProcessor(failingProcessor{}))
	plan := f.plan(t, nil)
	acc := f.account(t, 1, nil)

	_, err := f.svc.Subscribe(context.Background(), acc.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, statusActive, f.reload(t, acc.ID).SubscriptionStatus)
}
