package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubFox/app/models"
)

func auditActions(t *testing.T, f *fixture, accountID uint) []string {
	t.Helper()
	var entries []models.AuditEntry
	require.NoError(t, f.db.Where("billing_account_id = ?", accountID).Order("id").Find(&entries).Error)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func TestGrantFreeAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 1, func(a *models.BillingAccount) { a.Suspend(jan1, ReasonGracePeriodExpired) })

	_, err := f.svc.GrantFreeAccess(ctx, acc.ID, 9, "", timePtr(jan1.Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrValidation)

	expires := date(2024, 6, 1)
	_, err = f.svc.GrantFreeAccess(ctx, acc.ID, 9, "", &expires)
	require.NoError(t, err)

	stored := f.reload(t, acc.ID)
	assert.True(t, stored.FreeAccessGranted)
	assert.Equal(t, defaultFreeAccessReason, stored.FreeAccessReason)
	require.NotNil(t, stored.FreeAccessGrantedBy)
	assert.Equal(t, uint(9), *stored.FreeAccessGrantedBy)
	requireTime(t, jan1, stored.FreeAccessGrantedAt)
	requireTime(t, expires, stored.FreeAccessExpiresAt)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	assert.Nil(t, stored.SuspendedAt)
	assert.True(t, HasActiveSubscription(stored, jan1))

	_, err = f.svc.RevokeFreeAccess(ctx, acc.ID, 9)
	require.NoError(t, err)
	stored = f.reload(t, acc.ID)
	assert.False(t, stored.FreeAccessGranted)
	assert.Nil(t, stored.FreeAccessGrantedBy)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)

	assert.Equal(t, []string{models.AuditActionGrantFreeAccess, models.AuditActionRevokeFreeAccess}, auditActions(t, f, acc.ID))
}

func TestSetBillingEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, 1, func(a *models.BillingAccount) { a.Suspend(jan1, ReasonGracePeriodExpired) })

	_, err := f.svc.SetBillingEnabled(ctx, acc.ID, 9, true)
	require.NoError(t, err)
	assert.Equal(t, statusSuspended, f.reload(t, acc.ID).SubscriptionStatus)

	_, err = f.svc.SetBillingEnabled(ctx, acc.ID, 9, false)
	require.NoError(t, err)
	stored := f.reload(t, acc.ID)
	assert.False(t, stored.BillingEnabled)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	assert.Empty(t, stored.SuspensionReason)

	var entry models.AuditEntry
	require.NoError(t, f.db.Where("billing_account_id = ?", acc.ID).Order("id desc").First(&entry).Error)
	assert.Equal(t, models.AuditActionToggleBilling, entry.Action)
	assert.Equal(t, statusSuspended, entry.FromStatus)
	assert.Equal(t, statusActive, entry.ToStatus)
	assert.Equal(t, false, entry.Details["billing_enabled"])
}

func TestOverrideStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := f.plan(t, func(p *models.MembershipPlan) { p.GracePeriodDays = 3 })
	acc := f.account(t, 1, func(a *models.BillingAccount) {
		a.SubscriptionStatus = statusActive
		a.MembershipPlanID = &plan.ID
	})

	_, err := f.svc.OverrideStatus(ctx, acc.ID, 9, "paused", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.OverrideStatus(ctx, acc.ID, 9, statusSuspended, "")
	require.NoError(t, err)
	stored := f.reload(t, acc.ID)
	assert.Equal(t, statusSuspended, stored.SubscriptionStatus)
	assert.Equal(t, defaultSuspendReason, stored.SuspensionReason)
	requireTime(t, jan1, stored.SuspendedAt)

	// Overrides may take transitions the lifecycle never would.
	_, err = f.svc.OverrideStatus(ctx, acc.ID, 9, statusGrace, "support ticket 12")
	require.NoError(t, err)
	stored = f.reload(t, acc.ID)
	assert.Equal(t, statusGrace, stored.SubscriptionStatus)
	assert.Nil(t, stored.SuspendedAt)
	requireTime(t, date(2024, 1, 4), stored.GracePeriodEndDate)

	_, err = f.svc.OverrideStatus(ctx, acc.ID, 9, statusActive, "")
	require.NoError(t, err)
	stored = f.reload(t, acc.ID)
	assert.Equal(t, statusActive, stored.SubscriptionStatus)
	assert.Nil(t, stored.GracePeriodEndDate)

	_, err = f.svc.OverrideStatus(ctx, acc.ID, 9, models.SubscriptionStatusInactive, "")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusInactive, f.reload(t, acc.ID).SubscriptionStatus)

	assert.Len(t, auditActions(t, f, acc.ID), 4)
}

func TestOverrideStatus_GraceFallsBackToDefaultDays(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, 1, nil)

	_, err := f.svc.OverrideStatus(context.Background(), acc.ID, 9, statusGrace, "")
	require.NoError(t, err)
	requireTime(t, date(2024, 1, 8), f.reload(t, acc.ID).GracePeriodEndDate)
}

func TestUsageStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := subscribedAccount(t, f, meteredPlan)
	_, err := f.svc.TrackUsage(ctx, acc.ID, UsageInput{Metric: "seats", Amount: 10, Unit: "seats"})
	require.NoError(t, err)

	stats, err := f.svc.UsageStatistics(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, statusActive, stats.Status)
	require.NotNil(t, stats.Plan)
	require.Len(t, stats.Limits, 2)
	assert.Equal(t, "api_calls", stats.Limits[0].Metric)
	assert.False(t, stats.Limits[0].Exceeded)
	assert.Equal(t, "seats", stats.Limits[1].Metric)
	assert.True(t, stats.Limits[1].Exceeded)
	assert.True(t, stats.Limits[1].HardLimit)

	_, err = f.svc.UsageStatistics(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
