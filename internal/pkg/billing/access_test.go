package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/SubFox/app/models"
)

func TestEvaluateAccess(t *testing.T) {
	now := jan1
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		account func(a *models.BillingAccount)
		allowed bool
		reason  string
	}{
		{
			name:    "inactive",
			account: func(a *models.BillingAccount) {},
			reason:  AccessReasonNoSubscription,
		},
		{
			name: "active",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusActive
			},
			allowed: true,
			reason:  AccessReasonSubscription,
		},
		{
			name: "trial",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusTrial
			},
			allowed: true,
			reason:  AccessReasonSubscription,
		},
		{
			name: "grace period",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusGrace
				a.GracePeriodEndDate = &future
			},
			allowed: true,
			reason:  AccessReasonSubscription,
		},
		{
			name: "suspended",
			account: func(a *models.BillingAccount) {
				a.Suspend(past, "Grace period expired")
			},
			reason: AccessReasonNoSubscription,
		},
		{
			name: "free access without expiry beats suspension",
			account: func(a *models.BillingAccount) {
				a.Suspend(past, "Grace period expired")
				a.FreeAccessGranted = true
			},
			allowed: true,
			reason:  AccessReasonFreeAccess,
		},
		{
			name: "unexpired free access",
			account: func(a *models.BillingAccount) {
				a.FreeAccessGranted = true
				a.FreeAccessExpiresAt = &future
			},
			allowed: true,
			reason:  AccessReasonFreeAccess,
		},
		{
			name: "expired free access falls through to suspension",
			account: func(a *models.BillingAccount) {
				a.Suspend(past, "Grace period expired")
				a.FreeAccessGranted = true
				a.FreeAccessExpiresAt = &past
			},
			reason: AccessReasonNoSubscription,
		},
		{
			name: "expired free access falls through to active",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusActive
				a.FreeAccessGranted = true
				a.FreeAccessExpiresAt = &past
			},
			allowed: true,
			reason:  AccessReasonSubscription,
		},
		{
			name: "billing disabled",
			account: func(a *models.BillingAccount) {
				a.Suspend(past, "Grace period expired")
				a.BillingEnabled = false
			},
			allowed: true,
			reason:  AccessReasonBillingDisabled,
		},
		{
			name: "cancelled with time left",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusCancelled
				a.SubscriptionEndDate = &future
			},
			allowed: true,
			reason:  AccessReasonCancelledPeriod,
		},
		{
			name: "cancelled and ended",
			account: func(a *models.BillingAccount) {
				a.SubscriptionStatus = statusCancelled
				a.SubscriptionEndDate = &past
			},
			reason: AccessReasonNoSubscription,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := models.NewBillingAccount(1)
			tt.account(a)
			d := EvaluateAccess(a, now)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.allowed, HasActiveSubscription(a, now))
		})
	}
}

func TestEvaluateAccess_NilAccount(t *testing.T) {
	d := EvaluateAccess(nil, jan1)
	assert.False(t, d.Allowed)
	assert.Equal(t, AccessReasonNoAccount, d.Reason)
}

func TestService_CheckAccess(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	d, err := f.svc.CheckAccess(ctx, 42)
	assert.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, AccessReasonNoAccount, d.Reason)

	acc := f.account(t, 42, func(a *models.BillingAccount) { a.SubscriptionStatus = statusActive })
	d, err = f.svc.CheckAccess(ctx, 42)
	assert.NoError(t, err)
	assert.True(t, d.Allowed)

	ok, err := f.svc.HasActiveSubscription(ctx, acc.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasActiveSubscription(ctx, 9999)
	assert.NoError(t, err)
	assert.False(t, ok)
}
