package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBillingAccount(t *testing.T) {
	a := NewBillingAccount(12)

	assert.Equal(t, uint(12), a.UserID)
	assert.Equal(t, SubscriptionStatusInactive, a.SubscriptionStatus)
	assert.True(t, a.BillingEnabled)
	assert.False(t, a.HasPlan())
	assert.NotNil(t, a.CurrentPeriodUsage)
	assert.True(t, a.Balance.IsZero())
	assert.Equal(t, uint(1), a.Version)
}

func TestBillingAccountSuspendAndClear(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := NewBillingAccount(1)

	a.Suspend(now, "Grace period expired")
	assert.Equal(t, SubscriptionStatusSuspended, a.SubscriptionStatus)
	require.NotNil(t, a.SuspendedAt)
	assert.Equal(t, now, *a.SuspendedAt)
	assert.Equal(t, "Grace period expired", a.SuspensionReason)

	a.ClearSuspension()
	assert.Nil(t, a.SuspendedAt)
	assert.Empty(t, a.SuspensionReason)

	admin := uint(3)
	a.FreeAccessGranted = true
	a.FreeAccessReason = "partner"
	a.FreeAccessGrantedBy = &admin
	a.FreeAccessGrantedAt = &now
	a.FreeAccessExpiresAt = &now
	a.ClearFreeAccess()
	assert.False(t, a.FreeAccessGranted)
	assert.Empty(t, a.FreeAccessReason)
	assert.Nil(t, a.FreeAccessGrantedBy)
	assert.Nil(t, a.FreeAccessGrantedAt)
	assert.Nil(t, a.FreeAccessExpiresAt)
}

func TestUsageMapValue(t *testing.T) {
	v, err := UsageMap{"storage_gb": 1.5, "api_calls": 10}.Value()
	require.NoError(t, err)
	assert.Equal(t, `{"api_calls":10,"storage_gb":1.5}`, v)

	v, err = UsageMap(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

func TestUsageMapScan(t *testing.T) {
	var m UsageMap
	require.NoError(t, m.Scan([]byte(`{"api_calls":3}`)))
	assert.Equal(t, 3.0, m.Get("api_calls"))
	assert.Zero(t, m.Get("exports"))

	require.NoError(t, m.Scan(`{"exports":2}`))
	assert.Equal(t, UsageMap{"exports": 2}, m)

	require.NoError(t, m.Scan(nil))
	assert.Equal(t, UsageMap{}, m)

	assert.Error(t, m.Scan("not json"))
	assert.Error(t, m.Scan(42))
}

func TestUsageMapClone(t *testing.T) {
	orig := UsageMap{"api_calls": 1}
	clone := orig.Clone()
	clone["api_calls"] = 5

	assert.Equal(t, 1.0, orig.Get("api_calls"))
	assert.Equal(t, 5.0, clone.Get("api_calls"))
	assert.Zero(t, UsageMap(nil).Get("api_calls"))
}

func TestGenerateAPIKey(t *testing.T) {
	raw, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Contains(t, raw, "sfx_")
	assert.Equal(t, raw[:16], prefix)
	assert.Equal(t, HashAPIKey(raw), hash)
	assert.Equal(t, HashAPIKey(" "+raw+"\n"), hash)
	assert.Len(t, hash, 64)

	other, _, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)

	k := &APIKey{}
	assert.False(t, k.IsRevoked())
	now := time.Now()
	k.RevokedAt = &now
	assert.True(t, k.IsRevoked())
}
