package statistics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
)

type memoryCache struct {
	values map[string]string
	sets   int
}

func (m *memoryCache) Get(key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memoryCache) Set(key string, value interface{}, _ time.Duration) error {
	m.values[key] = value.(string)
	m.sets++
	return nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.MembershipPlan{}, &models.BillingAccount{}, &models.UsageRecord{}))
	return db
}

func TestDashboard(t *testing.T) {
	db := setupDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.MembershipPlan{Name: "Pro", PlanType: models.PlanTypeTimeBased, BillingInterval: models.BillingIntervalMonthly, Active: true}).Error)
	require.NoError(t, db.Create(&models.MembershipPlan{Name: "Old", PlanType: models.PlanTypeTimeBased, BillingInterval: models.BillingIntervalMonthly}).Error)

	accounts := []models.BillingAccount{
		{UserID: 1, SubscriptionStatus: models.SubscriptionStatusActive, BillingEnabled: true},
		{UserID: 2, SubscriptionStatus: models.SubscriptionStatusActive, BillingEnabled: true, FreeAccessGranted: true},
		{UserID: 3, SubscriptionStatus: models.SubscriptionStatusSuspended, BillingEnabled: true},
	}
	require.NoError(t, db.Create(&accounts).Error)

	require.NoError(t, db.Create(&models.UsageRecord{BillingAccountID: accounts[0].ID, Metric: "api_calls", Amount: 1, Unit: "call", Timestamp: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.UsageRecord{BillingAccountID: accounts[0].ID, Metric: "api_calls", Amount: 1, Unit: "call", Timestamp: now.Add(-48 * time.Hour)}).Error)

	c := &memoryCache{values: map[string]string{}}
	svc := NewService(db, c, clock.NewManual(now))

	d, cached, err := svc.Dashboard()
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "2024-03-10", d.Date)
	assert.EqualValues(t, 3, d.TotalAccounts)
	assert.EqualValues(t, 2, d.AccountsByStatus[models.SubscriptionStatusActive])
	assert.EqualValues(t, 1, d.AccountsByStatus[models.SubscriptionStatusSuspended])
	assert.EqualValues(t, 1, d.FreeAccess)
	assert.EqualValues(t, 1, d.ActivePlans)
	assert.EqualValues(t, 1, d.UsageRecordsToday)

	again, cached, err := svc.Dashboard()
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, d.TotalAccounts, again.TotalAccounts)
	assert.Equal(t, 1, c.sets)
}

func TestDashboard_NoCache(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, nil, clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	d, cached, err := svc.Dashboard()
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Zero(t, d.TotalAccounts)
	assert.Empty(t, d.AccountsByStatus)
}
