package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/internal/pkg/clock"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var planSeq int

type fixture struct {
	db       *gorm.DB
	clock    *clock.Manual
	settings *models.SettingsStore
	repo     Repository
	svc      *Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.BillingAccount{},
		&models.MembershipPlan{},
		&models.UsageRecord{},
		&models.AuditEntry{},
		&models.Setting{},
	))
	return db
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:       db,
		clock:    clock.NewManual(jan1),
		settings: models.NewSettingsStore(db),
		repo:     NewRepository(db),
	}
	base := []Option{WithClock(f.clock), WithSettings(f.settings), WithNotifier(nil)}
	f.svc = NewService(f.repo, append(base, opts...)...)
	return f
}

// plan stores an active, auto-renewing free monthly plan after applying mutate.
func (f *fixture) plan(t *testing.T, mutate func(p *models.MembershipPlan)) *models.MembershipPlan {
	t.Helper()
	planSeq++
	p := &models.MembershipPlan{
		Name:            fmt.Sprintf("plan-%d", planSeq),
		PlanType:        models.PlanTypeTimeBased,
		BillingInterval: models.BillingIntervalMonthly,
		IntervalCount:   1,
		Price:           decimal.Zero,
		AutoRenew:       true,
		GracePeriodDays: models.DefaultPlanGracePeriodDays,
		Active:          true,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.svc.CreatePlan(context.Background(), p))
	return p
}

func (f *fixture) account(t *testing.T, userID uint, mutate func(a *models.BillingAccount)) *models.BillingAccount {
	t.Helper()
	a := models.NewBillingAccount(userID)
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, f.repo.CreateAccount(context.Background(), a))
	return a
}

func (f *fixture) reload(t *testing.T, id uint) *models.BillingAccount {
	t.Helper()
	a, err := f.repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func requireTime(t *testing.T, want time.Time, got *time.Time, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.True(t, want.Equal(*got), "want %s, got %s", want, *got)
}

// failingProcessor declines every charge.
type failingProcessor struct{ NoopProcessor }

func (failingProcessor) Charge(ctx context.Context, account *models.BillingAccount, plan *models.MembershipPlan, key string) error {
	return errors.New("card declined")
}

// recordingProcessor accepts every charge and remembers its key.
type recordingProcessor struct {
	NoopProcessor
	keys []string
}

func (p *recordingProcessor) Charge(ctx context.Context, account *models.BillingAccount, plan *models.MembershipPlan, key string) error {
	p.keys = append(p.keys, key)
	return nil
}

// failingSaveRepo fails SaveAccount for one account id.
type failingSaveRepo struct {
	Repository
	failID uint
}

func (r failingSaveRepo) SaveAccount(ctx context.Context, account *models.BillingAccount) error {
	if account.ID == r.failID {
		return errors.New("write failed")
	}
	return r.Repository.SaveAccount(ctx, account)
}

func (r failingSaveRepo) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	return r.Repository.WithinTx(ctx, func(tx Repository) error {
		return fn(failingSaveRepo{Repository: tx, failID: r.failID})
	})
}
