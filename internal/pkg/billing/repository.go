package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetAccount(ctx context.Context, id uint) (*models.BillingAccount, error)
	GetAccountByUserID(ctx context.Context, userID uint) (*models.BillingAccount, error)
	CreateAccount(ctx context.Context, account *models.BillingAccount) error
	// SaveAccount writes the account if its version is unchanged and bumps the version.
	SaveAccount(ctx context.Context, account *models.BillingAccount) error

	GetPlan(ctx context.Context, id uint) (*models.MembershipPlan, error)
	CreatePlan(ctx context.Context, plan *models.MembershipPlan) error
	SavePlan(ctx context.Context, plan *models.MembershipPlan) error

	ListExpiredSubscriptions(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error)
	ListExpiredGracePeriods(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error)
	ListExpiredFreeAccess(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error)

	CreateUsageRecord(ctx context.Context, record *models.UsageRecord) error
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error

	// WithinTx runs fn against a repository bound to a single transaction.
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

func (r *gormRepository) GetAccount(ctx context.Context, id uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, notFound(err, "billing account %d", id)
	}
	return &account, nil
}

func (r *gormRepository) GetAccountByUserID(ctx context.Context, userID uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, notFound(err, "billing account for user %d", userID)
	}
	return &account, nil
}

func (r *gormRepository) CreateAccount(ctx context.Context, account *models.BillingAccount) error {
	if account.Version == 0 {
		account.Version = 1
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *gormRepository) SaveAccount(ctx context.Context, account *models.BillingAccount) error {
	expected := account.Version
	account.Version = expected + 1
	res := r.db.WithContext(ctx).
		Model(account).
		Where("version = ?", expected).
		Select("*").
		Omit("created_at").
		Updates(account)
	if res.Error != nil {
		account.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		account.Version = expected
		return fmt.Errorf("%w: billing account %d at version %d", ErrConcurrentUpdate, account.ID, expected)
	}
	return nil
}

func (r *gormRepository) GetPlan(ctx context.Context, id uint) (*models.MembershipPlan, error) {
	var plan models.MembershipPlan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, notFound(err, "membership plan %d", id)
	}
	return &plan, nil
}

func (r *gormRepository) CreatePlan(ctx context.Context, plan *models.MembershipPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *gormRepository) SavePlan(ctx context.Context, plan *models.MembershipPlan) error {
	return r.db.WithContext(ctx).Select("*").Omit("created_at", "created_by").Updates(plan).Error
}

func (r *gormRepository) ListExpiredSubscriptions(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error) {
	var accounts []models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("subscription_status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrial}).
		Where("subscription_end_date IS NOT NULL AND subscription_end_date <= ?", now).
		Where("billing_enabled = ? AND free_access_granted = ?", true, false).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *gormRepository) ListExpiredGracePeriods(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error) {
	var accounts []models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("subscription_status = ?", models.SubscriptionStatusGracePeriod).
		Where("grace_period_end_date IS NOT NULL AND grace_period_end_date <= ?", now).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *gormRepository) ListExpiredFreeAccess(ctx context.Context, now time.Time, afterID uint, limit int) ([]models.BillingAccount, error) {
	var accounts []models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("free_access_granted = ?", true).
		Where("free_access_expires_at IS NOT NULL AND free_access_expires_at <= ?", now).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}

func (r *gormRepository) CreateUsageRecord(ctx context.Context, record *models.UsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) WithinTx(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
