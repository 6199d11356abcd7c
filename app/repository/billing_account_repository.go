package repository

import (
	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

// billingAccountRepository implements the BillingAccountRepository interface
type billingAccountRepository struct {
	db *gorm.DB
}

// NewBillingAccountRepository creates a new billing account repository instance
func NewBillingAccountRepository(db *gorm.DB) BillingAccountRepository {
	return &billingAccountRepository{db: db}
}

// GetByID retrieves a billing account by its ID
func (r *billingAccountRepository) GetByID(id uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByUserID retrieves the billing account of a user
func (r *billingAccountRepository) GetByUserID(userID uint) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := r.db.Where("user_id = ?", userID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *billingAccountRepository) scoped(filter AccountFilter) *gorm.DB {
	q := r.db.Model(&models.BillingAccount{})
	if filter.Status != "" {
		q = q.Where("subscription_status = ?", filter.Status)
	}
	if filter.FreeAccessGranted != nil {
		q = q.Where("free_access_granted = ?", *filter.FreeAccessGranted)
	}
	return q
}

// List retrieves billing accounts matching filter, newest first
func (r *billingAccountRepository) List(filter AccountFilter, offset, limit int) ([]models.BillingAccount, error) {
	var accounts []models.BillingAccount
	err := r.scoped(filter).Order("id DESC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, err
}

// Count returns the number of billing accounts matching filter
func (r *billingAccountRepository) Count(filter AccountFilter) (int64, error) {
	var count int64
	err := r.scoped(filter).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of accounts per subscription status
func (r *billingAccountRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		SubscriptionStatus string
		Total              int64
	}
	err := r.db.Model(&models.BillingAccount{}).
		Select("subscription_status, COUNT(*) AS total").
		Group("subscription_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(models.SubscriptionStatuses))
	for _, s := range models.SubscriptionStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.SubscriptionStatus] = row.Total
	}
	return counts, nil
}
