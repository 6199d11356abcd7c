package repository

import (
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// usageRecordRepository implements the UsageRecordRepository interface.
// The ledger is append-only; records are written by billing.Service.
type usageRecordRepository struct {
	db *gorm.DB
}

// NewUsageRecordRepository creates a new usage record repository instance
func NewUsageRecordRepository(db *gorm.DB) UsageRecordRepository {
	return &usageRecordRepository{db: db}
}

func (r *usageRecordRepository) scoped(filter UsageFilter) *gorm.DB {
	q := r.db.Model(&models.UsageRecord{})
	if filter.BillingAccountID != 0 {
		q = q.Where("billing_account_id = ?", filter.BillingAccountID)
	}
	if filter.Metric != "" {
		q = q.Where("metric = ?", filter.Metric)
	}
	if !filter.From.IsZero() {
		q = q.Where("timestamp >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("timestamp < ?", filter.To)
	}
	return q
}

// List retrieves ledger entries matching filter, newest first
func (r *usageRecordRepository) List(filter UsageFilter, offset, limit int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := r.scoped(filter).Order("timestamp DESC, id DESC").Offset(offset).Limit(limit).Find(&records).Error
	return records, err
}

// Count returns the number of ledger entries matching filter
func (r *usageRecordRepository) Count(filter UsageFilter) (int64, error) {
	var count int64
	err := r.scoped(filter).Count(&count).Error
	return count, err
}

// Summarize totals the ledger entries matching filter per metric
func (r *usageRecordRepository) Summarize(filter UsageFilter) ([]models.UsageSummary, error) {
	var rows []struct {
		Metric      string
		TotalAmount float64
		TotalCost   decimal.NullDecimal
		Count       int64
	}
	err := r.scoped(filter).
		Select("metric, SUM(amount) AS total_amount, SUM(cost) AS total_cost, COUNT(*) AS count").
		Group("metric").
		Order("metric ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]models.UsageSummary, 0, len(rows))
	for _, row := range rows {
		cost := decimal.Zero
		if row.TotalCost.Valid {
			cost = row.TotalCost.Decimal
		}
		summaries = append(summaries, models.UsageSummary{
			Metric:      row.Metric,
			TotalAmount: row.TotalAmount,
			TotalCost:   cost,
			Count:       row.Count,
		})
	}
	return summaries, nil
}

// ListOlderThan pages through entries recorded before cutoff in id order
func (r *usageRecordRepository) ListOlderThan(cutoff time.Time, afterID uint, limit int) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	err := r.db.Where("id > ? AND timestamp < ?", afterID, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
